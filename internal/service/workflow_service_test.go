package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bibleschool-api/internal/dto"
	"github.com/noah-isme/bibleschool-api/internal/models"
	"github.com/noah-isme/bibleschool-api/internal/repository"
	appErrors "github.com/noah-isme/bibleschool-api/pkg/errors"
	"github.com/noah-isme/bibleschool-api/pkg/export"
)

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

// academyState backs every store stub; the stubs ignore the transaction handle.
type academyState struct {
	mu sync.Mutex

	seq          int
	programs     map[string]*models.Program
	cohorts      map[string]*models.Cohort
	members      map[string]*models.Member
	applications map[string]*models.Application
	students     map[string]*models.Student
	enrollments  []*models.Enrollment
	attendance   map[string]*models.AttendanceRecord
	exams        map[string]*models.ExamResult
	promotions   []*models.PromotionRecord
	graduations  []*models.GraduationRecord
	roleWrites   int

	createGraduationErr error
}

func newAcademyState() *academyState {
	s := &academyState{
		programs:     make(map[string]*models.Program),
		cohorts:      make(map[string]*models.Cohort),
		members:      make(map[string]*models.Member),
		applications: make(map[string]*models.Application),
		students:     make(map[string]*models.Student),
		attendance:   make(map[string]*models.AttendanceRecord),
		exams:        make(map[string]*models.ExamResult),
	}
	for i, name := range DefaultProgramLevels {
		id := "prog-" + name
		s.programs[id] = &models.Program{ID: id, Name: name, LevelOrder: i + 1}
		cohortID := "cohort-" + name
		s.cohorts[cohortID] = &models.Cohort{ID: cohortID, ProgramID: id, Name: name + " 2026"}
	}
	s.members["member-1"] = &models.Member{ID: "member-1", FullName: "Grace Wanjiru", Role: models.MemberRoleMember}
	s.members["member-2"] = &models.Member{ID: "member-2", FullName: "Peter Mwangi", Role: models.MemberRoleMember}
	return s
}

func (s *academyState) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *academyState) activeEnrollments(studentID string) []*models.Enrollment {
	var active []*models.Enrollment
	for _, e := range s.enrollments {
		if e.StudentID == studentID && e.Status == models.EnrollmentStatusActive {
			active = append(active, e)
		}
	}
	return active
}

type programStub struct{ *academyState }

func (p programStub) FindByID(ctx context.Context, id string) (*models.Program, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	program, ok := p.programs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *program
	return &cp, nil
}

func (p programStub) FindCohort(ctx context.Context, id string) (*models.Cohort, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cohort, ok := p.cohorts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *cohort
	return &cp, nil
}

type applicationStub struct{ *academyState }

func (a applicationStub) ExistsPending(ctx context.Context, tx *sqlx.Tx, memberID, programID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, app := range a.applications {
		if app.MemberID == memberID && app.ProgramID == programID && app.Status == models.ApplicationStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (a applicationStub) Create(ctx context.Context, tx *sqlx.Tx, app *models.Application) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.members[app.MemberID]; !ok {
		return repository.ErrMissingReference
	}
	for _, existing := range a.applications {
		if existing.MemberID == app.MemberID && existing.ProgramID == app.ProgramID && existing.Status == models.ApplicationStatusPending {
			return repository.ErrDuplicatePendingApplication
		}
	}
	app.ID = a.nextID("app")
	cp := *app
	a.applications[app.ID] = &cp
	return nil
}

func (a applicationStub) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Application, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	app, ok := a.applications[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *app
	return &cp, nil
}

func (a applicationStub) MarkReviewed(ctx context.Context, tx *sqlx.Tx, id string, status models.ApplicationStatus, reviewerID string, reviewedAt time.Time, remarks *string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	app, ok := a.applications[id]
	if !ok || app.Status != models.ApplicationStatusPending {
		return repository.ErrVersionConflict
	}
	app.Status = status
	app.ReviewedBy = &reviewerID
	app.ReviewedAt = &reviewedAt
	if remarks != nil {
		app.Remarks = remarks
	}
	return nil
}

type studentStub struct{ *academyState }

func (s studentStub) UpsertForEnrollment(ctx context.Context, tx *sqlx.Tx, memberID, programID, cohortID string) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[memberID]; !ok {
		return nil, repository.ErrMissingReference
	}
	cohort := cohortID
	for _, student := range s.students {
		if student.MemberID == memberID {
			student.CurrentProgramID = programID
			student.CurrentCohortID = &cohort
			student.Status = models.StudentStatusEnrolled
			student.Version++
			cp := *student
			return &cp, nil
		}
	}
	student := &models.Student{
		ID:               s.nextID("student"),
		MemberID:         memberID,
		CurrentProgramID: programID,
		CurrentCohortID:  &cohort,
		Status:           models.StudentStatusEnrolled,
		Version:          1,
	}
	s.students[student.ID] = student
	cp := *student
	return &cp, nil
}

func (s studentStub) LockDetail(ctx context.Context, tx *sqlx.Tx, id string) (*models.StudentDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	student, ok := s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := &models.StudentDetail{Student: *student}
	if member, ok := s.members[student.MemberID]; ok {
		detail.MemberName = member.FullName
	}
	if program, ok := s.programs[student.CurrentProgramID]; ok {
		detail.CurrentProgramName = program.Name
	}
	return detail, nil
}

func (s studentStub) UpdateProgram(ctx context.Context, tx *sqlx.Tx, id, programID string, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	student, ok := s.students[id]
	if !ok || student.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	student.CurrentProgramID = programID
	student.Version++
	return nil
}

func (s studentStub) MarkCompleted(ctx context.Context, tx *sqlx.Tx, id string, levelOrder, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	student, ok := s.students[id]
	if !ok || student.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	if levelOrder > student.HighestCompletedLevel {
		student.HighestCompletedLevel = levelOrder
	}
	student.Status = models.StudentStatusCompleted
	student.Version++
	return nil
}

type enrollmentStub struct{ *academyState }

func (e enrollmentStub) FindActiveByStudent(ctx context.Context, tx *sqlx.Tx, studentID string) (*models.Enrollment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	active := e.activeEnrollments(studentID)
	if len(active) == 0 {
		return nil, nil
	}
	cp := *active[0]
	return &cp, nil
}

func (e enrollmentStub) Create(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.activeEnrollments(enrollment.StudentID)) > 0 {
		return repository.ErrActiveEnrollmentExists
	}
	enrollment.ID = e.nextID("enrollment")
	cp := *enrollment
	e.enrollments = append(e.enrollments, &cp)
	return nil
}

func (e enrollmentStub) Close(ctx context.Context, tx *sqlx.Tx, id string, status models.EnrollmentStatus, closedAt time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, enrollment := range e.enrollments {
		if enrollment.ID == id {
			enrollment.Status = status
			enrollment.ClosedAt = &closedAt
		}
	}
	return nil
}

func (e enrollmentStub) CompleteActiveInCohort(ctx context.Context, tx *sqlx.Tx, studentID, cohortID string, closedAt time.Time) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var n int64
	for _, enrollment := range e.activeEnrollments(studentID) {
		if enrollment.CohortID == cohortID {
			enrollment.Status = models.EnrollmentStatusCompleted
			enrollment.ClosedAt = &closedAt
			n++
		}
	}
	return n, nil
}

type recordStub struct{ *academyState }

func (r recordStub) UpsertAttendance(ctx context.Context, tx *sqlx.Tx, record *models.AttendanceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := record.LessonID + "|" + record.StudentID + "|" + record.CohortID
	if existing, ok := r.attendance[key]; ok {
		record.ID = existing.ID
	} else {
		record.ID = r.nextID("attendance")
	}
	cp := *record
	r.attendance[key] = &cp
	return nil
}

func (r recordStub) UpsertExamResult(ctx context.Context, tx *sqlx.Tx, result *models.ExamResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.students[result.StudentID]; !ok {
		return repository.ErrMissingReference
	}
	key := result.ExamID + "|" + result.StudentID + "|" + result.CohortID
	if existing, ok := r.exams[key]; ok {
		result.ID = existing.ID
	} else {
		result.ID = r.nextID("exam")
	}
	cp := *result
	r.exams[key] = &cp
	return nil
}

type progressionStub struct{ *academyState }

func (p progressionStub) CreatePromotion(ctx context.Context, tx *sqlx.Tx, record *models.PromotionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	record.ID = p.nextID("promotion")
	cp := *record
	p.promotions = append(p.promotions, &cp)
	return nil
}

func (p progressionStub) GraduationExists(ctx context.Context, tx *sqlx.Tx, studentID, programID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, g := range p.graduations {
		if g.StudentID == studentID && g.ProgramID == programID {
			return true, nil
		}
	}
	return false, nil
}

func (p progressionStub) CreateGraduation(ctx context.Context, tx *sqlx.Tx, record *models.GraduationRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createGraduationErr != nil {
		return p.createGraduationErr
	}
	for _, g := range p.graduations {
		if g.StudentID == record.StudentID && g.ProgramID == record.ProgramID {
			return repository.ErrDuplicateGraduation
		}
	}
	record.ID = p.nextID("graduation")
	cp := *record
	p.graduations = append(p.graduations, &cp)
	return nil
}

type memberStub struct{ *academyState }

func (m memberStub) UpdateRole(ctx context.Context, tx *sqlx.Tx, memberID string, role models.MemberRole) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[memberID]
	if !ok || member.Role == role {
		return false, nil
	}
	member.Role = role
	m.roleWrites++
	return true, nil
}

type auditSpy struct {
	mu      sync.Mutex
	actions []string
	meta    []map[string]interface{}
}

func (a *auditSpy) Append(ctx context.Context, action string, subjectStudentID *string, performedBy string, metadata map[string]interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	a.meta = append(a.meta, metadata)
}

func (a *auditSpy) count(action string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, got := range a.actions {
		if got == action {
			n++
		}
	}
	return n
}

type workflowFixture struct {
	svc       *WorkflowService
	mock      sqlmock.Sqlmock
	state     *academyState
	audit     *auditSpy
	artifacts *memoryArtifactStore
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	state := newAcademyState()
	audit := &auditSpy{}
	artifacts := newMemoryArtifactStore()
	credentials := NewCredentialService(export.NewCertificateRenderer(export.WithCompression(false)), artifacts, testSignatories(), nil)
	ladder, err := NewLevelLadder(nil)
	require.NoError(t, err)

	svc := NewWorkflowService(tx, WorkflowStores{
		Programs:     programStub{state},
		Applications: applicationStub{state},
		Students:     studentStub{state},
		Enrollments:  enrollmentStub{state},
		Records:      recordStub{state},
		Progression:  progressionStub{state},
		Members:      memberStub{state},
	}, NewPromotionRules(ladder, 75), credentials, audit, nil, nil, nil, WorkflowConfig{})
	svc.now = func() time.Time { return time.Date(2026, 6, 14, 9, 0, 0, 0, time.UTC) }

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return &workflowFixture{svc: svc, mock: mock, state: state, audit: audit, artifacts: artifacts}
}

// enroll applies and approves memberID into the named program's cohort.
func (f *workflowFixture) enroll(t *testing.T, memberID, program string) *dto.ApprovalResult {
	t.Helper()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	app, err := f.svc.Apply(context.Background(), dto.ApplyRequest{MemberID: memberID, ProgramID: "prog-" + program, PerformedBy: "user-" + memberID})
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	result, err := f.svc.ApproveApplication(context.Background(), dto.ApproveApplicationRequest{ApplicationID: app.ID, CohortID: "cohort-" + program, ApproverID: "admin-1"})
	require.NoError(t, err)
	return result
}

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }
func intPtr(v int) *int           { return &v }

func TestWorkflowApplyRejectsDuplicatePending(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	req := dto.ApplyRequest{MemberID: "member-1", ProgramID: "prog-Foundation", PerformedBy: "user-1"}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	app, err := f.svc.Apply(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusPending, app.Status)
	assert.NotEmpty(t, app.ID)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.Apply(ctx, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, 1, f.audit.count(models.AuditActionApply))
}

func TestWorkflowApplyUnknownProgram(t *testing.T) {
	f := newWorkflowFixture(t)

	_, err := f.svc.Apply(context.Background(), dto.ApplyRequest{MemberID: "member-1", ProgramID: "prog-Missing", PerformedBy: "user-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Empty(t, f.state.applications)
}

func TestWorkflowApplyUnknownMember(t *testing.T) {
	f := newWorkflowFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Apply(context.Background(), dto.ApplyRequest{MemberID: "ghost", ProgramID: "prog-Foundation", PerformedBy: "user-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.True(t, appErrors.IsUserFacing(err))
	assert.Empty(t, f.state.applications)
	assert.Zero(t, f.audit.count(models.AuditActionApply))
}

func TestWorkflowApproveIsIdempotentPerApplication(t *testing.T) {
	f := newWorkflowFixture(t)
	first := f.enroll(t, "member-1", "Foundation")

	assert.Equal(t, models.ApplicationStatusApproved, first.Application.Status)
	assert.Equal(t, models.EnrollmentStatusActive, first.Enrollment.Status)
	assert.Equal(t, "cohort-Foundation", first.Enrollment.CohortID)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.ApproveApplication(context.Background(), dto.ApproveApplicationRequest{ApplicationID: first.Application.ID, CohortID: "cohort-Foundation", ApproverID: "admin-2"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	assert.Len(t, f.state.students, 1)
	assert.Len(t, f.state.activeEnrollments(first.Student.ID), 1)
	assert.Equal(t, 1, f.audit.count(models.AuditActionApproveApplication))
}

func TestWorkflowApproveKeepsOneStudentPerMember(t *testing.T) {
	f := newWorkflowFixture(t)
	first := f.enroll(t, "member-1", "Foundation")
	second := f.enroll(t, "member-1", "Discipleship")

	assert.Equal(t, first.Student.ID, second.Student.ID)
	assert.Len(t, f.state.students, 1)

	active := f.state.activeEnrollments(first.Student.ID)
	require.Len(t, active, 1)
	assert.Equal(t, "cohort-Discipleship", active[0].CohortID)
	assert.Equal(t, models.EnrollmentStatusWithdrawn, f.state.enrollments[0].Status)
}

func TestWorkflowApproveRejectsForeignCohort(t *testing.T) {
	f := newWorkflowFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	app, err := f.svc.Apply(context.Background(), dto.ApplyRequest{MemberID: "member-1", ProgramID: "prog-Foundation", PerformedBy: "user-1"})
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.ApproveApplication(context.Background(), dto.ApproveApplicationRequest{ApplicationID: app.ID, CohortID: "cohort-Workers", ApproverID: "admin-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, models.ApplicationStatusPending, f.state.applications[app.ID].Status)
	assert.Empty(t, f.state.students)
}

func TestWorkflowApproveMissingApplication(t *testing.T) {
	f := newWorkflowFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.ApproveApplication(context.Background(), dto.ApproveApplicationRequest{ApplicationID: "app-404", CohortID: "cohort-Foundation", ApproverID: "admin-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestWorkflowApproveUnknownMember(t *testing.T) {
	f := newWorkflowFixture(t)
	f.state.applications["app-ghost"] = &models.Application{
		ID:        "app-ghost",
		MemberID:  "ghost",
		ProgramID: "prog-Foundation",
		Status:    models.ApplicationStatusPending,
	}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.ApproveApplication(context.Background(), dto.ApproveApplicationRequest{ApplicationID: "app-ghost", CohortID: "cohort-Foundation", ApproverID: "admin-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.True(t, appErrors.IsUserFacing(err))
	assert.Empty(t, f.state.students)
	assert.Zero(t, f.audit.count(models.AuditActionApproveApplication))
}

// racingEnrollmentStub hides the active enrollment, as if another writer opened it after the read.
type racingEnrollmentStub struct{ enrollmentStub }

func (e racingEnrollmentStub) FindActiveByStudent(ctx context.Context, tx *sqlx.Tx, studentID string) (*models.Enrollment, error) {
	return nil, nil
}

func TestWorkflowApproveConcurrentEnrollmentConflicts(t *testing.T) {
	f := newWorkflowFixture(t)
	enrolled := f.enroll(t, "member-1", "Foundation")

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	app, err := f.svc.Apply(context.Background(), dto.ApplyRequest{MemberID: "member-1", ProgramID: "prog-Discipleship", PerformedBy: "user-1"})
	require.NoError(t, err)

	f.svc.stores.Enrollments = racingEnrollmentStub{enrollmentStub{f.state}}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.ApproveApplication(context.Background(), dto.ApproveApplicationRequest{ApplicationID: app.ID, CohortID: "cohort-Discipleship", ApproverID: "admin-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	active := f.state.activeEnrollments(enrolled.Student.ID)
	require.Len(t, active, 1)
	assert.Equal(t, "cohort-Foundation", active[0].CohortID)
	assert.Equal(t, 1, f.audit.count(models.AuditActionApproveApplication))
}

func TestWorkflowRejectApplication(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	app, err := f.svc.Apply(ctx, dto.ApplyRequest{MemberID: "member-2", ProgramID: "prog-Foundation", PerformedBy: "user-2"})
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	rejected, err := f.svc.RejectApplication(ctx, dto.RejectApplicationRequest{ApplicationID: app.ID, Reason: "intake closed", ApproverID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusRejected, rejected.Status)
	require.NotNil(t, rejected.Remarks)
	assert.Equal(t, "intake closed", *rejected.Remarks)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.ApproveApplication(ctx, dto.ApproveApplicationRequest{ApplicationID: app.ID, CohortID: "cohort-Foundation", ApproverID: "admin-1"})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.Equal(t, 1, f.audit.count(models.AuditActionRejectApplication))
}

func TestWorkflowRecordAttendanceUpsertsWithoutAudit(t *testing.T) {
	f := newWorkflowFixture(t)
	enrolled := f.enroll(t, "member-1", "Foundation")
	before := len(f.audit.actions)

	req := dto.RecordAttendanceRequest{
		LessonID:   "lesson-1",
		StudentID:  enrolled.Student.ID,
		CohortID:   "cohort-Foundation",
		Status:     models.AttendanceAbsent,
		Date:       "2026-06-07",
		RecorderID: "instructor-1",
	}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	first, err := f.svc.RecordAttendance(context.Background(), req)
	require.NoError(t, err)

	req.Status = models.AttendanceExcused
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	second, err := f.svc.RecordAttendance(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	require.Len(t, f.state.attendance, 1)
	for _, record := range f.state.attendance {
		assert.Equal(t, models.AttendanceExcused, record.Status)
		assert.Equal(t, time.Date(2026, 6, 7, 0, 0, 0, 0, time.UTC), record.LessonDate)
	}
	assert.Len(t, f.audit.actions, before)
}

func TestWorkflowRecordAttendanceRejectsUnknownStatus(t *testing.T) {
	f := newWorkflowFixture(t)
	_, err := f.svc.RecordAttendance(context.Background(), dto.RecordAttendanceRequest{
		LessonID: "lesson-1", StudentID: "student-1", CohortID: "cohort-Foundation",
		Status: "sleeping", Date: "2026-06-07", RecorderID: "instructor-1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestWorkflowSubmitExam(t *testing.T) {
	f := newWorkflowFixture(t)
	enrolled := f.enroll(t, "member-1", "Foundation")

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	result, err := f.svc.SubmitExam(context.Background(), dto.SubmitExamRequest{
		ExamID: "exam-1", StudentID: enrolled.Student.ID, CohortID: "cohort-Foundation", Score: floatPtr(49.5), GraderID: "instructor-1",
	})
	require.NoError(t, err)
	assert.False(t, result.Passed)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	result, err = f.svc.SubmitExam(context.Background(), dto.SubmitExamRequest{
		ExamID: "exam-1", StudentID: enrolled.Student.ID, CohortID: "cohort-Foundation", Score: floatPtr(50), GraderID: "instructor-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Len(t, f.state.exams, 1)
	assert.Equal(t, 2, f.audit.count(models.AuditActionSubmitExam))

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.SubmitExam(context.Background(), dto.SubmitExamRequest{
		ExamID: "exam-1", StudentID: "student-404", CohortID: "cohort-Foundation", Score: floatPtr(80), GraderID: "instructor-1",
	})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func promoteRequest(studentID, target string, privilege models.Privilege) dto.PromoteStudentRequest {
	return dto.PromoteStudentRequest{
		StudentID:            studentID,
		TargetProgramID:      "prog-" + target,
		TargetProgramName:    target,
		AttendancePercentage: floatPtr(80),
		ExamAverage:          floatPtr(72),
		ExamsPassed:          boolPtr(true),
		ApproverID:           "admin-1",
		ApproverPrivilege:    privilege,
	}
}

func TestWorkflowPromoteSingleStep(t *testing.T) {
	f := newWorkflowFixture(t)
	enrolled := f.enroll(t, "member-1", "Foundation")

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	result, err := f.svc.PromoteStudent(context.Background(), promoteRequest(enrolled.Student.ID, "Discipleship", models.PrivilegeAdministrator))
	require.NoError(t, err)
	assert.Equal(t, "Foundation", result.FromProgram)
	assert.Equal(t, "Discipleship", result.ToProgram)
	assert.Equal(t, "prog-Discipleship", f.state.students[enrolled.Student.ID].CurrentProgramID)
	assert.Len(t, f.state.promotions, 1)

	require.Equal(t, 1, f.audit.count(models.AuditActionPromoteStudent))
	last := f.audit.meta[len(f.audit.meta)-1]
	assert.Equal(t, "Foundation", last["from_program"])
	assert.Equal(t, "Discipleship", last["to_program"])
}

func TestWorkflowPromoteSkipRejectedWithoutWrites(t *testing.T) {
	f := newWorkflowFixture(t)
	enrolled := f.enroll(t, "member-1", "Foundation")

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.PromoteStudent(context.Background(), promoteRequest(enrolled.Student.ID, "Workers", models.PrivilegeAdministrator))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, err.Error(), "invalid promotion jump")

	assert.Empty(t, f.state.promotions)
	assert.Equal(t, "prog-Foundation", f.state.students[enrolled.Student.ID].CurrentProgramID)
	assert.Zero(t, f.audit.count(models.AuditActionPromoteStudent))
}

func TestWorkflowPromoteToTerminalLevelNeedsHighest(t *testing.T) {
	f := newWorkflowFixture(t)
	enrolled := f.enroll(t, "member-1", "Leadership")

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.PromoteStudent(context.Background(), promoteRequest(enrolled.Student.ID, "Pastoral", models.PrivilegeAdministrator))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInsufficientPrivilege))
	assert.Empty(t, f.state.promotions)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err = f.svc.PromoteStudent(context.Background(), promoteRequest(enrolled.Student.ID, "Pastoral", models.PrivilegeHighest))
	require.NoError(t, err)
	assert.Equal(t, "prog-Pastoral", f.state.students[enrolled.Student.ID].CurrentProgramID)
}

func TestWorkflowPromoteRejectsMismatchedTargetName(t *testing.T) {
	f := newWorkflowFixture(t)
	req := promoteRequest("student-1", "Discipleship", models.PrivilegeHighest)
	req.TargetProgramName = "Workers"

	_, err := f.svc.PromoteStudent(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestWorkflowPromoteStaleVersionConflicts(t *testing.T) {
	f := newWorkflowFixture(t)
	enrolled := f.enroll(t, "member-1", "Foundation")
	f.svc.stores.Students = staleStudentStub{studentStub{f.state}}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.PromoteStudent(context.Background(), promoteRequest(enrolled.Student.ID, "Discipleship", models.PrivilegeAdministrator))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

// staleStudentStub reports a version older than the stored row.
type staleStudentStub struct{ studentStub }

func (s staleStudentStub) LockDetail(ctx context.Context, tx *sqlx.Tx, id string) (*models.StudentDetail, error) {
	detail, err := s.studentStub.LockDetail(ctx, tx, id)
	if err == nil {
		detail.Version--
	}
	return detail, err
}

func graduateRequest(studentID, program string, level int) dto.GraduateStudentRequest {
	return dto.GraduateStudentRequest{
		StudentID:    studentID,
		ProgramID:    "prog-" + program,
		ProgramName:  program,
		CohortID:     "cohort-" + program,
		DistrictName: "Nairobi East",
		LevelOrder:   intPtr(level),
		IssuerID:     "admin-1",
	}
}

func TestWorkflowGraduateIsOneTime(t *testing.T) {
	f := newWorkflowFixture(t)
	enrolled := f.enroll(t, "member-1", "Leadership")
	ctx := context.Background()

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	result, err := f.svc.GraduateStudent(ctx, graduateRequest(enrolled.Student.ID, "Leadership", 4))
	require.NoError(t, err)
	require.NotNil(t, result.RoleGranted)
	assert.Equal(t, models.MemberRoleLeader, *result.RoleGranted)
	assert.NotEmpty(t, result.Graduation.CertificateRef)
	assert.Equal(t, "https://files.test/"+result.Graduation.CertificateRef, result.CertificateURL)
	assert.Equal(t, time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC), result.Graduation.GraduatedOn)

	student := f.state.students[enrolled.Student.ID]
	assert.Equal(t, models.StudentStatusCompleted, student.Status)
	assert.Equal(t, 4, student.HighestCompletedLevel)
	assert.Empty(t, f.state.activeEnrollments(student.ID))
	assert.Equal(t, models.MemberRoleLeader, f.state.members["member-1"].Role)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.GraduateStudent(ctx, graduateRequest(enrolled.Student.ID, "Leadership", 4))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	assert.Len(t, f.state.graduations, 1)
	assert.Equal(t, 1, f.artifacts.count())
	assert.Equal(t, 1, f.state.roleWrites)
	assert.Equal(t, 1, f.audit.count(models.AuditActionGraduateStudent))
	last := f.audit.meta[len(f.audit.meta)-1]
	assert.Equal(t, result.Graduation.CertificateRef, last["certificate_ref"])
}

func TestWorkflowGraduateNeverLowersHighestLevel(t *testing.T) {
	f := newWorkflowFixture(t)
	enrolled := f.enroll(t, "member-1", "Workers")
	ctx := context.Background()

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err := f.svc.GraduateStudent(ctx, graduateRequest(enrolled.Student.ID, "Workers", 3))
	require.NoError(t, err)

	again := f.enroll(t, "member-1", "Foundation")
	assert.Equal(t, enrolled.Student.ID, again.Student.ID)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	result, err := f.svc.GraduateStudent(ctx, graduateRequest(enrolled.Student.ID, "Foundation", 1))
	require.NoError(t, err)
	assert.Nil(t, result.RoleGranted)

	assert.Equal(t, 3, f.state.students[enrolled.Student.ID].HighestCompletedLevel)
	assert.Zero(t, f.state.roleWrites)
}

func TestWorkflowGraduateRequiresActiveEnrollment(t *testing.T) {
	f := newWorkflowFixture(t)
	enrolled := f.enroll(t, "member-1", "Workers")

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.GraduateStudent(context.Background(), graduateRequest(enrolled.Student.ID, "Foundation", 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	assert.Zero(t, f.artifacts.puts)
	assert.Empty(t, f.state.graduations)
	assert.Equal(t, models.StudentStatusEnrolled, f.state.students[enrolled.Student.ID].Status)
	active := f.state.activeEnrollments(enrolled.Student.ID)
	require.Len(t, active, 1)
	assert.Equal(t, "cohort-Workers", active[0].CohortID)
}

func TestWorkflowGraduateRemovesCertificateOnFailure(t *testing.T) {
	f := newWorkflowFixture(t)
	enrolled := f.enroll(t, "member-1", "Foundation")
	f.state.createGraduationErr = errors.New("connection reset")

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.GraduateStudent(context.Background(), graduateRequest(enrolled.Student.ID, "Foundation", 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))

	assert.Zero(t, f.artifacts.count())
	assert.Equal(t, 1, f.artifacts.puts)
	assert.Equal(t, models.StudentStatusEnrolled, f.state.students[enrolled.Student.ID].Status)
	assert.Zero(t, f.audit.count(models.AuditActionGraduateStudent))
}

func TestWorkflowGraduateValidatesLevelOrder(t *testing.T) {
	f := newWorkflowFixture(t)

	_, err := f.svc.GraduateStudent(context.Background(), graduateRequest("student-1", "Foundation", 2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	req := graduateRequest("student-1", "Foundation", 1)
	req.CohortID = "cohort-Pastoral"
	_, err = f.svc.GraduateStudent(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Zero(t, f.artifacts.puts)
}

func TestWorkflowAuditCompleteness(t *testing.T) {
	f := newWorkflowFixture(t)
	enrolled := f.enroll(t, "member-1", "Foundation")
	ctx := context.Background()

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err := f.svc.RecordAttendance(ctx, dto.RecordAttendanceRequest{
		LessonID: "lesson-1", StudentID: enrolled.Student.ID, CohortID: "cohort-Foundation",
		Status: models.AttendancePresent, Date: "2026-06-07", RecorderID: "instructor-1",
	})
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err = f.svc.SubmitExam(ctx, dto.SubmitExamRequest{
		ExamID: "exam-1", StudentID: enrolled.Student.ID, CohortID: "cohort-Foundation", Score: floatPtr(88), GraderID: "instructor-1",
	})
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err = f.svc.PromoteStudent(ctx, promoteRequest(enrolled.Student.ID, "Discipleship", models.PrivilegeAdministrator))
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err = f.svc.GraduateStudent(ctx, graduateRequest(enrolled.Student.ID, "Foundation", 1))
	require.NoError(t, err)

	assert.Equal(t, []string{
		models.AuditActionApply,
		models.AuditActionApproveApplication,
		models.AuditActionSubmitExam,
		models.AuditActionPromoteStudent,
		models.AuditActionGraduateStudent,
	}, f.audit.actions)
}

func TestWorkflowCertificateURLRequiresReference(t *testing.T) {
	f := newWorkflowFixture(t)
	_, err := f.svc.CertificateURL("")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestTerminalCredentialPolicy(t *testing.T) {
	policy := NewTerminalCredentialPolicy(map[string]string{"Pastoral": " Pastor "})
	role, ok := policy.RoleFor("Pastoral")
	assert.True(t, ok)
	assert.Equal(t, models.MemberRolePastor, role)
	_, ok = policy.RoleFor("Leadership")
	assert.False(t, ok)

	role, ok = NewTerminalCredentialPolicy(nil).RoleFor("Leadership")
	assert.True(t, ok)
	assert.Equal(t, models.MemberRoleLeader, role)
}
