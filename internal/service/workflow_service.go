package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/bibleschool-api/internal/dto"
	"github.com/noah-isme/bibleschool-api/internal/models"
	"github.com/noah-isme/bibleschool-api/internal/repository"
	appErrors "github.com/noah-isme/bibleschool-api/pkg/errors"
)

// DefaultExamPassMark is the minimum score counted as a pass.
const DefaultExamPassMark = 50.0

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type programReader interface {
	FindByID(ctx context.Context, id string) (*models.Program, error)
	FindCohort(ctx context.Context, id string) (*models.Cohort, error)
}

type applicationStore interface {
	ExistsPending(ctx context.Context, tx *sqlx.Tx, memberID, programID string) (bool, error)
	Create(ctx context.Context, tx *sqlx.Tx, app *models.Application) error
	LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Application, error)
	MarkReviewed(ctx context.Context, tx *sqlx.Tx, id string, status models.ApplicationStatus, reviewerID string, reviewedAt time.Time, remarks *string) error
}

type studentStore interface {
	UpsertForEnrollment(ctx context.Context, tx *sqlx.Tx, memberID, programID, cohortID string) (*models.Student, error)
	LockDetail(ctx context.Context, tx *sqlx.Tx, id string) (*models.StudentDetail, error)
	UpdateProgram(ctx context.Context, tx *sqlx.Tx, id, programID string, expectedVersion int) error
	MarkCompleted(ctx context.Context, tx *sqlx.Tx, id string, levelOrder, expectedVersion int) error
}

type enrollmentStore interface {
	FindActiveByStudent(ctx context.Context, tx *sqlx.Tx, studentID string) (*models.Enrollment, error)
	Create(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error
	Close(ctx context.Context, tx *sqlx.Tx, id string, status models.EnrollmentStatus, closedAt time.Time) error
	CompleteActiveInCohort(ctx context.Context, tx *sqlx.Tx, studentID, cohortID string, closedAt time.Time) (int64, error)
}

type recordStore interface {
	UpsertAttendance(ctx context.Context, tx *sqlx.Tx, record *models.AttendanceRecord) error
	UpsertExamResult(ctx context.Context, tx *sqlx.Tx, result *models.ExamResult) error
}

type progressionStore interface {
	CreatePromotion(ctx context.Context, tx *sqlx.Tx, record *models.PromotionRecord) error
	GraduationExists(ctx context.Context, tx *sqlx.Tx, studentID, programID string) (bool, error)
	CreateGraduation(ctx context.Context, tx *sqlx.Tx, record *models.GraduationRecord) error
}

type memberRoleWriter interface {
	UpdateRole(ctx context.Context, tx *sqlx.Tx, memberID string, role models.MemberRole) (bool, error)
}

type auditAppender interface {
	Append(ctx context.Context, action string, subjectStudentID *string, performedBy string, metadata map[string]interface{})
}

type credentialIssuer interface {
	Issue(ctx context.Context, req CertificateRequest) (string, error)
	PublicURL(ref string) (string, error)
	Remove(ctx context.Context, ref string)
}

// WorkflowStores groups the persistence collaborators of the workflow.
type WorkflowStores struct {
	Programs     programReader
	Applications applicationStore
	Students     studentStore
	Enrollments  enrollmentStore
	Records      recordStore
	Progression  progressionStore
	Members      memberRoleWriter
}

// WorkflowConfig tunes the academic rules.
type WorkflowConfig struct {
	ExamPassMark  float64
	TerminalRoles TerminalCredentialPolicy
}

// WorkflowService orchestrates the Bible School lifecycle from application to graduation.
// Every mutating operation runs in a single transaction; audit entries are appended after commit.
type WorkflowService struct {
	tx          txProvider
	stores      WorkflowStores
	rules       *PromotionRules
	credentials credentialIssuer
	audit       auditAppender
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	config      WorkflowConfig
	now         func() time.Time
}

// NewWorkflowService wires the workflow dependencies.
func NewWorkflowService(
	tx txProvider,
	stores WorkflowStores,
	rules *PromotionRules,
	credentials credentialIssuer,
	audit auditAppender,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg WorkflowConfig,
) *WorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if rules == nil {
		rules = NewPromotionRules(LevelLadder{}, DefaultMinAttendance)
	}
	if cfg.ExamPassMark <= 0 {
		cfg.ExamPassMark = DefaultExamPassMark
	}
	if cfg.TerminalRoles == nil {
		cfg.TerminalRoles = DefaultTerminalCredentialPolicy()
	}
	return &WorkflowService{
		tx:          tx,
		stores:      stores,
		rules:       rules,
		credentials: credentials,
		audit:       audit,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		config:      cfg,
		now:         time.Now,
	}
}

// Apply records a member's pending application to a program.
func (s *WorkflowService) Apply(ctx context.Context, req dto.ApplyRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	program, err := s.loadProgram(ctx, req.ProgramID, "program not found")
	if err != nil {
		return nil, err
	}

	app := &models.Application{
		MemberID:  req.MemberID,
		ProgramID: program.ID,
		BranchID:  req.BranchID,
		Remarks:   req.Remarks,
		Status:    models.ApplicationStatusPending,
		CreatedAt: s.now().UTC(),
	}
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		exists, err := s.stores.Applications.ExistsPending(ctx, tx, req.MemberID, program.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to check pending applications")
		}
		if exists {
			return appErrors.Clone(appErrors.ErrValidation, "pending application already exists")
		}
		if err := s.stores.Applications.Create(ctx, tx, app); err != nil {
			switch {
			case errors.Is(err, repository.ErrDuplicatePendingApplication):
				return appErrors.Clone(appErrors.ErrValidation, "pending application already exists")
			case errors.Is(err, repository.ErrMissingReference):
				return appErrors.Clone(appErrors.ErrNotFound, "member not found")
			}
			return appErrors.Internal(err, "failed to create application")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, models.AuditActionApply, nil, req.PerformedBy, map[string]interface{}{
		"application_id": app.ID,
		"member_id":      app.MemberID,
		"program_id":     program.ID,
		"program_name":   program.Name,
	})
	return app, nil
}

// ApproveApplication approves a pending application and enrolls the member in the cohort.
// The student row is found-or-created atomically on member_id.
func (s *WorkflowService) ApproveApplication(ctx context.Context, req dto.ApproveApplicationRequest) (*dto.ApprovalResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approval payload")
	}
	cohort, err := s.loadCohort(ctx, req.CohortID)
	if err != nil {
		return nil, err
	}

	result := &dto.ApprovalResult{}
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		app, err := s.lockPendingApplication(ctx, tx, req.ApplicationID)
		if err != nil {
			return err
		}
		if cohort.ProgramID != app.ProgramID {
			return appErrors.Clone(appErrors.ErrValidation, "cohort does not belong to the application's program")
		}

		now := s.now().UTC()
		if err := s.stores.Applications.MarkReviewed(ctx, tx, app.ID, models.ApplicationStatusApproved, req.ApproverID, now, nil); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return appErrors.Clone(appErrors.ErrConflict, "application already reviewed")
			}
			return appErrors.Internal(err, "failed to approve application")
		}
		app.Status = models.ApplicationStatusApproved
		app.ReviewedBy = &req.ApproverID
		app.ReviewedAt = &now

		student, err := s.stores.Students.UpsertForEnrollment(ctx, tx, app.MemberID, app.ProgramID, cohort.ID)
		if err != nil {
			switch {
			case errors.Is(err, repository.ErrMissingReference):
				return appErrors.Clone(appErrors.ErrNotFound, "member not found")
			case errors.Is(err, repository.ErrVersionConflict):
				return appErrors.Clone(appErrors.ErrConflict, "student was modified concurrently, retry")
			}
			return appErrors.Internal(err, "failed to enroll student")
		}

		enrollment, err := s.openEnrollment(ctx, tx, student.ID, cohort.ID, now)
		if err != nil {
			return err
		}

		result.Application = app
		result.Student = student
		result.Enrollment = enrollment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, models.AuditActionApproveApplication, &result.Student.ID, req.ApproverID, map[string]interface{}{
		"application_id": result.Application.ID,
		"member_id":      result.Application.MemberID,
		"program_id":     result.Application.ProgramID,
		"cohort_id":      cohort.ID,
		"enrollment_id":  result.Enrollment.ID,
	})
	return result, nil
}

// RejectApplication declines a pending application with a reason.
func (s *WorkflowService) RejectApplication(ctx context.Context, req dto.RejectApplicationRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rejection payload")
	}

	var app *models.Application
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		app, err = s.lockPendingApplication(ctx, tx, req.ApplicationID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := s.stores.Applications.MarkReviewed(ctx, tx, app.ID, models.ApplicationStatusRejected, req.ApproverID, now, &req.Reason); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return appErrors.Clone(appErrors.ErrConflict, "application already reviewed")
			}
			return appErrors.Internal(err, "failed to reject application")
		}
		app.Status = models.ApplicationStatusRejected
		app.ReviewedBy = &req.ApproverID
		app.ReviewedAt = &now
		app.Remarks = &req.Reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, models.AuditActionRejectApplication, nil, req.ApproverID, map[string]interface{}{
		"application_id": app.ID,
		"member_id":      app.MemberID,
		"program_id":     app.ProgramID,
		"reason":         req.Reason,
	})
	return app, nil
}

// RecordAttendance upserts a lesson attendance mark. Attendance is high volume and is not audited.
func (s *WorkflowService) RecordAttendance(ctx context.Context, req dto.RecordAttendanceRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	lessonDate, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson date")
	}

	record := &models.AttendanceRecord{
		LessonID:   req.LessonID,
		StudentID:  req.StudentID,
		CohortID:   req.CohortID,
		Status:     req.Status,
		LessonDate: lessonDate,
		RecordedBy: req.RecorderID,
		UpdatedAt:  s.now().UTC(),
	}
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.stores.Records.UpsertAttendance(ctx, tx, record); err != nil {
			if errors.Is(err, repository.ErrMissingReference) {
				return appErrors.Clone(appErrors.ErrNotFound, "student or cohort not found")
			}
			return appErrors.Internal(err, "failed to record attendance")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// SubmitExam upserts an exam result and audits it.
func (s *WorkflowService) SubmitExam(ctx context.Context, req dto.SubmitExamRequest) (*models.ExamResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}

	result := &models.ExamResult{
		ExamID:    req.ExamID,
		StudentID: req.StudentID,
		CohortID:  req.CohortID,
		Score:     *req.Score,
		Remarks:   req.Remarks,
		GradedBy:  req.GraderID,
		GradedAt:  s.now().UTC(),
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.stores.Records.UpsertExamResult(ctx, tx, result); err != nil {
			if errors.Is(err, repository.ErrMissingReference) {
				return appErrors.Clone(appErrors.ErrNotFound, "student or cohort not found")
			}
			return appErrors.Internal(err, "failed to submit exam result")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Passed = result.Score >= s.config.ExamPassMark

	s.emitAudit(ctx, models.AuditActionSubmitExam, &result.StudentID, req.GraderID, map[string]interface{}{
		"exam_id":   result.ExamID,
		"cohort_id": result.CohortID,
		"score":     result.Score,
		"passed":    result.Passed,
	})
	return result, nil
}

// PromoteStudent moves a student to the target program when the promotion rules admit it.
// A rejection performs no writes.
func (s *WorkflowService) PromoteStudent(ctx context.Context, req dto.PromoteStudentRequest) (*dto.PromotionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid promotion payload")
	}
	target, err := s.loadProgram(ctx, req.TargetProgramID, "target program not found")
	if err != nil {
		return nil, err
	}
	if target.Name != req.TargetProgramName {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target program name does not match program")
	}

	var (
		record   *models.PromotionRecord
		fromName string
	)
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		student, err := s.lockStudent(ctx, tx, req.StudentID)
		if err != nil {
			return err
		}
		fromName = student.CurrentProgramName

		rejection := s.rules.ValidatePromotion(PromotionContext{
			AttendancePercentage: *req.AttendancePercentage,
			ExamsPassed:          *req.ExamsPassed,
			CurrentLevelName:     student.CurrentProgramName,
			TargetLevelName:      target.Name,
			CallerPrivilege:      req.ApproverPrivilege,
		})
		if rejection != nil {
			s.metrics.RecordPromotionDecision(string(rejection.Rule))
			return rejection.AsError()
		}
		s.metrics.RecordPromotionDecision("accepted")

		record = &models.PromotionRecord{
			StudentID:            student.ID,
			FromProgramID:        student.CurrentProgramID,
			ToProgramID:          target.ID,
			ApprovedBy:           req.ApproverID,
			AttendancePercentage: *req.AttendancePercentage,
			ExamAverage:          *req.ExamAverage,
			Remarks:              req.Remarks,
			CreatedAt:            s.now().UTC(),
		}
		if err := s.stores.Progression.CreatePromotion(ctx, tx, record); err != nil {
			return appErrors.Internal(err, "failed to record promotion")
		}
		if err := s.stores.Students.UpdateProgram(ctx, tx, student.ID, target.ID, student.Version); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return appErrors.Clone(appErrors.ErrConflict, "student was modified concurrently, retry")
			}
			return appErrors.Internal(err, "failed to update student program")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, models.AuditActionPromoteStudent, &record.StudentID, req.ApproverID, map[string]interface{}{
		"promotion_id":          record.ID,
		"from_program":          fromName,
		"to_program":            target.Name,
		"from_program_id":       record.FromProgramID,
		"to_program_id":         record.ToProgramID,
		"attendance_percentage": record.AttendancePercentage,
		"exam_average":          record.ExamAverage,
		"approver_privilege":    req.ApproverPrivilege.String(),
	})
	return &dto.PromotionResult{Promotion: record, FromProgram: fromName, ToProgram: target.Name}, nil
}

// GraduateStudent records a one-time graduation for a student actively enrolled in the cohort,
// issues the certificate, completes the student and propagates the terminal credential.
// A stored certificate is removed if the transaction fails.
func (s *WorkflowService) GraduateStudent(ctx context.Context, req dto.GraduateStudentRequest) (*dto.GraduationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid graduation payload")
	}
	program, err := s.loadProgram(ctx, req.ProgramID, "program not found")
	if err != nil {
		return nil, err
	}
	if program.Name != req.ProgramName {
		return nil, appErrors.Clone(appErrors.ErrValidation, "program name does not match program")
	}
	if *req.LevelOrder != program.LevelOrder {
		return nil, appErrors.Clone(appErrors.ErrValidation, "level order does not match program")
	}
	cohort, err := s.loadCohort(ctx, req.CohortID)
	if err != nil {
		return nil, err
	}
	if cohort.ProgramID != program.ID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cohort does not belong to the program")
	}
	graduatedOn, err := s.graduationDate(req.GraduationDate)
	if err != nil {
		return nil, err
	}

	var (
		record  *models.GraduationRecord
		granted *models.MemberRole
		certRef string
	)
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		student, err := s.lockStudent(ctx, tx, req.StudentID)
		if err != nil {
			return err
		}
		exists, err := s.stores.Progression.GraduationExists(ctx, tx, student.ID, program.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to check graduation")
		}
		if exists {
			return appErrors.Clone(appErrors.ErrConflict, "student already graduated from program")
		}
		active, err := s.stores.Enrollments.FindActiveByStudent(ctx, tx, student.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to load enrollment")
		}
		if active == nil || active.CohortID != cohort.ID {
			return appErrors.Clone(appErrors.ErrValidation, "student is not actively enrolled in cohort")
		}

		certRef, err = s.credentials.Issue(ctx, CertificateRequest{
			StudentID:      student.ID,
			StudentName:    student.MemberName,
			ProgramName:    program.Name,
			DistrictName:   req.DistrictName,
			GraduationDate: graduatedOn,
		})
		if err != nil {
			return appErrors.Internal(err, "failed to issue certificate")
		}

		record = &models.GraduationRecord{
			StudentID:      student.ID,
			ProgramID:      program.ID,
			CohortID:       cohort.ID,
			IssuedBy:       req.IssuerID,
			GraduatedOn:    graduatedOn,
			CertificateRef: certRef,
			CreatedAt:      s.now().UTC(),
		}
		if err := s.stores.Progression.CreateGraduation(ctx, tx, record); err != nil {
			if errors.Is(err, repository.ErrDuplicateGraduation) {
				return appErrors.Clone(appErrors.ErrConflict, "student already graduated from program")
			}
			return appErrors.Internal(err, "failed to record graduation")
		}
		if err := s.stores.Students.MarkCompleted(ctx, tx, student.ID, program.LevelOrder, student.Version); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return appErrors.Clone(appErrors.ErrConflict, "student was modified concurrently, retry")
			}
			return appErrors.Internal(err, "failed to complete student")
		}
		closed, err := s.stores.Enrollments.CompleteActiveInCohort(ctx, tx, student.ID, cohort.ID, s.now().UTC())
		if err != nil {
			return appErrors.Internal(err, "failed to close enrollment")
		}
		if closed == 0 {
			return appErrors.Clone(appErrors.ErrConflict, "student enrollment changed concurrently, retry")
		}

		granted, err = s.PropagateTerminalCredential(ctx, tx, student.MemberID, program.Name)
		return err
	})
	if err != nil {
		if certRef != "" {
			s.credentials.Remove(context.WithoutCancel(ctx), certRef)
		}
		return nil, err
	}
	s.metrics.RecordCertificateIssued()

	result := &dto.GraduationResult{Graduation: record, RoleGranted: granted}
	if url, err := s.CertificateURL(record.CertificateRef); err == nil {
		result.CertificateURL = url
	} else {
		s.logger.Warn("failed to sign certificate url", zap.String("certificate_ref", record.CertificateRef), zap.Error(err))
	}

	metadata := map[string]interface{}{
		"graduation_id":   record.ID,
		"program_id":      program.ID,
		"program_name":    program.Name,
		"cohort_id":       cohort.ID,
		"level_order":     program.LevelOrder,
		"certificate_ref": record.CertificateRef,
	}
	if granted != nil {
		metadata["role_granted"] = string(*granted)
	}
	s.emitAudit(ctx, models.AuditActionGraduateStudent, &record.StudentID, req.IssuerID, metadata)
	return result, nil
}

// PropagateTerminalCredential writes the member role earned by completing a terminal program.
// Programs without a mapped role are left alone. Returns the granted role, if any.
func (s *WorkflowService) PropagateTerminalCredential(ctx context.Context, tx *sqlx.Tx, memberID, programName string) (*models.MemberRole, error) {
	role, ok := s.config.TerminalRoles.RoleFor(programName)
	if !ok {
		return nil, nil
	}
	changed, err := s.stores.Members.UpdateRole(ctx, tx, memberID, role)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to propagate member role")
	}
	if !changed {
		s.logger.Info("member already holds terminal role", zap.String("member_id", memberID), zap.String("role", string(role)))
	}
	return &role, nil
}

// CertificateURL resolves a stored certificate reference to a signed download URL.
func (s *WorkflowService) CertificateURL(ref string) (string, error) {
	if ref == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "certificate reference required")
	}
	url, err := s.credentials.PublicURL(ref)
	if err != nil {
		return "", appErrors.Internal(err, "failed to sign certificate url")
	}
	return url, nil
}

func (s *WorkflowService) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Internal(err, "failed to commit transaction")
	}
	return nil
}

func (s *WorkflowService) loadProgram(ctx context.Context, id, notFound string) (*models.Program, error) {
	program, err := s.stores.Programs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, notFound)
		}
		return nil, appErrors.Internal(err, "failed to load program")
	}
	return program, nil
}

func (s *WorkflowService) loadCohort(ctx context.Context, id string) (*models.Cohort, error) {
	cohort, err := s.stores.Programs.FindCohort(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "cohort not found")
		}
		return nil, appErrors.Internal(err, "failed to load cohort")
	}
	return cohort, nil
}

func (s *WorkflowService) lockPendingApplication(ctx context.Context, tx *sqlx.Tx, id string) (*models.Application, error) {
	app, err := s.stores.Applications.LockByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Internal(err, "failed to load application")
	}
	if app.Status != models.ApplicationStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application already reviewed")
	}
	return app, nil
}

func (s *WorkflowService) lockStudent(ctx context.Context, tx *sqlx.Tx, id string) (*models.StudentDetail, error) {
	student, err := s.stores.Students.LockDetail(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	return student, nil
}

// openEnrollment keeps a matching active enrollment, otherwise withdraws the old one and opens a new one.
func (s *WorkflowService) openEnrollment(ctx context.Context, tx *sqlx.Tx, studentID, cohortID string, now time.Time) (*models.Enrollment, error) {
	active, err := s.stores.Enrollments.FindActiveByStudent(ctx, tx, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load enrollment")
	}
	if active != nil && active.CohortID == cohortID {
		return active, nil
	}
	if active != nil {
		if err := s.stores.Enrollments.Close(ctx, tx, active.ID, models.EnrollmentStatusWithdrawn, now); err != nil {
			return nil, appErrors.Internal(err, "failed to close previous enrollment")
		}
	}

	enrollment := &models.Enrollment{
		StudentID: studentID,
		CohortID:  cohortID,
		Status:    models.EnrollmentStatusActive,
		JoinedAt:  now,
	}
	if err := s.stores.Enrollments.Create(ctx, tx, enrollment); err != nil {
		if errors.Is(err, repository.ErrActiveEnrollmentExists) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student enrollment changed concurrently, retry")
		}
		return nil, appErrors.Internal(err, "failed to create enrollment")
	}
	return enrollment, nil
}

func (s *WorkflowService) graduationDate(raw string) (time.Time, error) {
	if raw == "" {
		now := s.now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	date, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid graduation date")
	}
	return date, nil
}

func (s *WorkflowService) emitAudit(ctx context.Context, action string, subjectStudentID *string, performedBy string, metadata map[string]interface{}) {
	if s.audit == nil {
		return
	}
	s.audit.Append(ctx, action, subjectStudentID, performedBy, metadata)
}
