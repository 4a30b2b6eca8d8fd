package dto

import (
	"encoding/json"

	"github.com/noah-isme/bibleschool-api/internal/models"
)

// Command names accepted by the dispatch endpoint.
const (
	CommandApply              = "APPLY"
	CommandApproveApplication = "APPROVE_APPLICATION"
	CommandRejectApplication  = "REJECT_APPLICATION"
	CommandRecordAttendance   = "RECORD_ATTENDANCE"
	CommandSubmitExam         = "SUBMIT_EXAM"
	CommandPromoteStudent     = "PROMOTE_STUDENT"
	CommandGraduateStudent    = "GRADUATE_STUDENT"
)

// CommandEnvelope is the body of POST /commands.
type CommandEnvelope struct {
	Command string          `json:"command" validate:"required"`
	Data    json.RawMessage `json:"data"`
}

// ApplyRequest asks to join a program.
type ApplyRequest struct {
	MemberID    string  `json:"member_id" validate:"required"`
	ProgramID   string  `json:"program_id" validate:"required"`
	BranchID    *string `json:"branch_id,omitempty"`
	Remarks     *string `json:"remarks,omitempty" validate:"omitempty,max=1000"`
	PerformedBy string  `json:"-" validate:"required"`
}

// ApproveApplicationRequest enrolls an applicant into a cohort.
type ApproveApplicationRequest struct {
	ApplicationID string `json:"application_id" validate:"required"`
	CohortID      string `json:"cohort_id" validate:"required"`
	ApproverID    string `json:"-" validate:"required"`
}

// RejectApplicationRequest declines a pending application.
type RejectApplicationRequest struct {
	ApplicationID string `json:"application_id" validate:"required"`
	Reason        string `json:"reason" validate:"required,max=1000"`
	ApproverID    string `json:"-" validate:"required"`
}

// RecordAttendanceRequest records or overwrites one lesson attendance mark.
type RecordAttendanceRequest struct {
	LessonID   string                  `json:"lesson_id" validate:"required"`
	StudentID  string                  `json:"student_id" validate:"required"`
	CohortID   string                  `json:"cohort_id" validate:"required"`
	Status     models.AttendanceStatus `json:"status" validate:"required,oneof=present absent excused late"`
	Date       string                  `json:"date" validate:"required,datetime=2006-01-02"`
	RecorderID string                  `json:"-" validate:"required"`
}

// SubmitExamRequest records or overwrites an exam score.
type SubmitExamRequest struct {
	ExamID    string   `json:"exam_id" validate:"required"`
	StudentID string   `json:"student_id" validate:"required"`
	CohortID  string   `json:"cohort_id" validate:"required"`
	Score     *float64 `json:"score" validate:"required,gte=0,lte=100"`
	Remarks   *string  `json:"remarks,omitempty" validate:"omitempty,max=1000"`
	GraderID  string   `json:"-" validate:"required"`
}

// PromoteStudentRequest moves a student to the next program.
type PromoteStudentRequest struct {
	StudentID            string           `json:"student_id" validate:"required"`
	TargetProgramID      string           `json:"target_program_id" validate:"required"`
	TargetProgramName    string           `json:"target_program_name" validate:"required"`
	AttendancePercentage *float64         `json:"attendance_percentage" validate:"required,gte=0,lte=100"`
	ExamAverage          *float64         `json:"exam_average" validate:"required,gte=0,lte=100"`
	ExamsPassed          *bool            `json:"exams_passed" validate:"required"`
	Remarks              *string          `json:"remarks,omitempty" validate:"omitempty,max=1000"`
	ApproverID           string           `json:"-" validate:"required"`
	ApproverPrivilege    models.Privilege `json:"-"`
}

// GraduateStudentRequest completes a program and issues its certificate.
type GraduateStudentRequest struct {
	StudentID      string `json:"student_id" validate:"required"`
	ProgramID      string `json:"program_id" validate:"required"`
	ProgramName    string `json:"program_name" validate:"required"`
	CohortID       string `json:"cohort_id" validate:"required"`
	DistrictName   string `json:"district_name" validate:"max=200"`
	LevelOrder     *int   `json:"level_order" validate:"required,gte=0"`
	GraduationDate string `json:"graduation_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	IssuerID       string `json:"-" validate:"required"`
}

// ApprovalResult is returned by APPROVE_APPLICATION.
type ApprovalResult struct {
	Application *models.Application `json:"application"`
	Student     *models.Student     `json:"student"`
	Enrollment  *models.Enrollment  `json:"enrollment"`
}

// PromotionResult is returned by PROMOTE_STUDENT.
type PromotionResult struct {
	Promotion   *models.PromotionRecord `json:"promotion"`
	FromProgram string                  `json:"from_program"`
	ToProgram   string                  `json:"to_program"`
}

// GraduationResult is returned by GRADUATE_STUDENT.
type GraduationResult struct {
	Graduation     *models.GraduationRecord `json:"graduation"`
	CertificateURL string                   `json:"certificate_url,omitempty"`
	RoleGranted    *models.MemberRole       `json:"role_granted,omitempty"`
}
