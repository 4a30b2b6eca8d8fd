package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// AuditAction constants name the recorded workflow transitions.
const (
	AuditActionApply              = "APPLY"
	AuditActionApproveApplication = "APPROVE_APPLICATION"
	AuditActionRejectApplication  = "REJECT_APPLICATION"
	AuditActionSubmitExam         = "SUBMIT_EXAM"
	AuditActionPromoteStudent     = "PROMOTE_STUDENT"
	AuditActionGraduateStudent    = "GRADUATE_STUDENT"
)

// AuditLog represents an append-only audit trail record.
type AuditLog struct {
	ID               string         `db:"id" json:"id"`
	Action           string         `db:"action" json:"action"`
	SubjectStudentID *string        `db:"subject_student_id" json:"subject_student_id,omitempty"`
	PerformedBy      string         `db:"performed_by" json:"performed_by"`
	Metadata         types.JSONText `db:"metadata" json:"metadata"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}
