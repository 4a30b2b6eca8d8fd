package models

import "time"

// ApplicationStatus tracks the review state of an application.
type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusApproved ApplicationStatus = "approved"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

// Application is a member's request to join a Program.
type Application struct {
	ID         string            `db:"id" json:"id"`
	MemberID   string            `db:"member_id" json:"member_id"`
	ProgramID  string            `db:"program_id" json:"program_id"`
	BranchID   *string           `db:"branch_id" json:"branch_id,omitempty"`
	Remarks    *string           `db:"remarks" json:"remarks,omitempty"`
	Status     ApplicationStatus `db:"status" json:"status"`
	ReviewedBy *string           `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time        `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
}
