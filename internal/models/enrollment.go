package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusWithdrawn EnrollmentStatus = "withdrawn"
)

// Enrollment binds a Student to a Cohort.
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	CohortID  string           `db:"cohort_id" json:"cohort_id"`
	Status    EnrollmentStatus `db:"status" json:"status"`
	JoinedAt  time.Time        `db:"joined_at" json:"joined_at"`
	ClosedAt  *time.Time       `db:"closed_at" json:"closed_at,omitempty"`
}
