package models

import "time"

// StudentStatus is the lifecycle state of a Student.
type StudentStatus string

const (
	StudentStatusEnrolled  StudentStatus = "enrolled"
	StudentStatusCompleted StudentStatus = "completed"
	StudentStatusWithdrawn StudentStatus = "withdrawn"
)

// Student is the training identity of a member; one per member.
type Student struct {
	ID                    string        `db:"id" json:"id"`
	MemberID              string        `db:"member_id" json:"member_id"`
	CurrentProgramID      string        `db:"current_program_id" json:"current_program_id"`
	CurrentCohortID       *string       `db:"current_cohort_id" json:"current_cohort_id,omitempty"`
	HighestCompletedLevel int           `db:"highest_completed_level" json:"highest_completed_level"`
	Status                StudentStatus `db:"status" json:"status"`
	Version               int           `db:"version" json:"version"`
	CreatedAt             time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentDetail joins the member display name and current program name.
type StudentDetail struct {
	Student
	MemberName         string `db:"member_name" json:"member_name"`
	CurrentProgramName string `db:"current_program_name" json:"current_program_name"`
}
