package models

import "time"

// PromotionRecord is the immutable evidence of a program change.
type PromotionRecord struct {
	ID                   string    `db:"id" json:"id"`
	StudentID            string    `db:"student_id" json:"student_id"`
	FromProgramID        string    `db:"from_program_id" json:"from_program_id"`
	ToProgramID          string    `db:"to_program_id" json:"to_program_id"`
	ApprovedBy           string    `db:"approved_by" json:"approved_by"`
	AttendancePercentage float64   `db:"attendance_percentage" json:"attendance_percentage"`
	ExamAverage          float64   `db:"exam_average" json:"exam_average"`
	Remarks              *string   `db:"remarks" json:"remarks,omitempty"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

// GraduationRecord is the immutable fact of a completed program; one per (student, program).
type GraduationRecord struct {
	ID             string    `db:"id" json:"id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	ProgramID      string    `db:"program_id" json:"program_id"`
	CohortID       string    `db:"cohort_id" json:"cohort_id"`
	IssuedBy       string    `db:"issued_by" json:"issued_by"`
	GraduatedOn    time.Time `db:"graduated_on" json:"graduated_on"`
	CertificateRef string    `db:"certificate_ref" json:"certificate_ref"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
