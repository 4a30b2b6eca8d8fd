package models

import "time"

// ExamResult is unique per (exam, student, cohort).
type ExamResult struct {
	ID        string    `db:"id" json:"id"`
	ExamID    string    `db:"exam_id" json:"exam_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CohortID  string    `db:"cohort_id" json:"cohort_id"`
	Score     float64   `db:"score" json:"score"`
	Remarks   *string   `db:"remarks" json:"remarks,omitempty"`
	GradedBy  string    `db:"graded_by" json:"graded_by"`
	GradedAt  time.Time `db:"graded_at" json:"graded_at"`
	Passed    bool      `db:"-" json:"passed"`
}
