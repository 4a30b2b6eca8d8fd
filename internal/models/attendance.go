package models

import "time"

// AttendanceStatus describes a student's presence for a lesson.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceExcused AttendanceStatus = "excused"
	AttendanceLate    AttendanceStatus = "late"
)

// Valid reports whether s is a known attendance status.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceExcused, AttendanceLate:
		return true
	}
	return false
}

// AttendanceRecord is unique per (lesson, student, cohort).
type AttendanceRecord struct {
	ID         string           `db:"id" json:"id"`
	LessonID   string           `db:"lesson_id" json:"lesson_id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	CohortID   string           `db:"cohort_id" json:"cohort_id"`
	Status     AttendanceStatus `db:"status" json:"status"`
	LessonDate time.Time        `db:"lesson_date" json:"lesson_date"`
	RecordedBy string           `db:"recorded_by" json:"recorded_by"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}
