package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bibleschool-api/internal/models"
)

// RecordRepository upserts attendance and exam results on their composite keys.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository constructs the repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// UpsertAttendance inserts or replaces the (lesson, student, cohort) attendance row.
func (r *RecordRepository) UpsertAttendance(ctx context.Context, tx *sqlx.Tx, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance_records (id, lesson_id, student_id, cohort_id, status, lesson_date, recorded_by, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (lesson_id, student_id, cohort_id) DO UPDATE SET
            status = EXCLUDED.status,
            lesson_date = EXCLUDED.lesson_date,
            recorded_by = EXCLUDED.recorded_by,
            updated_at = EXCLUDED.updated_at
        RETURNING id`
	if err := tx.GetContext(ctx, &record.ID, query,
		record.ID, record.LessonID, record.StudentID, record.CohortID, record.Status,
		record.LessonDate, record.RecordedBy, record.UpdatedAt,
	); err != nil {
		if mapped := classifyConstraint(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

// UpsertExamResult inserts or replaces the (exam, student, cohort) result row.
func (r *RecordRepository) UpsertExamResult(ctx context.Context, tx *sqlx.Tx, result *models.ExamResult) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if result.GradedAt.IsZero() {
		result.GradedAt = time.Now().UTC()
	}
	const query = `INSERT INTO exam_results (id, exam_id, student_id, cohort_id, score, remarks, graded_by, graded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (exam_id, student_id, cohort_id) DO UPDATE SET
            score = EXCLUDED.score,
            remarks = EXCLUDED.remarks,
            graded_by = EXCLUDED.graded_by,
            graded_at = EXCLUDED.graded_at
        RETURNING id`
	if err := tx.GetContext(ctx, &result.ID, query,
		result.ID, result.ExamID, result.StudentID, result.CohortID, result.Score,
		result.Remarks, result.GradedBy, result.GradedAt,
	); err != nil {
		if mapped := classifyConstraint(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("upsert exam result: %w", err)
	}
	return nil
}
