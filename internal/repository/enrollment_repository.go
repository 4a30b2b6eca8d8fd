package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bibleschool-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindActiveByStudent returns the student's active enrollment, or nil when there is none.
func (r *EnrollmentRepository) FindActiveByStudent(ctx context.Context, tx *sqlx.Tx, studentID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, cohort_id, status, joined_at, closed_at FROM enrollments
        WHERE student_id = $1 AND status = $2 FOR UPDATE`
	var enrollment models.Enrollment
	if err := tx.GetContext(ctx, &enrollment, query, studentID, models.EnrollmentStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find active enrollment: %w", err)
	}
	return &enrollment, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.JoinedAt.IsZero() {
		enrollment.JoinedAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	const query = `INSERT INTO enrollments (id, student_id, cohort_id, status, joined_at, closed_at)
        VALUES (:id, :student_id, :cohort_id, :status, :joined_at, :closed_at)`
	if _, err := tx.NamedExecContext(ctx, query, enrollment); err != nil {
		if mapped := classifyConstraint(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Close ends an active enrollment with the given status.
func (r *EnrollmentRepository) Close(ctx context.Context, tx *sqlx.Tx, id string, status models.EnrollmentStatus, closedAt time.Time) error {
	const query = `UPDATE enrollments SET status = $2, closed_at = $3 WHERE id = $1 AND status = $4`
	if _, err := tx.ExecContext(ctx, query, id, status, closedAt, models.EnrollmentStatusActive); err != nil {
		return fmt.Errorf("close enrollment: %w", err)
	}
	return nil
}

// CompleteActiveInCohort closes the student's active enrollment for the cohort, if any.
func (r *EnrollmentRepository) CompleteActiveInCohort(ctx context.Context, tx *sqlx.Tx, studentID, cohortID string, closedAt time.Time) (int64, error) {
	const query = `UPDATE enrollments SET status = $3, closed_at = $4
        WHERE student_id = $1 AND cohort_id = $2 AND status = $5`
	res, err := tx.ExecContext(ctx, query, studentID, cohortID, models.EnrollmentStatusCompleted, closedAt, models.EnrollmentStatusActive)
	if err != nil {
		return 0, fmt.Errorf("complete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("complete enrollment rows: %w", err)
	}
	return affected, nil
}
