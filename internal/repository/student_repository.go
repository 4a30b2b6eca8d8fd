package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bibleschool-api/internal/models"
)

// StudentRepository persists student progression state.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// UpsertForEnrollment creates the member's student row or re-enrolls the existing one.
// The unique member_id constraint makes concurrent approvals converge on a single row.
func (r *StudentRepository) UpsertForEnrollment(ctx context.Context, tx *sqlx.Tx, memberID, programID, cohortID string) (*models.Student, error) {
	now := time.Now().UTC()
	const query = `INSERT INTO students (id, member_id, current_program_id, current_cohort_id, highest_completed_level, status, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, 0, $5, 1, $6, $6)
        ON CONFLICT (member_id) DO UPDATE SET
            current_program_id = EXCLUDED.current_program_id,
            current_cohort_id = EXCLUDED.current_cohort_id,
            status = EXCLUDED.status,
            version = students.version + 1,
            updated_at = EXCLUDED.updated_at
        RETURNING id, member_id, current_program_id, current_cohort_id, highest_completed_level, status, version, created_at, updated_at`
	var student models.Student
	if err := tx.GetContext(ctx, &student, query, uuid.NewString(), memberID, programID, cohortID, models.StudentStatusEnrolled, now); err != nil {
		if mapped := classifyConstraint(err); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("upsert student: %w", err)
	}
	return &student, nil
}

// LockDetail loads a student with member and program names, locking the student row.
func (r *StudentRepository) LockDetail(ctx context.Context, tx *sqlx.Tx, id string) (*models.StudentDetail, error) {
	const query = `SELECT s.id, s.member_id, s.current_program_id, s.current_cohort_id, s.highest_completed_level,
            s.status, s.version, s.created_at, s.updated_at,
            m.full_name AS member_name, p.name AS current_program_name
        FROM students s
        JOIN members m ON m.id = s.member_id
        JOIN programs p ON p.id = s.current_program_id
        WHERE s.id = $1
        FOR UPDATE OF s`
	var detail models.StudentDetail
	if err := tx.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// UpdateProgram moves the student to a new program if the row version still matches.
func (r *StudentRepository) UpdateProgram(ctx context.Context, tx *sqlx.Tx, id, programID string, expectedVersion int) error {
	const query = `UPDATE students SET current_program_id = $2, version = version + 1, updated_at = $3
        WHERE id = $1 AND version = $4`
	return r.casExec(ctx, tx, "promote student", query, id, programID, time.Now().UTC(), expectedVersion)
}

// MarkCompleted completes the student and raises the level watermark; it never lowers it.
func (r *StudentRepository) MarkCompleted(ctx context.Context, tx *sqlx.Tx, id string, levelOrder, expectedVersion int) error {
	const query = `UPDATE students SET status = $2, highest_completed_level = GREATEST(highest_completed_level, $3),
            version = version + 1, updated_at = $4
        WHERE id = $1 AND version = $5`
	return r.casExec(ctx, tx, "complete student", query, id, models.StudentStatusCompleted, levelOrder, time.Now().UTC(), expectedVersion)
}

func (r *StudentRepository) casExec(ctx context.Context, tx *sqlx.Tx, op, query string, args ...interface{}) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}
