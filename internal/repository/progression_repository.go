package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bibleschool-api/internal/models"
)

// ProgressionRepository appends promotion and graduation facts. Rows are never updated or deleted.
type ProgressionRepository struct {
	db *sqlx.DB
}

// NewProgressionRepository constructs the repository.
func NewProgressionRepository(db *sqlx.DB) *ProgressionRepository {
	return &ProgressionRepository{db: db}
}

// CreatePromotion inserts a promotion record.
func (r *ProgressionRepository) CreatePromotion(ctx context.Context, tx *sqlx.Tx, record *models.PromotionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO promotion_records (id, student_id, from_program_id, to_program_id, approved_by,
            attendance_percentage, exam_average, remarks, created_at)
        VALUES (:id, :student_id, :from_program_id, :to_program_id, :approved_by,
            :attendance_percentage, :exam_average, :remarks, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
		if mapped := classifyConstraint(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("create promotion record: %w", err)
	}
	return nil
}

// GraduationExists reports whether the student already graduated from the program.
func (r *ProgressionRepository) GraduationExists(ctx context.Context, tx *sqlx.Tx, studentID, programID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM graduation_records WHERE student_id = $1 AND program_id = $2)`
	var exists bool
	if err := tx.GetContext(ctx, &exists, query, studentID, programID); err != nil {
		return false, fmt.Errorf("check graduation: %w", err)
	}
	return exists, nil
}

// CreateGraduation inserts a graduation record; the unique (student, program) constraint maps to ErrDuplicateGraduation.
func (r *ProgressionRepository) CreateGraduation(ctx context.Context, tx *sqlx.Tx, record *models.GraduationRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO graduation_records (id, student_id, program_id, cohort_id, issued_by, graduated_on, certificate_ref, created_at)
        VALUES (:id, :student_id, :program_id, :cohort_id, :issued_by, :graduated_on, :certificate_ref, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
		if mapped := classifyConstraint(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("create graduation record: %w", err)
	}
	return nil
}
