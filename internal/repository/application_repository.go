package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bibleschool-api/internal/models"
)

// ApplicationRepository persists program applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// ExistsPending checks whether the member already has a pending application for the program.
func (r *ApplicationRepository) ExistsPending(ctx context.Context, tx *sqlx.Tx, memberID, programID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM applications WHERE member_id = $1 AND program_id = $2 AND status = $3)`
	var exists bool
	if err := tx.GetContext(ctx, &exists, query, memberID, programID, models.ApplicationStatusPending); err != nil {
		return false, fmt.Errorf("check pending application: %w", err)
	}
	return exists, nil
}

// Create inserts a pending application. The partial unique index guards concurrent duplicates.
func (r *ApplicationRepository) Create(ctx context.Context, tx *sqlx.Tx, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now().UTC()
	}
	if app.Status == "" {
		app.Status = models.ApplicationStatusPending
	}
	const query = `INSERT INTO applications (id, member_id, program_id, branch_id, remarks, status, created_at)
        VALUES (:id, :member_id, :program_id, :branch_id, :remarks, :status, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, app); err != nil {
		if mapped := classifyConstraint(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// LockByID loads an application and holds a row lock until the transaction ends.
func (r *ApplicationRepository) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Application, error) {
	const query = `SELECT id, member_id, program_id, branch_id, remarks, status, reviewed_by, reviewed_at, created_at
        FROM applications WHERE id = $1 FOR UPDATE`
	var app models.Application
	if err := tx.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// MarkReviewed moves a pending application to its final status.
func (r *ApplicationRepository) MarkReviewed(ctx context.Context, tx *sqlx.Tx, id string, status models.ApplicationStatus, reviewerID string, reviewedAt time.Time, remarks *string) error {
	const query = `UPDATE applications SET status = $2, reviewed_by = $3, reviewed_at = $4, remarks = COALESCE($5, remarks)
        WHERE id = $1 AND status = $6`
	res, err := tx.ExecContext(ctx, query, id, status, reviewerID, reviewedAt, remarks, models.ApplicationStatusPending)
	if err != nil {
		return fmt.Errorf("review application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("review application rows: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}
