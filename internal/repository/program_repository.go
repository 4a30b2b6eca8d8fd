package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bibleschool-api/internal/models"
)

// ProgramRepository reads the program ladder and cohorts.
type ProgramRepository struct {
	db *sqlx.DB
}

// NewProgramRepository constructs the repository.
func NewProgramRepository(db *sqlx.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

// FindByID returns a program by identifier.
func (r *ProgramRepository) FindByID(ctx context.Context, id string) (*models.Program, error) {
	const query = `SELECT id, name, level_order, description, created_at FROM programs WHERE id = $1`
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, id); err != nil {
		return nil, err
	}
	return &program, nil
}

// List returns all programs ordered by level.
func (r *ProgramRepository) List(ctx context.Context) ([]models.Program, error) {
	const query = `SELECT id, name, level_order, description, created_at FROM programs ORDER BY level_order ASC`
	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, query); err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return programs, nil
}

// FindCohort returns a cohort by identifier.
func (r *ProgramRepository) FindCohort(ctx context.Context, id string) (*models.Cohort, error) {
	const query = `SELECT id, program_id, name, starts_on, ends_on, created_at FROM cohorts WHERE id = $1`
	var cohort models.Cohort
	if err := r.db.GetContext(ctx, &cohort, query, id); err != nil {
		return nil, err
	}
	return &cohort, nil
}
