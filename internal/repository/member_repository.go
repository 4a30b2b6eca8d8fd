package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bibleschool-api/internal/models"
)

// MemberRepository writes the few member profile fields owned by the training workflow.
type MemberRepository struct {
	db *sqlx.DB
}

// NewMemberRepository constructs the repository.
func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// UpdateRole sets the member's profile role and reports whether the row changed.
func (r *MemberRepository) UpdateRole(ctx context.Context, tx *sqlx.Tx, memberID string, role models.MemberRole) (bool, error) {
	const query = `UPDATE members SET role = $2, updated_at = NOW() WHERE id = $1 AND role IS DISTINCT FROM $2`
	res, err := tx.ExecContext(ctx, query, memberID, role)
	if err != nil {
		return false, fmt.Errorf("update member role: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update member role rows: %w", err)
	}
	return affected > 0, nil
}
