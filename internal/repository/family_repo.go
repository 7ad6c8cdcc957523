package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"habitheroes/internal/database"
	"habitheroes/internal/models"
)

// FamilyRepository handles database operations for families and their members
type FamilyRepository struct {
	db database.DBTX
}

// NewFamilyRepository creates a new family repository
func NewFamilyRepository(db database.DBTX) *FamilyRepository {
	return &FamilyRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *FamilyRepository) WithTx(tx *database.Tx) *FamilyRepository {
	return &FamilyRepository{db: tx}
}

// CreateFamily inserts a family and sets its ID
func (r *FamilyRepository) CreateFamily(ctx context.Context, family *models.Family) error {
	query := "INSERT INTO families (name, family_code, created_at, updated_at) VALUES (?, ?, ?, ?)"
	id, err := r.db.ExecReturningIDContext(ctx, query, family.Name, family.FamilyCode, family.CreatedAt, family.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create family: %w", err)
	}
	family.ID = id
	return nil
}

func (r *FamilyRepository) getFamily(ctx context.Context, where string, arg interface{}) (*models.Family, error) {
	query := "SELECT id, name, family_code, created_at, updated_at FROM families WHERE " + where
	family := &models.Family{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&family.ID,
		&family.Name,
		&family.FamilyCode,
		&family.CreatedAt,
		&family.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}
	return family, nil
}

// GetFamilyByID retrieves a family by ID
func (r *FamilyRepository) GetFamilyByID(ctx context.Context, familyID int64) (*models.Family, error) {
	return r.getFamily(ctx, "id = ?", familyID)
}

// GetFamilyByCode retrieves a family by its join code
func (r *FamilyRepository) GetFamilyByCode(ctx context.Context, code string) (*models.Family, error) {
	return r.getFamily(ctx, "family_code = ?", code)
}

// FamilyCodeExists checks whether a join code is already in use
func (r *FamilyRepository) FamilyCodeExists(ctx context.Context, code string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM families WHERE family_code = ?", code).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check family code: %w", err)
	}
	return count > 0, nil
}

// AddFamilyMember adds a user to a family
func (r *FamilyRepository) AddFamilyMember(ctx context.Context, familyID, userID int64, role string, now time.Time) error {
	query := "INSERT INTO family_members (family_id, user_id, role, created_at) VALUES (?, ?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, query, familyID, userID, role, now); err != nil {
		return fmt.Errorf("failed to add family member: %w", err)
	}
	return nil
}

// GetMembership returns the family membership of a user, or nil
func (r *FamilyRepository) GetMembership(ctx context.Context, userID int64) (*models.FamilyMember, error) {
	query := "SELECT id, family_id, user_id, role, created_at FROM family_members WHERE user_id = ?"
	member := &models.FamilyMember{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&member.ID,
		&member.FamilyID,
		&member.UserID,
		&member.Role,
		&member.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family membership: %w", err)
	}
	return member, nil
}

// ListMembers returns the members of a family, owner first
func (r *FamilyRepository) ListMembers(ctx context.Context, familyID int64) ([]models.FamilyMember, error) {
	query := `
		SELECT id, family_id, user_id, role, created_at
		FROM family_members
		WHERE family_id = ?
		ORDER BY CASE WHEN role = 'owner' THEN 0 ELSE 1 END, id
	`
	rows, err := r.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query family members: %w", err)
	}
	defer rows.Close()

	var members []models.FamilyMember
	for rows.Next() {
		var m models.FamilyMember
		if err := rows.Scan(&m.ID, &m.FamilyID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan family member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListParentUserIDs returns the user ids of every parent in a family
func (r *FamilyRepository) ListParentUserIDs(ctx context.Context, familyID int64) ([]int64, error) {
	members, err := r.ListMembers(ctx, familyID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

// GetOwnerUserID returns the user id of the family owner, or 0 when the
// family has no owner left
func (r *FamilyRepository) GetOwnerUserID(ctx context.Context, familyID int64) (int64, error) {
	members, err := r.ListMembers(ctx, familyID)
	if err != nil {
		return 0, err
	}
	for _, m := range members {
		if m.Role == models.RoleOwner {
			return m.UserID, nil
		}
	}
	if len(members) > 0 {
		return members[0].UserID, nil
	}
	return 0, nil
}

// MoveMember moves a user into another family with a new role
func (r *FamilyRepository) MoveMember(ctx context.Context, userID, familyID int64, role string) error {
	query := "UPDATE family_members SET family_id = ?, role = ? WHERE user_id = ?"
	if _, err := r.db.ExecContext(ctx, query, familyID, role, userID); err != nil {
		return fmt.Errorf("failed to move family member: %w", err)
	}
	return nil
}

// CountChildren counts the children of a family
func (r *FamilyRepository) CountChildren(ctx context.Context, familyID int64) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM children WHERE family_id = ?", familyID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count children: %w", err)
	}
	return count, nil
}

// DeleteFamily deletes a family and, through foreign keys, everything it owns
func (r *FamilyRepository) DeleteFamily(ctx context.Context, familyID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM families WHERE id = ?", familyID); err != nil {
		return fmt.Errorf("failed to delete family: %w", err)
	}
	return nil
}
