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

// ChildRepository handles database operations for children and child sessions
type ChildRepository struct {
	db database.DBTX
}

// NewChildRepository creates a new child repository
func NewChildRepository(db database.DBTX) *ChildRepository {
	return &ChildRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *ChildRepository) WithTx(tx *database.Tx) *ChildRepository {
	return &ChildRepository{db: tx}
}

const childColumns = `id, family_id, name, username, pin_hash, avatar_id, level, xp, total_xp,
	reward_points, unlocked_avatars, unlocked_gear, created_at, updated_at`

func scanChild(row rowScanner) (*models.Child, error) {
	child := &models.Child{}
	var avatars, gear string
	err := row.Scan(
		&child.ID,
		&child.FamilyID,
		&child.Name,
		&child.Username,
		&child.PINHash,
		&child.AvatarID,
		&child.Level,
		&child.XP,
		&child.TotalXP,
		&child.RewardPoints,
		&avatars,
		&gear,
		&child.CreatedAt,
		&child.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	child.UnlockedAvatars = decodeStringList(avatars)
	child.UnlockedGear = decodeStringList(gear)
	return child, nil
}

// CreateChild inserts a child and sets its ID
func (r *ChildRepository) CreateChild(ctx context.Context, child *models.Child) error {
	query := `
		INSERT INTO children (family_id, name, username, pin_hash, avatar_id, level, xp, total_xp,
			reward_points, unlocked_avatars, unlocked_gear, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningIDContext(ctx, query,
		child.FamilyID, child.Name, child.Username, child.PINHash, child.AvatarID,
		child.Level, child.XP, child.TotalXP, child.RewardPoints,
		encodeStringList(child.UnlockedAvatars), encodeStringList(child.UnlockedGear),
		child.CreatedAt, child.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create child: %w", err)
	}
	child.ID = id
	return nil
}

func (r *ChildRepository) getChild(ctx context.Context, where string, arg interface{}) (*models.Child, error) {
	query := "SELECT " + childColumns + " FROM children WHERE " + where
	child, err := scanChild(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get child: %w", err)
	}
	return child, nil
}

// GetChild retrieves a child by ID
func (r *ChildRepository) GetChild(ctx context.Context, id int64) (*models.Child, error) {
	return r.getChild(ctx, "id = ?", id)
}

// GetChildByUsername retrieves a child by login username
func (r *ChildRepository) GetChildByUsername(ctx context.Context, username string) (*models.Child, error) {
	return r.getChild(ctx, "username = ?", username)
}

// UsernameExists checks whether a username is taken
func (r *ChildRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM children WHERE username = ?", username).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return count > 0, nil
}

// ListChildrenByFamily returns the children of a family in creation order
func (r *ChildRepository) ListChildrenByFamily(ctx context.Context, familyID int64) ([]models.Child, error) {
	query := "SELECT " + childColumns + " FROM children WHERE family_id = ? ORDER BY id"
	rows, err := r.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query children: %w", err)
	}
	defer rows.Close()

	var children []models.Child
	for rows.Next() {
		child, err := scanChild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan child: %w", err)
		}
		children = append(children, *child)
	}
	return children, rows.Err()
}

// UpdateProfile updates the display name and avatar
func (r *ChildRepository) UpdateProfile(ctx context.Context, id int64, name, avatarID string, now time.Time) error {
	query := "UPDATE children SET name = ?, avatar_id = ?, updated_at = ? WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, query, name, avatarID, now, id); err != nil {
		return fmt.Errorf("failed to update child: %w", err)
	}
	return nil
}

// UpdatePINHash replaces the login PIN hash
func (r *ChildRepository) UpdatePINHash(ctx context.Context, id int64, pinHash string, now time.Time) error {
	query := "UPDATE children SET pin_hash = ?, updated_at = ? WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, query, pinHash, now, id); err != nil {
		return fmt.Errorf("failed to update pin: %w", err)
	}
	return nil
}

// CreditProgress adds XP and reward points in place. Level roll-over is
// applied afterwards with ApplyLevelUps, inside the same transaction.
func (r *ChildRepository) CreditProgress(ctx context.Context, id int64, xp, points int, now time.Time) error {
	query := `
		UPDATE children
		SET xp = xp + ?, total_xp = total_xp + ?, reward_points = reward_points + ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query, xp, xp, points, now, id)
	if err != nil {
		return fmt.Errorf("failed to credit child: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to credit child %d: not found", id)
	}
	return nil
}

// ApplyLevelUps rolls surplus XP over into levels and returns the levels gained
func (r *ChildRepository) ApplyLevelUps(ctx context.Context, id int64, now time.Time) (int, error) {
	var level, xp int
	err := r.db.QueryRowContext(ctx, "SELECT level, xp FROM children WHERE id = ?", id).Scan(&level, &xp)
	if err != nil {
		return 0, fmt.Errorf("failed to read child level: %w", err)
	}

	rolled := models.Child{Level: level, XP: xp}
	gained := rolled.RollLevels()
	if gained == 0 {
		return 0, nil
	}

	query := "UPDATE children SET level = ?, xp = ?, updated_at = ? WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, query, rolled.Level, rolled.XP, now, id); err != nil {
		return 0, fmt.Errorf("failed to update child level: %w", err)
	}
	return gained, nil
}

// AdjustPoints changes the reward point balance by delta. A debit that
// would take the balance below zero changes nothing and returns false.
func (r *ChildRepository) AdjustPoints(ctx context.Context, id int64, delta int, now time.Time) (bool, error) {
	query := `
		UPDATE children
		SET reward_points = reward_points + ?, updated_at = ?
		WHERE id = ? AND reward_points + ? >= 0
	`
	result, err := r.db.ExecContext(ctx, query, delta, now, id, delta)
	if err != nil {
		return false, fmt.Errorf("failed to adjust points: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to adjust points: %w", err)
	}
	return n == 1, nil
}

// SetUnlocked stores the unlocked avatar and gear lists
func (r *ChildRepository) SetUnlocked(ctx context.Context, id int64, avatars, gear []string, now time.Time) error {
	query := "UPDATE children SET unlocked_avatars = ?, unlocked_gear = ?, updated_at = ? WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, query, encodeStringList(avatars), encodeStringList(gear), now, id); err != nil {
		return fmt.Errorf("failed to update unlocked items: %w", err)
	}
	return nil
}

// DeleteChild deletes a child; dependent rows cascade
func (r *ChildRepository) DeleteChild(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM children WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete child: %w", err)
	}
	return nil
}

// CreateChildSession creates a login session for a child
func (r *ChildRepository) CreateChildSession(ctx context.Context, session *models.ChildSession) error {
	query := "INSERT INTO child_sessions (id, child_id, expires_at, created_at) VALUES (?, ?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, query, session.ID, session.ChildID, session.ExpiresAt, session.CreatedAt); err != nil {
		return fmt.Errorf("failed to create child session: %w", err)
	}
	return nil
}

// GetChildSession retrieves a child session by ID
func (r *ChildRepository) GetChildSession(ctx context.Context, id string) (*models.ChildSession, error) {
	query := "SELECT id, child_id, expires_at, created_at FROM child_sessions WHERE id = ?"
	session := &models.ChildSession{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&session.ID, &session.ChildID, &session.ExpiresAt, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get child session: %w", err)
	}
	return session, nil
}

// DeleteChildSession deletes a child session
func (r *ChildRepository) DeleteChildSession(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM child_sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete child session: %w", err)
	}
	return nil
}

// DeleteChildSessionsFor deletes every session of a child
func (r *ChildRepository) DeleteChildSessionsFor(ctx context.Context, childID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM child_sessions WHERE child_id = ?", childID); err != nil {
		return fmt.Errorf("failed to delete child sessions: %w", err)
	}
	return nil
}

// DeleteExpiredChildSessions removes child sessions that expired before now
func (r *ChildRepository) DeleteExpiredChildSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM child_sessions WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired child sessions: %w", err)
	}
	return result.RowsAffected()
}
