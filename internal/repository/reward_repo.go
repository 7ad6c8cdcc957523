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

// RewardRepository handles database operations for rewards and reward claims
type RewardRepository struct {
	db database.DBTX
}

// NewRewardRepository creates a new reward repository
func NewRewardRepository(db database.DBTX) *RewardRepository {
	return &RewardRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *RewardRepository) WithTx(tx *database.Tx) *RewardRepository {
	return &RewardRepository{db: tx}
}

const rewardColumns = `id, family_id, child_id, title, description, cost, category, is_recurring,
	next_occurrence, parent_reward_id, active, created_at, updated_at`

func scanReward(row rowScanner) (*models.Reward, error) {
	rw := &models.Reward{}
	var childID, parentID sql.NullInt64
	var next sql.NullTime
	err := row.Scan(&rw.ID, &rw.FamilyID, &childID, &rw.Title, &rw.Description, &rw.Cost, &rw.Category,
		&rw.IsRecurring, &next, &parentID, &rw.Active, &rw.CreatedAt, &rw.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rw.ChildID = int64Ptr(childID)
	rw.ParentRewardID = int64Ptr(parentID)
	rw.NextOccurrence = timePtr(next)
	return rw, nil
}

func (r *RewardRepository) queryRewards(ctx context.Context, query string, args ...interface{}) ([]models.Reward, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rewards: %w", err)
	}
	defer rows.Close()

	var rewards []models.Reward
	for rows.Next() {
		rw, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reward: %w", err)
		}
		rewards = append(rewards, *rw)
	}
	return rewards, rows.Err()
}

// CreateReward inserts a reward and sets its ID
func (r *RewardRepository) CreateReward(ctx context.Context, rw *models.Reward) error {
	query := `
		INSERT INTO rewards (family_id, child_id, title, description, cost, category, is_recurring,
			next_occurrence, parent_reward_id, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningIDContext(ctx, query,
		rw.FamilyID, nullableInt64(rw.ChildID), rw.Title, rw.Description, rw.Cost, rw.Category, rw.IsRecurring,
		nullableTime(rw.NextOccurrence), nullableInt64(rw.ParentRewardID), rw.Active, rw.CreatedAt, rw.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create reward: %w", err)
	}
	rw.ID = id
	return nil
}

// GetReward retrieves a reward by ID
func (r *RewardRepository) GetReward(ctx context.Context, id int64) (*models.Reward, error) {
	rw, err := scanReward(r.db.QueryRowContext(ctx, "SELECT "+rewardColumns+" FROM rewards WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}
	return rw, nil
}

// ListRewardsByFamily returns all rewards of a family
func (r *RewardRepository) ListRewardsByFamily(ctx context.Context, familyID int64) ([]models.Reward, error) {
	return r.queryRewards(ctx, "SELECT "+rewardColumns+" FROM rewards WHERE family_id = ? ORDER BY id", familyID)
}

// ListRewardsForChild returns the active rewards a child can see
func (r *RewardRepository) ListRewardsForChild(ctx context.Context, familyID, childID int64) ([]models.Reward, error) {
	query := "SELECT " + rewardColumns + ` FROM rewards
		WHERE family_id = ? AND active = ? AND (child_id IS NULL OR child_id = ?)
		ORDER BY id`
	return r.queryRewards(ctx, query, familyID, true, childID)
}

// ListDueRecurring returns active recurring rewards whose next occurrence is at or before now
func (r *RewardRepository) ListDueRecurring(ctx context.Context, now time.Time) ([]models.Reward, error) {
	query := "SELECT " + rewardColumns + ` FROM rewards
		WHERE is_recurring = ? AND active = ? AND next_occurrence IS NOT NULL AND next_occurrence <= ?
		ORDER BY next_occurrence, id`
	return r.queryRewards(ctx, query, true, true, now)
}

// UpdateReward updates the editable fields of a reward
func (r *RewardRepository) UpdateReward(ctx context.Context, rw *models.Reward) error {
	query := `
		UPDATE rewards
		SET child_id = ?, title = ?, description = ?, cost = ?, category = ?, is_recurring = ?,
			next_occurrence = ?, active = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query, nullableInt64(rw.ChildID), rw.Title, rw.Description, rw.Cost, rw.Category,
		rw.IsRecurring, nullableTime(rw.NextOccurrence), rw.Active, rw.UpdatedAt, rw.ID)
	if err != nil {
		return fmt.Errorf("failed to update reward: %w", err)
	}
	return nil
}

// AdvanceNextOccurrence moves a recurring reward forward. It only applies
// while next_occurrence still equals current, and reports whether it did.
func (r *RewardRepository) AdvanceNextOccurrence(ctx context.Context, id int64, current, next, now time.Time) (bool, error) {
	query := "UPDATE rewards SET next_occurrence = ?, updated_at = ? WHERE id = ? AND next_occurrence = ?"
	result, err := r.db.ExecContext(ctx, query, next, now, id, current)
	if err != nil {
		return false, fmt.Errorf("failed to advance reward: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to advance reward: %w", err)
	}
	return n == 1, nil
}

// DeleteReward deletes a reward and its claims
func (r *RewardRepository) DeleteReward(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM rewards WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete reward: %w", err)
	}
	return nil
}

const claimSelect = `
	SELECT rc.id, rc.reward_id, rc.child_id, rc.status, rc.message, rc.requested_at, rc.reviewed_at, rc.reviewed_by,
		rw.title, rw.cost, ch.name
	FROM reward_claims rc
	INNER JOIN rewards rw ON rw.id = rc.reward_id
	INNER JOIN children ch ON ch.id = rc.child_id`

func scanClaim(row rowScanner) (*models.RewardClaim, error) {
	c := &models.RewardClaim{}
	var reviewedAt sql.NullTime
	err := row.Scan(&c.ID, &c.RewardID, &c.ChildID, &c.Status, &c.Message, &c.RequestedAt, &reviewedAt, &c.ReviewedBy,
		&c.RewardTitle, &c.RewardCost, &c.ChildName)
	if err != nil {
		return nil, err
	}
	c.ReviewedAt = timePtr(reviewedAt)
	return c, nil
}

func (r *RewardRepository) queryClaims(ctx context.Context, query string, args ...interface{}) ([]models.RewardClaim, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reward claims: %w", err)
	}
	defer rows.Close()

	var claims []models.RewardClaim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reward claim: %w", err)
		}
		claims = append(claims, *c)
	}
	return claims, rows.Err()
}

// CreateClaim inserts a reward claim and sets its ID
func (r *RewardRepository) CreateClaim(ctx context.Context, c *models.RewardClaim) error {
	query := `
		INSERT INTO reward_claims (reward_id, child_id, status, message, requested_at, reviewed_at, reviewed_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningIDContext(ctx, query,
		c.RewardID, c.ChildID, c.Status, c.Message, c.RequestedAt, nullableTime(c.ReviewedAt), c.ReviewedBy)
	if err != nil {
		return fmt.Errorf("failed to create reward claim: %w", err)
	}
	c.ID = id
	return nil
}

// GetClaim retrieves a claim by ID with its reward and child names
func (r *RewardRepository) GetClaim(ctx context.Context, id int64) (*models.RewardClaim, error) {
	c, err := scanClaim(r.db.QueryRowContext(ctx, claimSelect+" WHERE rc.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reward claim: %w", err)
	}
	return c, nil
}

// ListClaimsByFamily returns a family's claims, newest first, optionally filtered by status
func (r *RewardRepository) ListClaimsByFamily(ctx context.Context, familyID int64, status string) ([]models.RewardClaim, error) {
	query := claimSelect + " WHERE ch.family_id = ?"
	args := []interface{}{familyID}
	if status != "" {
		query += " AND rc.status = ?"
		args = append(args, status)
	}
	query += " ORDER BY rc.requested_at DESC, rc.id DESC"
	return r.queryClaims(ctx, query, args...)
}

// ListClaimsByChild returns a child's claims, newest first
func (r *RewardRepository) ListClaimsByChild(ctx context.Context, childID int64) ([]models.RewardClaim, error) {
	return r.queryClaims(ctx, claimSelect+" WHERE rc.child_id = ? ORDER BY rc.requested_at DESC, rc.id DESC", childID)
}

// ReviewClaim moves a pending claim to status and reports whether it was still pending
func (r *RewardRepository) ReviewClaim(ctx context.Context, id int64, status, reviewer, message string, now time.Time) (bool, error) {
	query := `
		UPDATE reward_claims
		SET status = ?, reviewed_by = ?, message = ?, reviewed_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := r.db.ExecContext(ctx, query, status, reviewer, message, now, id, models.ClaimPending)
	if err != nil {
		return false, fmt.Errorf("failed to review reward claim: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to review reward claim: %w", err)
	}
	return n == 1, nil
}
