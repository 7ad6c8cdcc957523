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

// ChallengeRepository handles database operations for weekend challenges
type ChallengeRepository struct {
	db database.DBTX
}

// NewChallengeRepository creates a new challenge repository
func NewChallengeRepository(db database.DBTX) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *ChallengeRepository) WithTx(tx *database.Tx) *ChallengeRepository {
	return &ChallengeRepository{db: tx}
}

const challengeColumns = `id, child_id, title, description, bonus_points, bonus_xp, starts_at, ends_at,
	is_accepted, is_completed, accepted_at, completed_at, created_at`

func scanChallenge(row rowScanner) (*models.WeekendChallenge, error) {
	w := &models.WeekendChallenge{}
	var acceptedAt, completedAt sql.NullTime
	err := row.Scan(&w.ID, &w.ChildID, &w.Title, &w.Description, &w.BonusPoints, &w.BonusXP, &w.StartsAt, &w.EndsAt,
		&w.IsAccepted, &w.IsCompleted, &acceptedAt, &completedAt, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	w.AcceptedAt = timePtr(acceptedAt)
	w.CompletedAt = timePtr(completedAt)
	return w, nil
}

// CreateChallenge inserts a challenge and sets its ID
func (r *ChallengeRepository) CreateChallenge(ctx context.Context, w *models.WeekendChallenge) error {
	query := `
		INSERT INTO weekend_challenges (child_id, title, description, bonus_points, bonus_xp, starts_at, ends_at,
			is_accepted, is_completed, accepted_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningIDContext(ctx, query, w.ChildID, w.Title, w.Description, w.BonusPoints, w.BonusXP,
		w.StartsAt, w.EndsAt, w.IsAccepted, w.IsCompleted, nullableTime(w.AcceptedAt), nullableTime(w.CompletedAt), w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create challenge: %w", err)
	}
	w.ID = id
	return nil
}

// GetChallenge retrieves a challenge by ID
func (r *ChallengeRepository) GetChallenge(ctx context.Context, id int64) (*models.WeekendChallenge, error) {
	w, err := scanChallenge(r.db.QueryRowContext(ctx, "SELECT "+challengeColumns+" FROM weekend_challenges WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return w, nil
}

// ListChallengesByChild returns a child's challenges, latest window first
func (r *ChallengeRepository) ListChallengesByChild(ctx context.Context, childID int64) ([]models.WeekendChallenge, error) {
	query := "SELECT " + challengeColumns + " FROM weekend_challenges WHERE child_id = ? ORDER BY starts_at DESC, id DESC"
	rows, err := r.db.QueryContext(ctx, query, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenges: %w", err)
	}
	defer rows.Close()

	var challenges []models.WeekendChallenge
	for rows.Next() {
		w, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, *w)
	}
	return challenges, rows.Err()
}

// MarkAccepted moves an available challenge to accepted and reports whether it was available
func (r *ChallengeRepository) MarkAccepted(ctx context.Context, id int64, now time.Time) (bool, error) {
	query := `
		UPDATE weekend_challenges SET is_accepted = ?, accepted_at = ?
		WHERE id = ? AND is_accepted = ? AND is_completed = ?
	`
	return r.transition(ctx, query, true, now, id, false, false)
}

// MarkCompleted moves an accepted challenge to completed and reports whether it was accepted
func (r *ChallengeRepository) MarkCompleted(ctx context.Context, id int64, now time.Time) (bool, error) {
	query := `
		UPDATE weekend_challenges SET is_completed = ?, completed_at = ?
		WHERE id = ? AND is_accepted = ? AND is_completed = ?
	`
	return r.transition(ctx, query, true, now, id, true, false)
}

func (r *ChallengeRepository) transition(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update challenge: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update challenge: %w", err)
	}
	return n == 1, nil
}

// DeleteChallenge deletes a challenge
func (r *ChallengeRepository) DeleteChallenge(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM weekend_challenges WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}
