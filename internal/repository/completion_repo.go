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

// StreakLookback caps how many approved days a streak walk reads
const StreakLookback = 30

// CompletionRepository handles database operations for habit completions
type CompletionRepository struct {
	db database.DBTX
}

// NewCompletionRepository creates a new completion repository
func NewCompletionRepository(db database.DBTX) *CompletionRepository {
	return &CompletionRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *CompletionRepository) WithTx(tx *database.Tx) *CompletionRepository {
	return &CompletionRepository{db: tx}
}

const completionColumns = `c.id, c.habit_id, c.child_id, c.completion_date, c.completed_at, c.xp_earned,
	c.streak_count, c.reward_points_earned, c.status, c.reviewed_by, c.review_message, c.reviewed_at, c.auto_approved`

func scanCompletion(row rowScanner, extra ...interface{}) (*models.HabitCompletion, error) {
	c := &models.HabitCompletion{}
	var reviewedAt sql.NullTime
	dest := []interface{}{
		&c.ID, &c.HabitID, &c.ChildID, &c.CompletionDate, &c.CompletedAt, &c.XPEarned,
		&c.StreakCount, &c.RewardPointsEarned, &c.Status, &c.ReviewedBy, &c.ReviewMessage, &reviewedAt, &c.AutoApproved,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	c.ReviewedAt = timePtr(reviewedAt)
	return c, nil
}

// CreateCompletion inserts a completion and sets its ID
func (r *CompletionRepository) CreateCompletion(ctx context.Context, c *models.HabitCompletion) error {
	query := `
		INSERT INTO habit_completions (habit_id, child_id, completion_date, completed_at, xp_earned, streak_count,
			reward_points_earned, status, reviewed_by, review_message, reviewed_at, auto_approved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningIDContext(ctx, query,
		c.HabitID, c.ChildID, c.CompletionDate, c.CompletedAt, c.XPEarned, c.StreakCount,
		c.RewardPointsEarned, c.Status, c.ReviewedBy, c.ReviewMessage, nullableTime(c.ReviewedAt), c.AutoApproved)
	if err != nil {
		return fmt.Errorf("failed to create completion: %w", err)
	}
	c.ID = id
	return nil
}

// GetCompletion retrieves a completion by ID
func (r *CompletionRepository) GetCompletion(ctx context.Context, id int64) (*models.HabitCompletion, error) {
	query := "SELECT " + completionColumns + " FROM habit_completions c WHERE c.id = ?"
	c, err := scanCompletion(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get completion: %w", err)
	}
	return c, nil
}

// CountForDay counts completions of a habit on a day with the given status,
// ignoring excludeID (0 excludes nothing)
func (r *CompletionRepository) CountForDay(ctx context.Context, habitID int64, date, status string, excludeID int64) (int, error) {
	query := "SELECT COUNT(*) FROM habit_completions WHERE habit_id = ? AND completion_date = ? AND status = ? AND id <> ?"
	var count int
	if err := r.db.QueryRowContext(ctx, query, habitID, date, status, excludeID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count completions: %w", err)
	}
	return count, nil
}

// Review moves a pending completion to status. It returns false when the
// completion was no longer pending, so concurrent reviews settle only once.
func (r *CompletionRepository) Review(ctx context.Context, id int64, status, reviewer, message string, reviewedAt time.Time, autoApproved bool) (bool, error) {
	query := `
		UPDATE habit_completions
		SET status = ?, reviewed_by = ?, review_message = ?, reviewed_at = ?, auto_approved = ?
		WHERE id = ? AND status = ?
	`
	result, err := r.db.ExecContext(ctx, query, status, reviewer, message, reviewedAt, autoApproved, id, models.CompletionPending)
	if err != nil {
		return false, fmt.Errorf("failed to review completion: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to review completion: %w", err)
	}
	return n == 1, nil
}

// DeleteUnapprovedForDay removes a child's pending and rejected completions for one day
func (r *CompletionRepository) DeleteUnapprovedForDay(ctx context.Context, childID int64, date string) (int64, error) {
	query := "DELETE FROM habit_completions WHERE child_id = ? AND completion_date = ? AND status IN (?, ?)"
	result, err := r.db.ExecContext(ctx, query, childID, date, models.CompletionPending, models.CompletionRejected)
	if err != nil {
		return 0, fmt.Errorf("failed to delete completions: %w", err)
	}
	return result.RowsAffected()
}

// ApprovedDates returns the distinct days, newest first and at most
// StreakLookback of them, on which the habit has an approved completion
// on or before the given day
func (r *CompletionRepository) ApprovedDates(ctx context.Context, habitID, childID int64, onOrBefore string) ([]string, error) {
	query := `
		SELECT DISTINCT completion_date
		FROM habit_completions
		WHERE habit_id = ? AND child_id = ? AND status = ? AND completion_date <= ?
		ORDER BY completion_date DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, habitID, childID, models.CompletionApproved, onOrBefore, StreakLookback)
	if err != nil {
		return nil, fmt.Errorf("failed to query approved dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan completion date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

const pendingSelect = `
	SELECT ` + completionColumns + `, ch.family_id, h.name, h.icon, ch.name
	FROM habit_completions c
	INNER JOIN habits h ON h.id = c.habit_id
	INNER JOIN children ch ON ch.id = c.child_id
	WHERE c.status = ?`

func (r *CompletionRepository) queryPending(ctx context.Context, query string, args ...interface{}) ([]models.PendingCompletion, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending completions: %w", err)
	}
	defer rows.Close()

	var pending []models.PendingCompletion
	for rows.Next() {
		var p models.PendingCompletion
		c, err := scanCompletion(rows, &p.FamilyID, &p.HabitName, &p.HabitIcon, &p.ChildName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending completion: %w", err)
		}
		p.HabitCompletion = *c
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// ListPendingByFamily returns every pending completion across a family's
// children, oldest first
func (r *CompletionRepository) ListPendingByFamily(ctx context.Context, familyID int64) ([]models.PendingCompletion, error) {
	query := pendingSelect + " AND ch.family_id = ? ORDER BY c.completed_at, c.id"
	return r.queryPending(ctx, query, models.CompletionPending, familyID)
}

// ListPendingCompletedBefore returns pending completions of a family made at
// or before cutoff
func (r *CompletionRepository) ListPendingCompletedBefore(ctx context.Context, familyID int64, cutoff time.Time) ([]models.PendingCompletion, error) {
	query := pendingSelect + " AND ch.family_id = ? AND c.completed_at <= ? ORDER BY c.completed_at, c.id"
	return r.queryPending(ctx, query, models.CompletionPending, familyID, cutoff)
}

// ListForChild returns a child's completions on or after sinceDate, newest first
func (r *CompletionRepository) ListForChild(ctx context.Context, childID int64, sinceDate string) ([]models.HabitCompletion, error) {
	query := "SELECT " + completionColumns + ` FROM habit_completions c
		WHERE c.child_id = ? AND c.completion_date >= ?
		ORDER BY c.completion_date DESC, c.id DESC`
	rows, err := r.db.QueryContext(ctx, query, childID, sinceDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	var completions []models.HabitCompletion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		completions = append(completions, *c)
	}
	return completions, rows.Err()
}
