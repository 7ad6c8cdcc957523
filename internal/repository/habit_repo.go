package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"habitheroes/internal/database"
	"habitheroes/internal/models"
)

// HabitRepository handles database operations for master habits and child habits
type HabitRepository struct {
	db database.DBTX
}

// NewHabitRepository creates a new habit repository
func NewHabitRepository(db database.DBTX) *HabitRepository {
	return &HabitRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *HabitRepository) WithTx(tx *database.Tx) *HabitRepository {
	return &HabitRepository{db: tx}
}

const masterHabitColumns = `id, family_id, name, icon, xp_reward, reminder_enabled, reminder_time, created_at, updated_at`

func scanMasterHabit(row rowScanner) (*models.MasterHabit, error) {
	m := &models.MasterHabit{}
	err := row.Scan(&m.ID, &m.FamilyID, &m.Name, &m.Icon, &m.XPReward, &m.ReminderEnabled, &m.ReminderTime, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CreateMasterHabit inserts a master habit and sets its ID
func (r *HabitRepository) CreateMasterHabit(ctx context.Context, m *models.MasterHabit) error {
	query := `
		INSERT INTO master_habits (family_id, name, icon, xp_reward, reminder_enabled, reminder_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningIDContext(ctx, query,
		m.FamilyID, m.Name, m.Icon, m.XPReward, m.ReminderEnabled, m.ReminderTime, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create master habit: %w", err)
	}
	m.ID = id
	return nil
}

// GetMasterHabit retrieves a master habit by ID
func (r *HabitRepository) GetMasterHabit(ctx context.Context, id int64) (*models.MasterHabit, error) {
	query := "SELECT " + masterHabitColumns + " FROM master_habits WHERE id = ?"
	m, err := scanMasterHabit(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get master habit: %w", err)
	}
	return m, nil
}

// ListMasterHabits returns a family's templates in creation order
func (r *HabitRepository) ListMasterHabits(ctx context.Context, familyID int64) ([]models.MasterHabit, error) {
	query := "SELECT " + masterHabitColumns + " FROM master_habits WHERE family_id = ? ORDER BY id"
	rows, err := r.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query master habits: %w", err)
	}
	defer rows.Close()

	var habits []models.MasterHabit
	for rows.Next() {
		m, err := scanMasterHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan master habit: %w", err)
		}
		habits = append(habits, *m)
	}
	return habits, rows.Err()
}

// UpdateMasterHabit updates a template; habits cloned from it are untouched
func (r *HabitRepository) UpdateMasterHabit(ctx context.Context, m *models.MasterHabit) error {
	query := `
		UPDATE master_habits
		SET name = ?, icon = ?, xp_reward = ?, reminder_enabled = ?, reminder_time = ?, updated_at = ?
		WHERE id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, m.Name, m.Icon, m.XPReward, m.ReminderEnabled, m.ReminderTime, m.UpdatedAt, m.ID); err != nil {
		return fmt.Errorf("failed to update master habit: %w", err)
	}
	return nil
}

// DeleteMasterHabit deletes a template; cloned habits keep existing
func (r *HabitRepository) DeleteMasterHabit(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM master_habits WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete master habit: %w", err)
	}
	return nil
}

const habitColumns = `id, child_id, master_habit_id, name, icon, xp_reward, reminder_enabled, reminder_time, active, created_at, updated_at`

func scanHabit(row rowScanner) (*models.Habit, error) {
	h := &models.Habit{}
	var masterID sql.NullInt64
	err := row.Scan(&h.ID, &h.ChildID, &masterID, &h.Name, &h.Icon, &h.XPReward,
		&h.ReminderEnabled, &h.ReminderTime, &h.Active, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	h.MasterHabitID = int64Ptr(masterID)
	return h, nil
}

// CreateHabit inserts a child habit and sets its ID
func (r *HabitRepository) CreateHabit(ctx context.Context, h *models.Habit) error {
	query := `
		INSERT INTO habits (child_id, master_habit_id, name, icon, xp_reward, reminder_enabled, reminder_time, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningIDContext(ctx, query,
		h.ChildID, nullableInt64(h.MasterHabitID), h.Name, h.Icon, h.XPReward,
		h.ReminderEnabled, h.ReminderTime, h.Active, h.CreatedAt, h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create habit: %w", err)
	}
	h.ID = id
	return nil
}

// GetHabit retrieves a habit by ID
func (r *HabitRepository) GetHabit(ctx context.Context, id int64) (*models.Habit, error) {
	query := "SELECT " + habitColumns + " FROM habits WHERE id = ?"
	h, err := scanHabit(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get habit: %w", err)
	}
	return h, nil
}

// LockHabit holds the habit row until the surrounding transaction ends so
// writers of its completions queue behind each other
func (r *HabitRepository) LockHabit(ctx context.Context, id int64) error {
	var locked int64
	query := "SELECT id FROM habits WHERE id = ?" + r.db.GetDialect().LockClause()
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&locked); err != nil {
		return fmt.Errorf("failed to lock habit: %w", err)
	}
	return nil
}

// ListHabitsByChild returns a child's habits, optionally only active ones
func (r *HabitRepository) ListHabitsByChild(ctx context.Context, childID int64, activeOnly bool) ([]models.Habit, error) {
	query := "SELECT " + habitColumns + " FROM habits WHERE child_id = ?"
	args := []interface{}{childID}
	if activeOnly {
		query += " AND active = ?"
		args = append(args, true)
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query habits: %w", err)
	}
	defer rows.Close()

	var habits []models.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		habits = append(habits, *h)
	}
	return habits, rows.Err()
}

// UpdateHabit updates a child's habit
func (r *HabitRepository) UpdateHabit(ctx context.Context, h *models.Habit) error {
	query := `
		UPDATE habits
		SET name = ?, icon = ?, xp_reward = ?, reminder_enabled = ?, reminder_time = ?, active = ?, updated_at = ?
		WHERE id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, h.Name, h.Icon, h.XPReward, h.ReminderEnabled, h.ReminderTime, h.Active, h.UpdatedAt, h.ID); err != nil {
		return fmt.Errorf("failed to update habit: %w", err)
	}
	return nil
}

// DeleteHabit deletes a habit and its completions
func (r *HabitRepository) DeleteHabit(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM habits WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	return nil
}
