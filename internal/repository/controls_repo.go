package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"habitheroes/internal/database"
	"habitheroes/internal/models"
)

// ControlsRepository handles parental controls and family approval settings
type ControlsRepository struct {
	db database.DBTX
}

// NewControlsRepository creates a new controls repository
func NewControlsRepository(db database.DBTX) *ControlsRepository {
	return &ControlsRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *ControlsRepository) WithTx(tx *database.Tx) *ControlsRepository {
	return &ControlsRepository{db: tx}
}

// GetControls retrieves a child's parental controls, or nil if none are stored
func (r *ControlsRepository) GetControls(ctx context.Context, childID int64) (*models.ParentalControls, error) {
	query := `
		SELECT id, child_id, daily_screen_time_minutes, bedtime_start, bedtime_end, rewards_enabled,
			avatar_shop_enabled, challenges_enabled, emergency_mode, updated_at
		FROM parental_controls
		WHERE child_id = ?
	`
	p := &models.ParentalControls{}
	err := r.db.QueryRowContext(ctx, query, childID).Scan(&p.ID, &p.ChildID, &p.DailyScreenTimeMinutes,
		&p.BedtimeStart, &p.BedtimeEnd, &p.RewardsEnabled, &p.AvatarShopEnabled, &p.ChallengesEnabled,
		&p.EmergencyMode, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get parental controls: %w", err)
	}
	return p, nil
}

// SaveControls updates the controls row of a child, inserting it on first save
func (r *ControlsRepository) SaveControls(ctx context.Context, p *models.ParentalControls) error {
	update := `
		UPDATE parental_controls
		SET daily_screen_time_minutes = ?, bedtime_start = ?, bedtime_end = ?, rewards_enabled = ?,
			avatar_shop_enabled = ?, challenges_enabled = ?, emergency_mode = ?, updated_at = ?
		WHERE child_id = ?
	`
	result, err := r.db.ExecContext(ctx, update, p.DailyScreenTimeMinutes, p.BedtimeStart, p.BedtimeEnd,
		p.RewardsEnabled, p.AvatarShopEnabled, p.ChallengesEnabled, p.EmergencyMode, p.UpdatedAt, p.ChildID)
	if err != nil {
		return fmt.Errorf("failed to update parental controls: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}

	insert := `
		INSERT INTO parental_controls (child_id, daily_screen_time_minutes, bedtime_start, bedtime_end,
			rewards_enabled, avatar_shop_enabled, challenges_enabled, emergency_mode, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningIDContext(ctx, insert, p.ChildID, p.DailyScreenTimeMinutes, p.BedtimeStart,
		p.BedtimeEnd, p.RewardsEnabled, p.AvatarShopEnabled, p.ChallengesEnabled, p.EmergencyMode, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create parental controls: %w", err)
	}
	p.ID = id
	return nil
}

// GetApprovalSettings retrieves a family's auto-approval settings, or nil
func (r *ControlsRepository) GetApprovalSettings(ctx context.Context, familyID int64) (*models.ApprovalSettings, error) {
	query := "SELECT family_id, enabled, delay_value, delay_unit, updated_at FROM approval_settings WHERE family_id = ?"
	s := &models.ApprovalSettings{}
	err := r.db.QueryRowContext(ctx, query, familyID).Scan(&s.FamilyID, &s.Enabled, &s.DelayValue, &s.DelayUnit, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval settings: %w", err)
	}
	return s, nil
}

// SaveApprovalSettings updates or inserts a family's auto-approval settings
func (r *ControlsRepository) SaveApprovalSettings(ctx context.Context, s *models.ApprovalSettings) error {
	update := "UPDATE approval_settings SET enabled = ?, delay_value = ?, delay_unit = ?, updated_at = ? WHERE family_id = ?"
	result, err := r.db.ExecContext(ctx, update, s.Enabled, s.DelayValue, s.DelayUnit, s.UpdatedAt, s.FamilyID)
	if err != nil {
		return fmt.Errorf("failed to update approval settings: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}

	insert := "INSERT INTO approval_settings (family_id, enabled, delay_value, delay_unit, updated_at) VALUES (?, ?, ?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, insert, s.FamilyID, s.Enabled, s.DelayValue, s.DelayUnit, s.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create approval settings: %w", err)
	}
	return nil
}

// ListEnabledApprovalSettings returns the settings of every family with auto-approval on
func (r *ControlsRepository) ListEnabledApprovalSettings(ctx context.Context) ([]models.ApprovalSettings, error) {
	query := "SELECT family_id, enabled, delay_value, delay_unit, updated_at FROM approval_settings WHERE enabled = ? ORDER BY family_id"
	rows, err := r.db.QueryContext(ctx, query, true)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval settings: %w", err)
	}
	defer rows.Close()

	var settings []models.ApprovalSettings
	for rows.Next() {
		var s models.ApprovalSettings
		if err := rows.Scan(&s.FamilyID, &s.Enabled, &s.DelayValue, &s.DelayUnit, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approval settings: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}
