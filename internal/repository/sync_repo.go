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

// SyncRepository handles devices and the sync event log
type SyncRepository struct {
	db database.DBTX
}

// NewSyncRepository creates a new sync repository
func NewSyncRepository(db database.DBTX) *SyncRepository {
	return &SyncRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *SyncRepository) WithTx(tx *database.Tx) *SyncRepository {
	return &SyncRepository{db: tx}
}

const deviceColumns = `id, user_id, device_id, name, device_type, push_token, active, last_sync_at, created_at, updated_at`

// GetDevice retrieves a device by owner and client device id
func (r *SyncRepository) GetDevice(ctx context.Context, userID int64, deviceID string) (*models.Device, error) {
	query := "SELECT " + deviceColumns + " FROM devices WHERE user_id = ? AND device_id = ?"
	d := &models.Device{}
	var lastSync sql.NullTime
	err := r.db.QueryRowContext(ctx, query, userID, deviceID).Scan(&d.ID, &d.UserID, &d.DeviceID, &d.Name,
		&d.DeviceType, &d.PushToken, &d.Active, &lastSync, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	d.LastSyncAt = timePtr(lastSync)
	return d, nil
}

// UpsertDevice registers a device or refreshes an existing registration,
// keyed by (user id, device id)
func (r *SyncRepository) UpsertDevice(ctx context.Context, d *models.Device, now time.Time) error {
	query := `
		INSERT INTO devices (user_id, device_id, name, device_type, push_token, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	` + r.db.GetDialect().UpsertClause(
		[]string{"user_id", "device_id"},
		[]string{"name", "device_type", "push_token", "active", "updated_at"},
	)
	if _, err := r.db.ExecContext(ctx, query, d.UserID, d.DeviceID, d.Name, d.DeviceType, d.PushToken, true, now, now); err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

// TouchDevice records a successful sync and reports whether the device exists
func (r *SyncRepository) TouchDevice(ctx context.Context, userID int64, deviceID string, now time.Time) (bool, error) {
	query := "UPDATE devices SET last_sync_at = ?, active = ?, updated_at = ? WHERE user_id = ? AND device_id = ?"
	result, err := r.db.ExecContext(ctx, query, now, true, now, userID, deviceID)
	if err != nil {
		return false, fmt.Errorf("failed to update device sync time: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update device sync time: %w", err)
	}
	return n > 0, nil
}

// ListDevices returns a user's devices
func (r *SyncRepository) ListDevices(ctx context.Context, userID int64) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var d models.Device
		var lastSync sql.NullTime
		if err := rows.Scan(&d.ID, &d.UserID, &d.DeviceID, &d.Name, &d.DeviceType, &d.PushToken, &d.Active,
			&lastSync, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		d.LastSyncAt = timePtr(lastSync)
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// CreateEvent appends a sync event and sets its ID
func (r *SyncRepository) CreateEvent(ctx context.Context, e *models.SyncEvent) error {
	payload := string(e.Payload)
	if payload == "" {
		payload = "{}"
	}
	query := `
		INSERT INTO sync_events (user_id, event_type, entity_type, entity_id, payload, occurred_at, processed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningIDContext(ctx, query, e.UserID, e.EventType, e.EntityType, e.EntityID, payload, e.Timestamp, e.Processed)
	if err != nil {
		return fmt.Errorf("failed to create sync event: %w", err)
	}
	e.ID = id
	return nil
}

// ListEvents returns a user's events newer than since (all when nil),
// newest first, at most limit of them
func (r *SyncRepository) ListEvents(ctx context.Context, userID int64, since *time.Time, limit int) ([]models.SyncEvent, error) {
	query := `
		SELECT id, user_id, event_type, entity_type, entity_id, payload, occurred_at, processed
		FROM sync_events
		WHERE user_id = ?`
	args := []interface{}{userID}
	if since != nil {
		query += " AND occurred_at > ?"
		args = append(args, since.UTC())
	}
	query += " ORDER BY occurred_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync events: %w", err)
	}
	defer rows.Close()

	events := []models.SyncEvent{}
	for rows.Next() {
		var e models.SyncEvent
		var payload string
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.EntityType, &e.EntityID, &payload, &e.Timestamp, &e.Processed); err != nil {
			return nil, fmt.Errorf("failed to scan sync event: %w", err)
		}
		e.Payload = []byte(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkProcessed flags the given events of a user as processed and returns
// how many rows changed. Ids belonging to other users are ignored.
func (r *SyncRepository) MarkProcessed(ctx context.Context, userID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := "UPDATE sync_events SET processed = ? WHERE user_id = ? AND id IN (" + database.Placeholders(len(ids)) + ")"
	args := append([]interface{}{true, userID}, int64Args(ids)...)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark sync events processed: %w", err)
	}
	return result.RowsAffected()
}

// DeleteProcessedBefore prunes processed events older than cutoff. Events no
// device has acknowledged are kept for catch-up.
func (r *SyncRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM sync_events WHERE processed = ? AND occurred_at < ?", true, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sync events: %w", err)
	}
	return result.RowsAffected()
}
