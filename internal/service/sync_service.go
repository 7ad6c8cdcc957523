package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"habitheroes/internal/clock"
	"habitheroes/internal/database"
	"habitheroes/internal/models"
	"habitheroes/internal/validation"
)

var ErrDeviceNotFound = errors.New("device not found")

// recentCompletionDays bounds the completion history sent in a sync pull
const recentCompletionDays = 30

// DeviceInfo is what a client reports when registering
type DeviceInfo struct {
	DeviceID   string `json:"device_id"`
	Name       string `json:"name"`
	DeviceType string `json:"device_type"`
	PushToken  string `json:"push_token"`
}

// SyncService keeps parent devices up to date with family activity
type SyncService struct {
	stores *Stores
	clk    clock.Clock
}

// NewSyncService creates a new sync service
func NewSyncService(stores *Stores, clk clock.Clock) *SyncService {
	return &SyncService{stores: stores, clk: clk}
}

// RegisterDevice registers a device for a user, or refreshes the existing
// registration with the same device id
func (s *SyncService) RegisterDevice(ctx context.Context, userID int64, info DeviceInfo) (*models.Device, error) {
	info.DeviceID = strings.TrimSpace(info.DeviceID)
	if err := validation.Required("device_id", info.DeviceID); err != nil {
		return nil, err
	}
	if err := validation.ValidateDeviceType(info.DeviceType); err != nil {
		return nil, err
	}

	device := &models.Device{
		UserID:     userID,
		DeviceID:   info.DeviceID,
		Name:       validation.NormalizeName(info.Name),
		DeviceType: info.DeviceType,
		PushToken:  info.PushToken,
	}
	if err := s.stores.Sync.UpsertDevice(ctx, device, s.clk.Now()); err != nil {
		return nil, err
	}
	return s.stores.Sync.GetDevice(ctx, userID, info.DeviceID)
}

// CreateSyncEvent appends one event to a user's log
func (s *SyncService) CreateSyncEvent(ctx context.Context, event *models.SyncEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clk.Now()
	}
	return s.stores.Sync.CreateEvent(ctx, event)
}

// Emit records an event for every parent of a family. Delivery is best
// effort: failures are logged and never returned.
func (s *SyncService) Emit(ctx context.Context, familyID int64, eventType, entityType string, entityID int64, payload interface{}) {
	ctx, span := startSpan(ctx, "SyncService.Emit")
	defer span.End()

	userIDs, err := s.stores.Families.ListParentUserIDs(ctx, familyID)
	if err != nil {
		log.Printf("Warning: failed to emit %s for family %d: %v", eventType, familyID, err)
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Warning: failed to encode %s payload: %v", eventType, err)
		raw = []byte("{}")
	}

	now := s.clk.Now()
	for _, userID := range userIDs {
		event := &models.SyncEvent{
			UserID:     userID,
			EventType:  eventType,
			EntityType: entityType,
			EntityID:   entityID,
			Payload:    raw,
			Timestamp:  now,
		}
		if err := s.stores.Sync.CreateEvent(ctx, event); err != nil {
			log.Printf("Warning: failed to emit %s to user %d: %v", eventType, userID, err)
		}
	}
}

// GetPendingSyncEvents returns a user's events newer than lastSync, or all
// of them when lastSync is nil, newest first and capped
func (s *SyncService) GetPendingSyncEvents(ctx context.Context, userID int64, lastSync *time.Time) ([]models.SyncEvent, error) {
	return s.stores.Sync.ListEvents(ctx, userID, lastSync, models.MaxPendingSyncEvents)
}

// MarkEventsProcessed flags the given events of a user and returns how many changed
func (s *SyncService) MarkEventsProcessed(ctx context.Context, userID int64, ids []int64) (int64, error) {
	return s.stores.Sync.MarkProcessed(ctx, userID, ids)
}

// MarkCompleted acknowledges events from a device and records its heartbeat
func (s *SyncService) MarkCompleted(ctx context.Context, userID int64, deviceID string, ids []int64) (int64, error) {
	var marked int64
	err := database.WithTx(ctx, s.stores.DB, func(tx *database.Tx) error {
		syncRepo := s.stores.Sync.WithTx(tx)
		ok, err := syncRepo.TouchDevice(ctx, userID, deviceID, s.clk.Now())
		if err != nil {
			return err
		}
		if !ok {
			return ErrDeviceNotFound
		}
		marked, err = syncRepo.MarkProcessed(ctx, userID, ids)
		return err
	})
	return marked, err
}

// PruneEvents deletes processed events older than retention. A non-positive
// retention keeps everything.
func (s *SyncService) PruneEvents(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	return s.stores.Sync.DeleteProcessedBefore(ctx, s.clk.Now().Add(-retention))
}

// SyncFamilyData returns the full state of every child in the user's family
// together with the user's pending events
func (s *SyncService) SyncFamilyData(ctx context.Context, userID int64, lastSync *time.Time) (*models.FamilySyncData, error) {
	ctx, span := startSpan(ctx, "SyncService.SyncFamilyData")
	var err error
	defer func() { endSpan(span, err) }()

	membership, err := s.stores.Families.GetMembership(ctx, userID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		err = ErrFamilyNotFound
		return nil, err
	}

	children, err := s.stores.Children.ListChildrenByFamily(ctx, membership.FamilyID)
	if err != nil {
		return nil, err
	}

	data := &models.FamilySyncData{Children: []models.ChildSyncData{}, ServerTime: s.clk.Now()}
	for i := range children {
		var bundle *models.ChildSyncData
		bundle, err = s.childData(ctx, &children[i])
		if err != nil {
			return nil, err
		}
		data.Children = append(data.Children, *bundle)
	}

	data.PendingEvents, err = s.GetPendingSyncEvents(ctx, userID, lastSync)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// SyncChildFamilyData returns one child's state. Events come from the log of
// the family's owner, since children have no log of their own.
func (s *SyncService) SyncChildFamilyData(ctx context.Context, child *models.Child, lastSync *time.Time) (*models.FamilySyncData, error) {
	ctx, span := startSpan(ctx, "SyncService.SyncChildFamilyData")
	var err error
	defer func() { endSpan(span, err) }()

	bundle, err := s.childData(ctx, child)
	if err != nil {
		return nil, err
	}
	data := &models.FamilySyncData{
		Children:      []models.ChildSyncData{*bundle},
		PendingEvents: []models.SyncEvent{},
		ServerTime:    s.clk.Now(),
	}

	ownerID, err := s.stores.Families.GetOwnerUserID(ctx, child.FamilyID)
	if err != nil {
		return nil, err
	}
	if ownerID != 0 {
		data.PendingEvents, err = s.GetPendingSyncEvents(ctx, ownerID, lastSync)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (s *SyncService) childData(ctx context.Context, child *models.Child) (*models.ChildSyncData, error) {
	bundle := &models.ChildSyncData{Child: *child}
	var err error

	if bundle.Habits, err = s.stores.Habits.ListHabitsByChild(ctx, child.ID, true); err != nil {
		return nil, fmt.Errorf("failed to load habits of child %d: %w", child.ID, err)
	}
	since := s.clk.Now().AddDate(0, 0, -recentCompletionDays).Format(clock.DateLayout)
	if bundle.Completions, err = s.stores.Completions.ListForChild(ctx, child.ID, since); err != nil {
		return nil, fmt.Errorf("failed to load completions of child %d: %w", child.ID, err)
	}
	rewards, err := s.stores.Rewards.ListRewardsForChild(ctx, child.FamilyID, child.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rewards of child %d: %w", child.ID, err)
	}
	bundle.Rewards = withoutTemplates(rewards)
	if bundle.Claims, err = s.stores.Rewards.ListClaimsByChild(ctx, child.ID); err != nil {
		return nil, fmt.Errorf("failed to load claims of child %d: %w", child.ID, err)
	}
	if bundle.Challenges, err = s.stores.Challenges.ListChallengesByChild(ctx, child.ID); err != nil {
		return nil, fmt.Errorf("failed to load challenges of child %d: %w", child.ID, err)
	}
	if bundle.Controls, err = s.stores.Controls.GetControls(ctx, child.ID); err != nil {
		return nil, fmt.Errorf("failed to load controls of child %d: %w", child.ID, err)
	}
	if bundle.Controls == nil {
		bundle.Controls = models.DefaultControls(child.ID)
	}
	return bundle, nil
}
