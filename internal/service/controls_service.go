package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"habitheroes/internal/clock"
	"habitheroes/internal/models"
	"habitheroes/internal/repository"
	"habitheroes/internal/security"
	"habitheroes/internal/validation"
)

var (
	ErrFeatureDisabled = errors.New("feature disabled by parental controls")
	ErrChildBlocked    = errors.New("access blocked by parental controls")
)

// BlockedError reports why a child is currently locked out
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrChildBlocked.Error(), e.Reason)
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrChildBlocked
}

// Features a parent can switch off per child
const (
	FeatureRewards    = "rewards"
	FeatureAvatarShop = "avatar_shop"
	FeatureChallenges = "challenges"
)

// maxScreenTimeMinutes is one full day
const maxScreenTimeMinutes = 24 * 60

// ControlsInput is the editable part of a child's parental controls
type ControlsInput struct {
	DailyScreenTimeMinutes int    `json:"daily_screen_time_minutes"`
	BedtimeStart           string `json:"bedtime_start"`
	BedtimeEnd             string `json:"bedtime_end"`
	RewardsEnabled         bool   `json:"rewards_enabled"`
	AvatarShopEnabled      bool   `json:"avatar_shop_enabled"`
	ChallengesEnabled      bool   `json:"challenges_enabled"`
	EmergencyMode          bool   `json:"emergency_mode"`
}

// ApprovalInput is the editable part of a family's auto-approval settings
type ApprovalInput struct {
	Enabled    bool   `json:"enabled"`
	DelayValue int    `json:"delay_value"`
	DelayUnit  string `json:"delay_unit"`
}

// ControlsService manages parental controls and auto-approval settings
type ControlsService struct {
	stores *Stores
	clk    clock.Clock
	sync   *SyncService
	loc    *time.Location
}

// NewControlsService creates a new controls service. Bedtime windows are
// read as wall-clock times in loc; nil means UTC.
func NewControlsService(stores *Stores, clk clock.Clock, sync *SyncService, loc *time.Location) *ControlsService {
	if loc == nil {
		loc = time.UTC
	}
	return &ControlsService{stores: stores, clk: clk, sync: sync, loc: loc}
}

// controlsFor returns the stored controls of a child, or the defaults
func controlsFor(ctx context.Context, repo *repository.ControlsRepository, childID int64) (*models.ParentalControls, error) {
	controls, err := repo.GetControls(ctx, childID)
	if err != nil {
		return nil, err
	}
	if controls == nil {
		controls = models.DefaultControls(childID)
	}
	return controls, nil
}

// requireFeature fails with ErrFeatureDisabled when a parent switched the
// feature off for the child
func requireFeature(ctx context.Context, stores *Stores, childID int64, feature string) error {
	controls, err := controlsFor(ctx, stores.Controls, childID)
	if err != nil {
		return err
	}
	enabled := true
	switch feature {
	case FeatureRewards:
		enabled = controls.RewardsEnabled
	case FeatureAvatarShop:
		enabled = controls.AvatarShopEnabled
	case FeatureChallenges:
		enabled = controls.ChallengesEnabled
	}
	if !enabled {
		return ErrFeatureDisabled
	}
	return nil
}

// GetControls returns a child's controls, storing the defaults on first access
func (s *ControlsService) GetControls(ctx context.Context, p *security.Principal, childID int64) (*models.ParentalControls, error) {
	if _, err := childFor(ctx, s.stores.Children, p, childID); err != nil {
		return nil, err
	}
	controls, err := s.stores.Controls.GetControls(ctx, childID)
	if err != nil {
		return nil, err
	}
	if controls != nil {
		return controls, nil
	}

	controls = models.DefaultControls(childID)
	controls.UpdatedAt = s.clk.Now()
	if err := s.stores.Controls.SaveControls(ctx, controls); err != nil {
		return nil, err
	}
	return controls, nil
}

// UpdateControls replaces a child's controls
func (s *ControlsService) UpdateControls(ctx context.Context, p *security.Principal, childID int64, in ControlsInput) (*models.ParentalControls, error) {
	child, err := parentChildFor(ctx, s.stores.Children, p, childID)
	if err != nil {
		return nil, err
	}
	if in.DailyScreenTimeMinutes < 0 || in.DailyScreenTimeMinutes > maxScreenTimeMinutes {
		return nil, validation.ValidationError{Field: "daily_screen_time_minutes", Message: "must be between 0 and 1440"}
	}
	if err := validation.ValidateTimeOfDay("bedtime_start", in.BedtimeStart); err != nil {
		return nil, err
	}
	if err := validation.ValidateTimeOfDay("bedtime_end", in.BedtimeEnd); err != nil {
		return nil, err
	}
	if (in.BedtimeStart == "") != (in.BedtimeEnd == "") {
		return nil, validation.ValidationError{Field: "bedtime_end", Message: "bedtime needs both a start and an end"}
	}

	controls := &models.ParentalControls{
		ChildID:                childID,
		DailyScreenTimeMinutes: in.DailyScreenTimeMinutes,
		BedtimeStart:           in.BedtimeStart,
		BedtimeEnd:             in.BedtimeEnd,
		RewardsEnabled:         in.RewardsEnabled,
		AvatarShopEnabled:      in.AvatarShopEnabled,
		ChallengesEnabled:      in.ChallengesEnabled,
		EmergencyMode:          in.EmergencyMode,
		UpdatedAt:              s.clk.Now(),
	}
	if err := s.stores.Controls.SaveControls(ctx, controls); err != nil {
		return nil, err
	}
	saved, err := s.stores.Controls.GetControls(ctx, childID)
	if err != nil {
		return nil, err
	}

	s.sync.Emit(ctx, child.FamilyID, models.EventControlsUpdated, models.EntityControls, childID, saved)
	return saved, nil
}

// CheckAccess returns a *BlockedError when the child may not use the app
// right now
func (s *ControlsService) CheckAccess(ctx context.Context, child *models.Child) error {
	controls, err := controlsFor(ctx, s.stores.Controls, child.ID)
	if err != nil {
		return err
	}
	if blocked, reason := controls.Blocks(s.clk.Now().In(s.loc)); blocked {
		return &BlockedError{Reason: reason}
	}
	return nil
}

// GetApprovalSettings returns the caller's family auto-approval settings
func (s *ControlsService) GetApprovalSettings(ctx context.Context, p *security.Principal) (*models.ApprovalSettings, error) {
	if err := requireParent(p); err != nil {
		return nil, err
	}
	settings, err := s.stores.Controls.GetApprovalSettings(ctx, p.FamilyID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = models.DefaultApprovalSettings(p.FamilyID)
	}
	return settings, nil
}

// UpdateApprovalSettings replaces the caller's family auto-approval settings
func (s *ControlsService) UpdateApprovalSettings(ctx context.Context, p *security.Principal, in ApprovalInput) (*models.ApprovalSettings, error) {
	if err := requireParent(p); err != nil {
		return nil, err
	}
	if err := validation.ValidateDelay(in.DelayValue, in.DelayUnit); err != nil {
		return nil, err
	}
	settings := &models.ApprovalSettings{
		FamilyID:   p.FamilyID,
		Enabled:    in.Enabled,
		DelayValue: in.DelayValue,
		DelayUnit:  in.DelayUnit,
		UpdatedAt:  s.clk.Now(),
	}
	if err := s.stores.Controls.SaveApprovalSettings(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}
