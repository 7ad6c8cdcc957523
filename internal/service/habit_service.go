package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"habitheroes/internal/catalog"
	"habitheroes/internal/clock"
	"habitheroes/internal/database"
	"habitheroes/internal/models"
	"habitheroes/internal/repository"
	"habitheroes/internal/security"
	"habitheroes/internal/validation"
)

var (
	ErrHabitNotFound       = errors.New("habit not found")
	ErrMasterHabitNotFound = errors.New("master habit not found")
)

// HabitInput carries the editable fields shared by master and child habits
type HabitInput struct {
	Name            string `json:"name"`
	Icon            string `json:"icon"`
	XPReward        int    `json:"xp_reward"`
	ReminderEnabled bool   `json:"reminder_enabled"`
	ReminderTime    string `json:"reminder_time"`
	Active          *bool  `json:"active,omitempty"`
}

func (in *HabitInput) normalize() error {
	in.Name = validation.NormalizeName(in.Name)
	if err := validation.ValidateTitle("name", in.Name); err != nil {
		return err
	}
	if err := validation.ValidateXPReward(in.XPReward); err != nil {
		return err
	}
	return validation.ValidateTimeOfDay("reminder_time", in.ReminderTime)
}

// HabitService manages master habit templates and child habits
type HabitService struct {
	stores *Stores
	clk    clock.Clock
}

// NewHabitService creates a new habit service
func NewHabitService(stores *Stores, clk clock.Clock) *HabitService {
	return &HabitService{stores: stores, clk: clk}
}

// seedStarterHabits copies the catalog's starter habits into a new family
func seedStarterHabits(ctx context.Context, habits *repository.HabitRepository, familyID int64, now time.Time) error {
	cat, err := catalog.Load()
	if err != nil {
		return err
	}
	for _, starter := range cat.MasterHabits {
		m := &models.MasterHabit{
			FamilyID:        familyID,
			Name:            starter.Name,
			Icon:            starter.Icon,
			XPReward:        starter.XPReward,
			ReminderEnabled: starter.ReminderTime != "",
			ReminderTime:    starter.ReminderTime,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := habits.CreateMasterHabit(ctx, m); err != nil {
			return fmt.Errorf("failed to seed %q: %w", starter.Name, err)
		}
	}
	return nil
}

func (s *HabitService) masterFor(ctx context.Context, p *security.Principal, id int64) (*models.MasterHabit, error) {
	if err := requireParent(p); err != nil {
		return nil, err
	}
	m, err := s.stores.Habits.GetMasterHabit(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil || m.FamilyID != p.FamilyID {
		return nil, ErrMasterHabitNotFound
	}
	return m, nil
}

// loadHabit loads a habit whose child the caller may act for
func loadHabit(ctx context.Context, stores *Stores, p *security.Principal, id int64) (*models.Habit, *models.Child, error) {
	h, err := stores.Habits.GetHabit(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if h == nil {
		return nil, nil, ErrHabitNotFound
	}
	child, err := childFor(ctx, stores.Children, p, h.ChildID)
	if errors.Is(err, ErrChildNotFound) {
		return nil, nil, ErrHabitNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return h, child, nil
}

// ListMasterHabits lists the caller's family templates
func (s *HabitService) ListMasterHabits(ctx context.Context, p *security.Principal) ([]models.MasterHabit, error) {
	if err := requireParent(p); err != nil {
		return nil, err
	}
	return s.stores.Habits.ListMasterHabits(ctx, p.FamilyID)
}

// CreateMasterHabit adds a template to the caller's family
func (s *HabitService) CreateMasterHabit(ctx context.Context, p *security.Principal, in HabitInput) (*models.MasterHabit, error) {
	if err := requireParent(p); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	now := s.clk.Now()
	m := &models.MasterHabit{
		FamilyID:        p.FamilyID,
		Name:            in.Name,
		Icon:            in.Icon,
		XPReward:        in.XPReward,
		ReminderEnabled: in.ReminderEnabled,
		ReminderTime:    in.ReminderTime,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.stores.Habits.CreateMasterHabit(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateMasterHabit edits a template. Habits cloned from it keep their own values.
func (s *HabitService) UpdateMasterHabit(ctx context.Context, p *security.Principal, id int64, in HabitInput) (*models.MasterHabit, error) {
	m, err := s.masterFor(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	m.Name = in.Name
	m.Icon = in.Icon
	m.XPReward = in.XPReward
	m.ReminderEnabled = in.ReminderEnabled
	m.ReminderTime = in.ReminderTime
	m.UpdatedAt = s.clk.Now()
	if err := s.stores.Habits.UpdateMasterHabit(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteMasterHabit deletes a template; cloned habits stay and lose their origin
func (s *HabitService) DeleteMasterHabit(ctx context.Context, p *security.Principal, id int64) error {
	if _, err := s.masterFor(ctx, p, id); err != nil {
		return err
	}
	return s.stores.Habits.DeleteMasterHabit(ctx, id)
}

// AssignMasterHabit clones a template into one independent habit per child
func (s *HabitService) AssignMasterHabit(ctx context.Context, p *security.Principal, masterID int64, childIDs []int64) ([]models.Habit, error) {
	m, err := s.masterFor(ctx, p, masterID)
	if err != nil {
		return nil, err
	}
	if len(childIDs) == 0 {
		return nil, validation.ValidationError{Field: "child_ids", Message: "at least one child is required"}
	}
	for _, childID := range childIDs {
		if _, err := childFor(ctx, s.stores.Children, p, childID); err != nil {
			return nil, err
		}
	}

	now := s.clk.Now()
	created := make([]models.Habit, 0, len(childIDs))
	err = database.WithTx(ctx, s.stores.DB, func(tx *database.Tx) error {
		habits := s.stores.Habits.WithTx(tx)
		for _, childID := range childIDs {
			h := m.FromMaster(childID)
			h.CreatedAt = now
			h.UpdatedAt = now
			if err := habits.CreateHabit(ctx, h); err != nil {
				return err
			}
			created = append(created, *h)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListHabits lists a child's habits. Children only see active ones.
func (s *HabitService) ListHabits(ctx context.Context, p *security.Principal, childID int64) ([]models.Habit, error) {
	if _, err := childFor(ctx, s.stores.Children, p, childID); err != nil {
		return nil, err
	}
	return s.stores.Habits.ListHabitsByChild(ctx, childID, p.IsChild())
}

// CreateHabit adds a habit directly to a child
func (s *HabitService) CreateHabit(ctx context.Context, p *security.Principal, childID int64, in HabitInput) (*models.Habit, error) {
	if _, err := parentChildFor(ctx, s.stores.Children, p, childID); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	now := s.clk.Now()
	h := &models.Habit{
		ChildID:         childID,
		Name:            in.Name,
		Icon:            in.Icon,
		XPReward:        in.XPReward,
		ReminderEnabled: in.ReminderEnabled,
		ReminderTime:    in.ReminderTime,
		Active:          in.Active == nil || *in.Active,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.stores.Habits.CreateHabit(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// UpdateHabit edits a child's habit
func (s *HabitService) UpdateHabit(ctx context.Context, p *security.Principal, id int64, in HabitInput) (*models.Habit, error) {
	if err := requireParent(p); err != nil {
		return nil, err
	}
	h, _, err := loadHabit(ctx, s.stores, p, id)
	if err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	h.Name = in.Name
	h.Icon = in.Icon
	h.XPReward = in.XPReward
	h.ReminderEnabled = in.ReminderEnabled
	h.ReminderTime = in.ReminderTime
	if in.Active != nil {
		h.Active = *in.Active
	}
	h.UpdatedAt = s.clk.Now()
	if err := s.stores.Habits.UpdateHabit(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// DeleteHabit deletes a child's habit and its completions
func (s *HabitService) DeleteHabit(ctx context.Context, p *security.Principal, id int64) error {
	if err := requireParent(p); err != nil {
		return err
	}
	if _, _, err := loadHabit(ctx, s.stores, p, id); err != nil {
		return err
	}
	return s.stores.Habits.DeleteHabit(ctx, id)
}
