package service

import (
	"context"

	"habitheroes/internal/models"
)

// Notifier delivers out-of-band messages to parents. Failures are reported
// to the caller, which logs them and carries on.
type Notifier interface {
	HabitSubmitted(ctx context.Context, parents []models.User, child *models.Child, habit *models.Habit) error
	RewardClaimed(ctx context.Context, parents []models.User, child *models.Child, reward *models.Reward) error
}

// NopNotifier discards every message
type NopNotifier struct{}

func (NopNotifier) HabitSubmitted(context.Context, []models.User, *models.Child, *models.Habit) error {
	return nil
}

func (NopNotifier) RewardClaimed(context.Context, []models.User, *models.Child, *models.Reward) error {
	return nil
}
