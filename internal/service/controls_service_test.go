package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitheroes/internal/models"
	"habitheroes/internal/validation"
)

func TestControlsService_DefaultsAndUpdate(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")

	controls, err := e.controls.GetControls(e.ctx, e.parent, kid.Child.ID)
	require.NoError(t, err)
	assert.True(t, controls.RewardsEnabled)
	assert.True(t, controls.AvatarShopEnabled)
	assert.True(t, controls.ChallengesEnabled)
	assert.False(t, controls.EmergencyMode)

	_, err = e.controls.UpdateControls(e.ctx, kid, kid.Child.ID, ControlsInput{})
	assert.ErrorIs(t, err, ErrForbidden)

	invalid := []ControlsInput{
		{DailyScreenTimeMinutes: -1},
		{DailyScreenTimeMinutes: 1441},
		{BedtimeStart: "25:00", BedtimeEnd: "07:00"},
		{BedtimeStart: "20:00"},
	}
	for _, in := range invalid {
		_, err := e.controls.UpdateControls(e.ctx, e.parent, kid.Child.ID, in)
		assert.True(t, validation.IsValidationError(err), "%+v", in)
	}

	updated, err := e.controls.UpdateControls(e.ctx, e.parent, kid.Child.ID, ControlsInput{
		DailyScreenTimeMinutes: 90, BedtimeStart: "20:30", BedtimeEnd: "07:00", RewardsEnabled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 90, updated.DailyScreenTimeMinutes)
	assert.False(t, updated.AvatarShopEnabled)
	assert.Contains(t, e.events(t, e.parent), models.EventControlsUpdated)

	seen, err := e.controls.GetControls(e.ctx, kid, kid.Child.ID)
	require.NoError(t, err)
	assert.Equal(t, "20:30", seen.BedtimeStart)
}

func TestControlsService_CheckAccess(t *testing.T) {
	tests := []struct {
		name    string
		loc     *time.Location
		in      ControlsInput
		blocked string
	}{
		{"open", time.UTC, ControlsInput{BedtimeStart: "20:00", BedtimeEnd: "07:00"}, ""},
		{"emergency", time.UTC, ControlsInput{EmergencyMode: true}, models.BlockEmergency},
		{"bedtime in family zone", time.FixedZone("UTC-5", -5*3600), ControlsInput{BedtimeStart: "20:00", BedtimeEnd: "07:00"}, models.BlockBedtime},
		{"daytime window", time.UTC, ControlsInput{BedtimeStart: "08:30", BedtimeEnd: "10:00"}, models.BlockBedtime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			kid, _ := e.addChild(t, e.parent, "Leo")
			svc := NewControlsService(e.stores, e.clk, e.sync, tt.loc)
			_, err := svc.UpdateControls(e.ctx, e.parent, kid.Child.ID, tt.in)
			require.NoError(t, err)

			err = svc.CheckAccess(e.ctx, kid.Child)
			if tt.blocked == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrChildBlocked)
			var be *BlockedError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, tt.blocked, be.Reason)
		})
	}
}

func TestControlsService_ApprovalSettings(t *testing.T) {
	e := newEnv(t)

	settings, err := e.controls.GetApprovalSettings(e.ctx, e.parent)
	require.NoError(t, err)
	assert.False(t, settings.Enabled)

	_, err = e.controls.UpdateApprovalSettings(e.ctx, e.parent, ApprovalInput{Enabled: true, DelayValue: 0, DelayUnit: models.UnitDays})
	assert.True(t, validation.IsValidationError(err))
	_, err = e.controls.UpdateApprovalSettings(e.ctx, e.parent, ApprovalInput{Enabled: true, DelayValue: 2, DelayUnit: "fortnights"})
	assert.True(t, validation.IsValidationError(err))

	_, err = e.controls.UpdateApprovalSettings(e.ctx, e.parent, ApprovalInput{Enabled: true, DelayValue: 2, DelayUnit: models.UnitDays})
	require.NoError(t, err)
	settings, err = e.controls.GetApprovalSettings(e.ctx, e.parent)
	require.NoError(t, err)
	assert.True(t, settings.Enabled)
	assert.Equal(t, 48*time.Hour, settings.Delay())
}

func TestChallengeService_Lifecycle(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")

	_, err := e.challenges.CreateChallenge(e.ctx, e.parent, ChallengeInput{
		ChildID: kid.Child.ID, Title: "Backwards", BonusPoints: 5,
		StartsAt: monday, EndsAt: monday.Add(-time.Hour),
	})
	assert.True(t, validation.IsValidationError(err))

	saturday := monday.AddDate(0, 0, 5)
	w, err := e.challenges.CreateChallenge(e.ctx, e.parent, ChallengeInput{
		ChildID: kid.Child.ID, Title: "Build a fort", BonusPoints: 20, BonusXP: 120,
		StartsAt: saturday, EndsAt: saturday.AddDate(0, 0, 2),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ChallengeAvailable, w.State())

	_, err = e.challenges.AcceptChallenge(e.ctx, kid, w.ID)
	assert.ErrorIs(t, err, ErrChallengeClosed, "not open before the weekend")

	_, err = e.challenges.CompleteChallenge(e.ctx, e.parent, w.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "must be accepted first")

	e.clk.Set(saturday.Add(2 * time.Hour))
	_, err = e.challenges.AcceptChallenge(e.ctx, e.parent, w.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	accepted, err := e.challenges.AcceptChallenge(e.ctx, kid, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChallengeAccepted, accepted.State())

	_, err = e.challenges.AcceptChallenge(e.ctx, kid, w.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	completed, err := e.challenges.CompleteChallenge(e.ctx, kid, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChallengeCompleted, completed.State())

	_, err = e.challenges.CompleteChallenge(e.ctx, e.parent, w.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	child := e.child(t, kid.Child.ID)
	assert.Equal(t, 20, child.RewardPoints)
	assert.Equal(t, 2, child.Level)
	assert.Equal(t, 20, child.XP)
	assert.Equal(t, 20, e.ledger(t, kid.Child.ID))

	list, err := e.challenges.ListChallenges(e.ctx, kid, kid.Child.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	types := e.events(t, e.parent)
	assert.Contains(t, types, models.EventChallengeAccepted)
	assert.Contains(t, types, models.EventChallengeCompleted)
}

func TestChallengeService_Disabled(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	w, err := e.challenges.CreateChallenge(e.ctx, e.parent, ChallengeInput{
		ChildID: kid.Child.ID, Title: "Car wash", StartsAt: monday, EndsAt: monday.Add(48 * time.Hour),
	})
	require.NoError(t, err)

	_, err = e.controls.UpdateControls(e.ctx, e.parent, kid.Child.ID, ControlsInput{RewardsEnabled: true, AvatarShopEnabled: true})
	require.NoError(t, err)

	_, err = e.challenges.AcceptChallenge(e.ctx, kid, w.ID)
	assert.ErrorIs(t, err, ErrFeatureDisabled)

	other := e.register(t, "bo@example.com", "Bo", "")
	assert.ErrorIs(t, e.challenges.DeleteChallenge(e.ctx, other, w.ID), ErrChallengeNotFound)
	assert.NoError(t, e.challenges.DeleteChallenge(e.ctx, e.parent, w.ID))
}
