package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitheroes/internal/clock"
	"habitheroes/internal/models"
)

func TestCompletionService_BrushTeethIsCreditedOnce(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	habit := e.addHabit(t, kid.Child.ID, "Brush Teeth", 50)

	submitted, err := e.completions.Submit(e.ctx, kid, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompletionPending, submitted.Status)
	assert.Equal(t, "2024-03-04", submitted.CompletionDate)
	assert.Equal(t, 50, submitted.XPEarned)
	assert.Equal(t, 5, submitted.RewardPointsEarned)
	assert.Equal(t, 1, submitted.StreakCount)
	assert.Equal(t, 0, e.child(t, kid.Child.ID).XP, "nothing is credited before review")
	assert.Equal(t, []string{"ana@example.com:Leo:Brush Teeth"}, e.notifier.submitted)

	approved, err := e.completions.Approve(e.ctx, e.parent, submitted.ID, "  great job ")
	require.NoError(t, err)
	assert.Equal(t, models.CompletionApproved, approved.Status)
	assert.Equal(t, "Ana", approved.ReviewedBy)
	assert.Equal(t, "great job", approved.ReviewMessage)
	assert.False(t, approved.AutoApproved)

	_, err = e.completions.Approve(e.ctx, e.parent, submitted.ID, "")
	assert.ErrorIs(t, err, ErrNotPending)

	child := e.child(t, kid.Child.ID)
	assert.Equal(t, 50, child.XP)
	assert.Equal(t, 50, child.TotalXP)
	assert.Equal(t, 5, child.RewardPoints)
	assert.Equal(t, 5, e.ledger(t, kid.Child.ID))

	assert.Equal(t, []string{models.EventHabitApproved, models.EventHabitCompleted}, e.events(t, e.parent))
}

func TestCompletionService_SubmitConflicts(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	habit := e.addHabit(t, kid.Child.ID, "Make Bed", 30)

	first, err := e.completions.Submit(e.ctx, kid, habit.ID)
	require.NoError(t, err)

	_, err = e.completions.Submit(e.ctx, kid, habit.ID)
	assert.ErrorIs(t, err, ErrCompletionPending)

	_, err = e.completions.Approve(e.ctx, e.parent, first.ID, "")
	require.NoError(t, err)

	_, err = e.completions.Submit(e.ctx, e.parent, habit.ID)
	assert.ErrorIs(t, err, ErrAlreadyCompletedToday)

	e.clk.Advance(24 * time.Hour)
	next, err := e.completions.Submit(e.ctx, kid, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, next.StreakCount)
}

func TestCompletionService_SubmitRules(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	other := e.register(t, "bo@example.com", "Bo", "")
	otherKid, _ := e.addChild(t, other, "Mia")
	habit := e.addHabit(t, kid.Child.ID, "Homework", 80)

	inactive := false
	paused, err := e.habits.CreateHabit(e.ctx, e.parent, kid.Child.ID, HabitInput{Name: "Piano", XPReward: 40, Active: &inactive})
	require.NoError(t, err)

	_, err = e.completions.Submit(e.ctx, kid, paused.ID)
	assert.ErrorIs(t, err, ErrHabitInactive)

	_, err = e.completions.Submit(e.ctx, otherKid, habit.ID)
	assert.ErrorIs(t, err, ErrHabitNotFound)

	_, err = e.completions.Submit(e.ctx, kid, 9999)
	assert.ErrorIs(t, err, ErrHabitNotFound)
}

func TestCompletionService_Reject(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	habit := e.addHabit(t, kid.Child.ID, "Tidy Room", 40)

	c, err := e.completions.Submit(e.ctx, kid, habit.ID)
	require.NoError(t, err)

	_, err = e.completions.Reject(e.ctx, e.parent, c.ID, "   ")
	assert.ErrorIs(t, err, ErrFeedbackRequired)

	_, err = e.completions.Reject(e.ctx, kid, c.ID, "nope")
	assert.ErrorIs(t, err, ErrForbidden)

	rejected, err := e.completions.Reject(e.ctx, e.parent, c.ID, "The floor is still covered in lego")
	require.NoError(t, err)
	assert.Equal(t, models.CompletionRejected, rejected.Status)
	assert.Equal(t, 0, e.child(t, kid.Child.ID).RewardPoints)

	_, err = e.completions.Approve(e.ctx, e.parent, c.ID, "")
	assert.ErrorIs(t, err, ErrNotPending)

	_, err = e.completions.Submit(e.ctx, kid, habit.ID)
	assert.NoError(t, err, "a rejected completion can be redone the same day")
}

func TestCompletionService_ReloadOnlyClearsTodaysUnapproved(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	brush := e.addHabit(t, kid.Child.ID, "Brush Teeth", 50)
	bed := e.addHabit(t, kid.Child.ID, "Make Bed", 30)
	read := e.addHabit(t, kid.Child.ID, "Read", 60)

	yesterday, err := e.completions.Submit(e.ctx, kid, read.ID)
	require.NoError(t, err)
	e.clk.Advance(24 * time.Hour)

	approved, err := e.completions.Submit(e.ctx, kid, brush.ID)
	require.NoError(t, err)
	_, err = e.completions.Approve(e.ctx, e.parent, approved.ID, "")
	require.NoError(t, err)
	rejected, err := e.completions.Submit(e.ctx, kid, bed.ID)
	require.NoError(t, err)
	_, err = e.completions.Reject(e.ctx, e.parent, rejected.ID, "try again")
	require.NoError(t, err)
	_, err = e.completions.Submit(e.ctx, kid, read.ID)
	require.NoError(t, err)

	deleted, err := e.completions.Reload(e.ctx, kid, kid.Child.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := e.completions.ListForChild(e.ctx, e.parent, kid.Child.ID, "2024-03-01")
	require.NoError(t, err)
	ids := []int64{}
	for _, c := range remaining {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []int64{yesterday.ID, approved.ID}, ids)
	assert.Equal(t, 5, e.child(t, kid.Child.ID).RewardPoints)
}

func TestCompletionService_Streak(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	habit := e.addHabit(t, kid.Child.ID, "Brush Teeth", 50)

	doDay := func() int {
		c, err := e.completions.Submit(e.ctx, kid, habit.ID)
		require.NoError(t, err)
		_, err = e.completions.Approve(e.ctx, e.parent, c.ID, "")
		require.NoError(t, err)
		return c.StreakCount
	}
	streak := func() int {
		n, err := e.completions.Streak(e.ctx, kid, habit.ID)
		require.NoError(t, err)
		return n
	}

	assert.Equal(t, 1, doDay())
	e.clk.Advance(24 * time.Hour)
	assert.Equal(t, 2, doDay())
	e.clk.Advance(24 * time.Hour)
	assert.Equal(t, 3, doDay())
	assert.Equal(t, 3, streak())

	e.clk.Advance(24 * time.Hour)
	assert.Equal(t, 3, streak(), "today is not over yet")

	e.clk.Advance(24 * time.Hour)
	assert.Equal(t, 0, streak(), "a missed day breaks the streak")
	assert.Equal(t, 1, doDay())
	assert.Equal(t, 1, streak())
}

func TestCompletionService_DaysFollowFamilyTimezone(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	habit := e.addHabit(t, kid.Child.ID, "Brush Teeth", 50)
	pacific := NewCompletionService(e.stores, e.clk, e.sync, e.notifier, time.FixedZone("PST", -8*60*60))

	// Monday 19:30 in California, already Tuesday in UTC
	e.clk.Set(time.Date(2024, 3, 5, 3, 30, 0, 0, time.UTC))
	evening, err := pacific.Submit(e.ctx, kid, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04", evening.CompletionDate)
	_, err = pacific.Approve(e.ctx, e.parent, evening.ID, "")
	require.NoError(t, err)

	// 00:30 Tuesday local
	e.clk.Set(time.Date(2024, 3, 5, 8, 30, 0, 0, time.UTC))
	morning, err := pacific.Submit(e.ctx, kid, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", morning.CompletionDate)
	assert.Equal(t, 2, morning.StreakCount)

	n, err := pacific.Streak(e.ctx, kid, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "today is still pending")

	deleted, err := pacific.Reload(e.ctx, e.parent, kid.Child.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted, "reload clears the local day")
}

func TestCompletionService_StreakIsCappedByLookback(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	habit := e.addHabit(t, kid.Child.ID, "Read", 60)

	for i := 0; i < 40; i++ {
		day := monday.AddDate(0, 0, -i)
		require.NoError(t, e.stores.Completions.CreateCompletion(e.ctx, &models.HabitCompletion{
			HabitID: habit.ID, ChildID: kid.Child.ID, CompletionDate: day.Format(clock.DateLayout),
			CompletedAt: day, XPEarned: 60, RewardPointsEarned: 6, Status: models.CompletionApproved,
		}))
	}

	n, err := e.completions.Streak(e.ctx, kid, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, n)
}

func TestCompletionService_AutoApproval(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	habit := e.addHabit(t, kid.Child.ID, "Brush Teeth", 50)

	_, err := e.controls.UpdateApprovalSettings(e.ctx, e.parent, ApprovalInput{Enabled: true, DelayValue: 1, DelayUnit: models.UnitHours})
	require.NoError(t, err)

	c, err := e.completions.Submit(e.ctx, kid, habit.ID)
	require.NoError(t, err)

	pending, err := e.completions.ListPending(e.ctx, e.parent)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].AutoApproveAt)
	assert.True(t, pending[0].AutoApproveAt.Equal(monday.Add(time.Hour)))

	e.clk.Advance(30 * time.Minute)
	n, err := e.completions.AutoApproveDue(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	e.clk.Advance(31 * time.Minute)
	n, err = e.completions.AutoApproveDue(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.stores.Completions.GetCompletion(e.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompletionApproved, got.Status)
	assert.Equal(t, models.AutoApprovalReviewer, got.ReviewedBy)
	assert.True(t, got.AutoApproved)
	assert.Equal(t, 5, e.child(t, kid.Child.ID).RewardPoints)

	n, err = e.completions.AutoApproveDue(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "already approved completions are not paid twice")
	assert.Equal(t, 5, e.ledger(t, kid.Child.ID))
}

func TestCompletionService_AutoApprovalOffByDefault(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	habit := e.addHabit(t, kid.Child.ID, "Brush Teeth", 50)

	_, err := e.completions.Submit(e.ctx, kid, habit.ID)
	require.NoError(t, err)
	e.clk.Advance(30 * 24 * time.Hour)

	n, err := e.completions.AutoApproveDue(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	pending, err := e.completions.ListPending(e.ctx, e.parent)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Nil(t, pending[0].AutoApproveAt)
}

func TestCompletionService_LevelUp(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	habit := e.addHabit(t, kid.Child.ID, "Homework", 80)

	for day := 0; day < 2; day++ {
		c, err := e.completions.Submit(e.ctx, kid, habit.ID)
		require.NoError(t, err)
		_, err = e.completions.Approve(e.ctx, e.parent, c.ID, "")
		require.NoError(t, err)
		e.clk.Advance(24 * time.Hour)
	}

	child := e.child(t, kid.Child.ID)
	assert.Equal(t, 2, child.Level)
	assert.Equal(t, 60, child.XP)
	assert.Equal(t, 160, child.TotalXP)
	assert.Equal(t, 16, child.RewardPoints)
}

func TestConsecutiveDays(t *testing.T) {
	tests := []struct {
		name  string
		dates []string
		from  string
		want  int
	}{
		{"empty", nil, "2024-03-04", 0},
		{"starts elsewhere", []string{"2024-03-02"}, "2024-03-04", 0},
		{"unbroken", []string{"2024-03-04", "2024-03-03", "2024-03-02"}, "2024-03-04", 3},
		{"gap", []string{"2024-03-04", "2024-03-02"}, "2024-03-04", 1},
		{"across month", []string{"2024-03-01", "2024-02-29", "2024-02-28"}, "2024-03-01", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, consecutiveDays(tt.dates, tt.from))
		})
	}
}
