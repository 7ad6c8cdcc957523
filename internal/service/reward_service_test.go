package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitheroes/internal/models"
)

func (e *env) addReward(t *testing.T, in RewardInput) *models.Reward {
	t.Helper()
	r, err := e.rewards.CreateReward(e.ctx, e.parent, in)
	require.NoError(t, err)
	return r
}

func (e *env) grant(t *testing.T, childID int64, amount int) {
	t.Helper()
	_, err := e.rewards.AdjustPoints(e.ctx, e.parent, childID, amount, "pocket money")
	require.NoError(t, err)
}

func TestRewardService_ClaimAndApprove(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	movie := e.addReward(t, RewardInput{Title: "Movie night", Cost: 30})
	assert.Equal(t, models.CategoryOneTime, movie.Category)

	_, err := e.rewards.Claim(e.ctx, kid, movie.ID)
	assert.ErrorIs(t, err, ErrInsufficientPoints)

	e.grant(t, kid.Child.ID, 100)

	_, err = e.rewards.Claim(e.ctx, e.parent, movie.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	claim, err := e.rewards.Claim(e.ctx, kid, movie.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimPending, claim.Status)
	assert.Equal(t, 100, e.child(t, kid.Child.ID).RewardPoints, "claiming does not debit")
	assert.Equal(t, []string{"ana@example.com:Leo:Movie night"}, e.notifier.claimed)

	approved, err := e.rewards.ApproveClaim(e.ctx, e.parent, claim.ID, "enjoy")
	require.NoError(t, err)
	assert.Equal(t, models.ClaimApproved, approved.Status)
	assert.Equal(t, "Ana", approved.ReviewedBy)

	_, err = e.rewards.ApproveClaim(e.ctx, e.parent, claim.ID, "")
	assert.ErrorIs(t, err, ErrClaimNotPending)

	assert.Equal(t, 70, e.child(t, kid.Child.ID).RewardPoints)
	assert.Equal(t, 70, e.ledger(t, kid.Child.ID))

	reward, err := e.stores.Rewards.GetReward(e.ctx, movie.ID)
	require.NoError(t, err)
	assert.False(t, reward.Active, "one-time rewards retire once redeemed")

	_, err = e.rewards.Claim(e.ctx, kid, movie.ID)
	assert.ErrorIs(t, err, ErrRewardNotClaimable)
}

func TestRewardService_ApproveRechecksBalance(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	a := e.addReward(t, RewardInput{Title: "Ice cream", Cost: 40, Category: models.CategoryDaily})
	b := e.addReward(t, RewardInput{Title: "Stickers", Cost: 40})
	e.grant(t, kid.Child.ID, 50)

	first, err := e.rewards.Claim(e.ctx, kid, a.ID)
	require.NoError(t, err)
	second, err := e.rewards.Claim(e.ctx, kid, b.ID)
	require.NoError(t, err)

	_, err = e.rewards.ApproveClaim(e.ctx, e.parent, first.ID, "")
	require.NoError(t, err)
	_, err = e.rewards.ApproveClaim(e.ctx, e.parent, second.ID, "")
	assert.ErrorIs(t, err, ErrInsufficientPoints)

	got, err := e.stores.Rewards.GetClaim(e.ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimPending, got.Status, "a failed approval leaves the claim pending")
	assert.Equal(t, 10, e.child(t, kid.Child.ID).RewardPoints)
	assert.Equal(t, 10, e.ledger(t, kid.Child.ID))

	daily, err := e.stores.Rewards.GetReward(e.ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, daily.Active, "only one-time rewards retire")
}

func TestRewardService_RejectClaim(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	toy := e.addReward(t, RewardInput{Title: "Toy car", Cost: 20})
	e.grant(t, kid.Child.ID, 20)

	claim, err := e.rewards.Claim(e.ctx, kid, toy.ID)
	require.NoError(t, err)

	rejected, err := e.rewards.RejectClaim(e.ctx, e.parent, claim.ID, "after the holidays")
	require.NoError(t, err)
	assert.Equal(t, models.ClaimRejected, rejected.Status)
	assert.Equal(t, 20, e.child(t, kid.Child.ID).RewardPoints)

	_, err = e.rewards.RejectClaim(e.ctx, e.parent, claim.ID, "")
	assert.ErrorIs(t, err, ErrClaimNotPending)

	claims, err := e.rewards.ListClaims(e.ctx, e.parent, models.ClaimRejected)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "Toy car", claims[0].RewardTitle)

	_, err = e.rewards.ListClaims(e.ctx, e.parent, "lost")
	assert.Error(t, err)
}

func TestRewardService_Visibility(t *testing.T) {
	e := newEnv(t)
	leo, _ := e.addChild(t, e.parent, "Leo")
	mia, _ := e.addChild(t, e.parent, "Mia")
	e.addReward(t, RewardInput{Title: "Family trip", Cost: 500})
	leoOnly := e.addReward(t, RewardInput{Title: "Skate park", Cost: 50, ChildID: &leo.Child.ID})
	e.addReward(t, RewardInput{Title: "Weekly treat", Cost: 10, Category: models.CategoryWeekly, IsRecurring: true})
	e.grant(t, mia.Child.ID, 100)

	titles := func(rewards []models.Reward) []string {
		out := []string{}
		for _, r := range rewards {
			out = append(out, r.Title)
		}
		return out
	}

	all, err := e.rewards.ListRewards(e.ctx, e.parent)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	forMia, err := e.rewards.ListRewards(e.ctx, mia)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Family trip"}, titles(forMia))

	forLeo, err := e.rewards.ListRewards(e.ctx, leo)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Family trip", "Skate park"}, titles(forLeo))

	_, err = e.rewards.Claim(e.ctx, mia, leoOnly.ID)
	assert.ErrorIs(t, err, ErrRewardNotFound)
}

func TestRewardService_FeatureSwitch(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	toy := e.addReward(t, RewardInput{Title: "Toy car", Cost: 20})
	e.grant(t, kid.Child.ID, 200)

	_, err := e.controls.UpdateControls(e.ctx, e.parent, kid.Child.ID, ControlsInput{ChallengesEnabled: true})
	require.NoError(t, err)

	_, err = e.rewards.Claim(e.ctx, kid, toy.ID)
	assert.ErrorIs(t, err, ErrFeatureDisabled)
	_, err = e.rewards.UnlockItem(e.ctx, kid, models.ItemAvatar, "knight")
	assert.ErrorIs(t, err, ErrFeatureDisabled)
}

func TestRewardService_AdjustPoints(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")

	tests := []struct {
		name    string
		amount  int
		wantErr error
		balance int
	}{
		{"credit", 25, nil, 25},
		{"zero", 0, ErrInvalidAdjustment, 25},
		{"debit", -10, nil, 15},
		{"overdraw", -16, ErrInsufficientPoints, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.rewards.AdjustPoints(e.ctx, e.parent, kid.Child.ID, tt.amount, "")
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.balance, e.child(t, kid.Child.ID).RewardPoints)
			assert.Equal(t, tt.balance, e.ledger(t, kid.Child.ID))
		})
	}

	_, err := e.rewards.AdjustPoints(e.ctx, kid, kid.Child.ID, 1000, "")
	assert.ErrorIs(t, err, ErrForbidden)

	txs, err := e.rewards.ListTransactions(e.ctx, e.parent, kid.Child.ID, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, models.TransactionAdjust, txs[0].Kind)
	assert.Equal(t, "Manual adjustment", txs[0].Description)

	mismatches, err := e.rewards.ReconcileBalances(e.ctx, e.parent)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestRewardService_UnlockItem(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	e.grant(t, kid.Child.ID, 60)

	_, err := e.rewards.UnlockItem(e.ctx, kid, models.ItemAvatar, "wizard")
	assert.ErrorIs(t, err, ErrInsufficientPoints)

	child, err := e.rewards.UnlockItem(e.ctx, kid, models.ItemAvatar, "knight")
	require.NoError(t, err)
	assert.True(t, child.HasUnlocked(models.ItemAvatar, "knight"))
	assert.Equal(t, 10, child.RewardPoints)
	assert.Equal(t, 10, e.ledger(t, kid.Child.ID))

	_, err = e.rewards.UnlockItem(e.ctx, kid, models.ItemAvatar, "knight")
	assert.ErrorIs(t, err, ErrAlreadyUnlocked)
	_, err = e.rewards.UnlockItem(e.ctx, kid, models.ItemGear, "jetpack-9000")
	assert.ErrorIs(t, err, ErrItemNotFound)

	updated, err := e.families.UpdateChild(e.ctx, e.parent, kid.Child.ID, "Leo", "knight")
	require.NoError(t, err)
	assert.Equal(t, "knight", updated.AvatarID)
}

func TestRewardService_GenerateDueRewards(t *testing.T) {
	tests := []struct {
		category string
		next     time.Time
	}{
		{models.CategoryDaily, monday.AddDate(0, 0, 1)},
		{models.CategoryWeekly, monday.AddDate(0, 0, 7)},
		{models.CategoryMonthly, monday.AddDate(0, 1, 0)},
		{models.CategoryYearly, monday.AddDate(1, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			e := newEnv(t)
			kid, _ := e.addChild(t, e.parent, "Leo")
			template := e.addReward(t, RewardInput{Title: "Treat", Cost: 15, Category: tt.category, IsRecurring: true})
			require.NotNil(t, template.NextOccurrence)
			assert.True(t, template.NextOccurrence.Equal(monday))

			n, err := e.rewards.GenerateDueRewards(e.ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			n, err = e.rewards.GenerateDueRewards(e.ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, n, "nothing is due until the next occurrence")

			stored, err := e.stores.Rewards.GetReward(e.ctx, template.ID)
			require.NoError(t, err)
			assert.True(t, stored.NextOccurrence.Equal(tt.next), "next occurrence %v", stored.NextOccurrence)

			visible, err := e.rewards.ListRewards(e.ctx, kid)
			require.NoError(t, err)
			require.Len(t, visible, 1)
			instance := visible[0]
			assert.Equal(t, models.CategoryOneTime, instance.Category)
			assert.False(t, instance.IsRecurring)
			require.NotNil(t, instance.ParentRewardID)
			assert.Equal(t, template.ID, *instance.ParentRewardID)

			e.clk.Set(tt.next)
			n, err = e.rewards.GenerateDueRewards(e.ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			assert.Contains(t, e.events(t, e.parent), models.EventRewardGenerated)
		})
	}
}

func TestRewardService_RecurringTemplateIsNotClaimable(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	e.grant(t, kid.Child.ID, 100)
	template := e.addReward(t, RewardInput{Title: "Treat", Cost: 15, Category: models.CategoryWeekly, IsRecurring: true})

	_, err := e.rewards.Claim(e.ctx, kid, template.ID)
	assert.ErrorIs(t, err, ErrRewardNotClaimable)

	_, err = e.rewards.CreateReward(e.ctx, e.parent, RewardInput{Title: "Bad", Cost: 5, IsRecurring: true})
	assert.Error(t, err, "one-time rewards cannot recur")
}
