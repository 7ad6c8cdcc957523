package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitheroes/internal/clock"
	"habitheroes/internal/database"
	"habitheroes/internal/models"
	"habitheroes/internal/security"
)

var monday = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

// recordingNotifier remembers what would have been emailed
type recordingNotifier struct {
	mu        sync.Mutex
	submitted []string
	claimed   []string
}

func (n *recordingNotifier) HabitSubmitted(_ context.Context, parents []models.User, child *models.Child, habit *models.Habit) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range parents {
		n.submitted = append(n.submitted, p.Email+":"+child.Name+":"+habit.Name)
	}
	return nil
}

func (n *recordingNotifier) RewardClaimed(_ context.Context, parents []models.User, child *models.Child, reward *models.Reward) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range parents {
		n.claimed = append(n.claimed, p.Email+":"+child.Name+":"+reward.Title)
	}
	return nil
}

type env struct {
	ctx         context.Context
	db          *database.DB
	clk         *clock.Manual
	stores      *Stores
	notifier    *recordingNotifier
	sync        *SyncService
	auth        *AuthService
	families    *FamilyService
	habits      *HabitService
	completions *CompletionService
	rewards     *RewardService
	controls    *ControlsService
	challenges  *ChallengeService

	parent *security.Principal
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations(ctx))

	e := &env{ctx: ctx, db: db, clk: clock.NewManual(monday), stores: NewStores(db), notifier: &recordingNotifier{}}
	e.sync = NewSyncService(e.stores, e.clk)
	e.families = NewFamilyService(e.stores, e.clk)
	e.auth = NewAuthService(e.stores, e.clk, e.families, 24*time.Hour, time.Hour)
	e.habits = NewHabitService(e.stores, e.clk)
	e.completions = NewCompletionService(e.stores, e.clk, e.sync, e.notifier, time.UTC)
	e.rewards = NewRewardService(e.stores, e.clk, e.sync, e.notifier)
	e.controls = NewControlsService(e.stores, e.clk, e.sync, time.UTC)
	e.challenges = NewChallengeService(e.stores, e.clk, e.sync)

	e.parent = e.register(t, "ana@example.com", "Ana", "")
	return e
}

// register creates a parent account and returns its principal
func (e *env) register(t *testing.T, email, name, familyCode string) *security.Principal {
	t.Helper()
	user, err := e.auth.Register(e.ctx, email, "correct-horse", name, familyCode)
	require.NoError(t, err)
	member, err := e.stores.Families.GetMembership(e.ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, member)
	return &security.Principal{Kind: security.PrincipalParent, User: user, FamilyID: member.FamilyID}
}

// addChild creates a child in the parent's family and returns its principal
// and PIN
func (e *env) addChild(t *testing.T, parent *security.Principal, name string) (*security.Principal, string) {
	t.Helper()
	child, pin, err := e.families.CreateChild(e.ctx, parent, name, "")
	require.NoError(t, err)
	return &security.Principal{Kind: security.PrincipalChild, Child: child, FamilyID: child.FamilyID}, pin
}

func (e *env) addHabit(t *testing.T, childID int64, name string, xp int) *models.Habit {
	t.Helper()
	h, err := e.habits.CreateHabit(e.ctx, e.parent, childID, HabitInput{Name: name, XPReward: xp})
	require.NoError(t, err)
	return h
}

func (e *env) child(t *testing.T, id int64) *models.Child {
	t.Helper()
	c, err := e.stores.Children.GetChild(e.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func (e *env) ledger(t *testing.T, childID int64) int {
	t.Helper()
	sum, err := e.stores.Ledger.SumApproved(e.ctx, childID)
	require.NoError(t, err)
	return sum
}

func (e *env) events(t *testing.T, p *security.Principal) []string {
	t.Helper()
	events, err := e.sync.GetPendingSyncEvents(e.ctx, p.User.ID, nil)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.EventType)
	}
	return types
}

func TestAccessHelpers(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	other := e.register(t, "bo@example.com", "Bo", "")
	otherKid, _ := e.addChild(t, other, "Mia")

	tests := []struct {
		name    string
		p       *security.Principal
		childID int64
		wantErr error
	}{
		{"parent own child", e.parent, kid.Child.ID, nil},
		{"parent other family", e.parent, otherKid.Child.ID, ErrChildNotFound},
		{"child itself", kid, kid.Child.ID, nil},
		{"child of another family", otherKid, kid.Child.ID, ErrChildNotFound},
		{"missing child", e.parent, 9999, ErrChildNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := childFor(e.ctx, e.stores.Children, tt.p, tt.childID)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	_, err := parentChildFor(e.ctx, e.stores.Children, kid, kid.Child.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}
