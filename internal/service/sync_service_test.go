package service

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitheroes/internal/database"
	"habitheroes/internal/models"
	"habitheroes/internal/validation"
)

func TestSyncService_PendingEvents(t *testing.T) {
	e := newEnv(t)
	userID := e.parent.User.ID

	for i := 0; i < models.MaxPendingSyncEvents+5; i++ {
		require.NoError(t, e.sync.CreateSyncEvent(e.ctx, &models.SyncEvent{
			UserID: userID, EventType: models.EventPointsAdjusted, EntityType: models.EntityChild, EntityID: int64(i),
		}))
		e.clk.Advance(time.Minute)
	}

	all, err := e.sync.GetPendingSyncEvents(e.ctx, userID, nil)
	require.NoError(t, err)
	require.Len(t, all, models.MaxPendingSyncEvents)
	assert.Equal(t, int64(models.MaxPendingSyncEvents+4), all[0].EntityID, "newest first")
	assert.Equal(t, "{}", string(all[0].Payload))

	since := monday.Add(100 * time.Minute)
	recent, err := e.sync.GetPendingSyncEvents(e.ctx, userID, &since)
	require.NoError(t, err)
	require.Len(t, recent, 4, "only events strictly after the last sync")
	for _, ev := range recent {
		assert.True(t, ev.Timestamp.After(since))
	}

	marked, err := e.sync.MarkEventsProcessed(e.ctx, userID, []int64{recent[0].ID, recent[1].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	again, err := e.sync.GetPendingSyncEvents(e.ctx, userID, &since)
	require.NoError(t, err)
	assert.Len(t, again, 4, "processed events are still returned until lastSync moves")
}

func TestSyncService_PruneKeepsUnacknowledgedEvents(t *testing.T) {
	e := newEnv(t)
	userID := e.parent.User.ID

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, e.sync.CreateSyncEvent(e.ctx, &models.SyncEvent{
			UserID: userID, EventType: models.EventPointsAdjusted, EntityType: models.EntityChild, EntityID: id,
		}))
	}
	events, err := e.sync.GetPendingSyncEvents(e.ctx, userID, nil)
	require.NoError(t, err)
	require.Len(t, events, 3)

	var acked, offline []int64
	for _, ev := range events {
		if ev.EntityID == 1 {
			offline = append(offline, ev.ID)
		} else {
			acked = append(acked, ev.ID)
		}
	}
	_, err = e.sync.MarkEventsProcessed(e.ctx, userID, acked)
	require.NoError(t, err)

	e.clk.Advance(800 * time.Hour)
	require.NoError(t, e.sync.CreateSyncEvent(e.ctx, &models.SyncEvent{
		UserID: userID, EventType: models.EventPointsAdjusted, EntityType: models.EntityChild, EntityID: 4,
	}))

	pruned, err := e.sync.PruneEvents(e.ctx, 720*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned, "only old acknowledged events go")

	left, err := e.sync.GetPendingSyncEvents(e.ctx, userID, nil)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, int64(4), left[0].EntityID)
	assert.Equal(t, offline[0], left[1].ID, "an old event no device saw survives")

	pruned, err = e.sync.PruneEvents(e.ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, pruned)
}

func TestSyncService_Devices(t *testing.T) {
	e := newEnv(t)
	userID := e.parent.User.ID

	_, err := e.sync.RegisterDevice(e.ctx, userID, DeviceInfo{DeviceID: "ipad", DeviceType: "fridge"})
	assert.True(t, validation.IsValidationError(err))
	_, err = e.sync.RegisterDevice(e.ctx, userID, DeviceInfo{DeviceID: "  ", DeviceType: models.DeviceIOS})
	assert.True(t, validation.IsValidationError(err))

	_, err = e.sync.MarkCompleted(e.ctx, userID, "ipad", nil)
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	device, err := e.sync.RegisterDevice(e.ctx, userID, DeviceInfo{DeviceID: "ipad", Name: "Kitchen iPad", DeviceType: models.DeviceIOS})
	require.NoError(t, err)
	assert.Nil(t, device.LastSyncAt)

	renamed, err := e.sync.RegisterDevice(e.ctx, userID, DeviceInfo{DeviceID: "ipad", Name: "Hall iPad", DeviceType: models.DeviceIOS, PushToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, device.ID, renamed.ID)
	assert.Equal(t, "Hall iPad", renamed.Name)

	require.NoError(t, e.sync.CreateSyncEvent(e.ctx, &models.SyncEvent{UserID: userID, EventType: models.EventHabitsReloaded, EntityType: models.EntityChild, EntityID: 1}))
	events, err := e.sync.GetPendingSyncEvents(e.ctx, userID, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)

	e.clk.Advance(time.Minute)
	marked, err := e.sync.MarkCompleted(e.ctx, userID, "ipad", []int64{events[0].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	touched, err := e.stores.Sync.GetDevice(e.ctx, userID, "ipad")
	require.NoError(t, err)
	require.NotNil(t, touched.LastSyncAt)
	assert.True(t, touched.LastSyncAt.Equal(monday.Add(time.Minute)))
}

func TestSyncService_FamilyData(t *testing.T) {
	e := newEnv(t)
	leo, _ := e.addChild(t, e.parent, "Leo")
	mia, _ := e.addChild(t, e.parent, "Mia")
	habit := e.addHabit(t, leo.Child.ID, "Brush Teeth", 50)
	e.addReward(t, RewardInput{Title: "Weekly treat", Cost: 10, Category: models.CategoryWeekly, IsRecurring: true})
	e.addReward(t, RewardInput{Title: "Movie night", Cost: 30})

	_, err := e.completions.Submit(e.ctx, leo, habit.ID)
	require.NoError(t, err)

	data, err := e.sync.SyncFamilyData(e.ctx, e.parent.User.ID, nil)
	require.NoError(t, err)
	require.Len(t, data.Children, 2)
	assert.Equal(t, "Leo", data.Children[0].Child.Name)
	assert.Len(t, data.Children[0].Habits, 1)
	assert.Len(t, data.Children[0].Completions, 1)
	assert.Len(t, data.Children[0].Rewards, 1)
	assert.NotNil(t, data.Children[1].Controls)
	require.Len(t, data.PendingEvents, 1)
	assert.Equal(t, models.EventHabitCompleted, data.PendingEvents[0].EventType)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(data.PendingEvents[0].Payload, &payload))
	assert.Equal(t, "Brush Teeth", payload["habit_name"])

	childData, err := e.sync.SyncChildFamilyData(e.ctx, mia.Child, nil)
	require.NoError(t, err)
	require.Len(t, childData.Children, 1)
	assert.Equal(t, mia.Child.ID, childData.Children[0].Child.ID)
	assert.Len(t, childData.PendingEvents, 1)
}

func TestSyncService_EmitReachesEveryParent(t *testing.T) {
	e := newEnv(t)
	family, err := e.families.GetFamily(e.ctx, e.parent)
	require.NoError(t, err)
	coParent := e.register(t, "bo@example.com", "Bo", family.Family.FamilyCode)
	kid, _ := e.addChild(t, e.parent, "Leo")

	_, err = e.rewards.AdjustPoints(e.ctx, coParent, kid.Child.ID, 5, "")
	require.NoError(t, err)

	assert.Equal(t, []string{models.EventPointsAdjusted}, e.events(t, e.parent))
	assert.Equal(t, []string{models.EventPointsAdjusted}, e.events(t, coParent))
}

func TestBackupService_ExportImport(t *testing.T) {
	e := newEnv(t)
	kid, _ := e.addChild(t, e.parent, "Leo")
	habit := e.addHabit(t, kid.Child.ID, "Brush Teeth", 50)
	c, err := e.completions.Submit(e.ctx, kid, habit.ID)
	require.NoError(t, err)
	_, err = e.completions.Approve(e.ctx, e.parent, c.ID, "")
	require.NoError(t, err)
	e.addReward(t, RewardInput{Title: "Weekly treat", Cost: 10, Category: models.CategoryWeekly, IsRecurring: true})

	backups := NewBackupService(e.db, e.clk)
	var buf bytes.Buffer
	exported, err := backups.Export(e.ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, exported.Count("children"))
	assert.Equal(t, 1, exported.Count("habit_completions"))
	assert.Equal(t, 1, exported.Count("reward_transactions"))

	fresh, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { fresh.Close() })
	require.NoError(t, fresh.RunMigrations(e.ctx))

	restore := NewBackupService(fresh, e.clk)
	_, err = restore.Import(e.ctx, bytes.NewReader(buf.Bytes()), false)
	require.NoError(t, err)

	stores := NewStores(fresh)
	child, err := stores.Children.GetChild(e.ctx, kid.Child.ID)
	require.NoError(t, err)
	require.NotNil(t, child)
	assert.Equal(t, 5, child.RewardPoints)
	assert.Equal(t, kid.Child.UnlockedAvatars, child.UnlockedAvatars)

	rewards, err := stores.Rewards.ListRewardsByFamily(e.ctx, e.parent.FamilyID)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	require.NotNil(t, rewards[0].NextOccurrence)
	assert.True(t, rewards[0].NextOccurrence.Equal(monday))

	_, err = restore.Import(e.ctx, bytes.NewReader(buf.Bytes()), false)
	assert.Error(t, err, "restoring twice without clearing collides")

	_, err = restore.Import(e.ctx, bytes.NewReader(buf.Bytes()), true)
	require.NoError(t, err)
	sum, err := stores.Ledger.SumApproved(e.ctx, kid.Child.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, sum)

	_, err = restore.Import(e.ctx, bytes.NewReader([]byte(`{"version":"99","tables":{}}`)), true)
	assert.Error(t, err)
}
