package models

import (
	"encoding/json"
	"time"
)

// Device types
const (
	DeviceWeb     = "web"
	DeviceIOS     = "ios"
	DeviceAndroid = "android"
)

// Sync event types
const (
	EventHabitCompleted      = "habit_completed"
	EventHabitApproved       = "habit_approved"
	EventHabitRejected       = "habit_rejected"
	EventHabitsReloaded      = "habits_reloaded"
	EventRewardClaimed       = "reward_claimed"
	EventRewardClaimApproved = "reward_claim_approved"
	EventRewardClaimRejected = "reward_claim_rejected"
	EventRewardGenerated     = "reward_generated"
	EventPointsAdjusted      = "points_adjusted"
	EventItemUnlocked        = "item_unlocked"
	EventControlsUpdated     = "controls_updated"
	EventChallengeAccepted   = "challenge_accepted"
	EventChallengeCompleted  = "challenge_completed"
)

// Sync entity types
const (
	EntityCompletion = "habit_completion"
	EntityChild      = "child"
	EntityReward     = "reward"
	EntityClaim      = "reward_claim"
	EntityControls   = "parental_controls"
	EntityChallenge  = "weekend_challenge"
)

// MaxPendingSyncEvents caps how many events one pull returns
const MaxPendingSyncEvents = 100

// Device is one client installation of a parent account
type Device struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	DeviceID   string     `json:"device_id"`
	Name       string     `json:"name"`
	DeviceType string     `json:"device_type"`
	PushToken  string     `json:"push_token,omitempty"`
	Active     bool       `json:"active"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// SyncEvent is an append-only fact delivered to a user's devices
type SyncEvent struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	EventType  string          `json:"event_type"`
	EntityType string          `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
	Processed  bool            `json:"processed"`
}

// ChildSyncData is everything a device needs to render one child
type ChildSyncData struct {
	Child       Child              `json:"child"`
	Habits      []Habit            `json:"habits"`
	Completions []HabitCompletion  `json:"completions"`
	Rewards     []Reward           `json:"rewards"`
	Claims      []RewardClaim      `json:"claims"`
	Challenges  []WeekendChallenge `json:"challenges"`
	Controls    *ParentalControls  `json:"controls,omitempty"`
}

// FamilySyncData is the full pull returned to a device
type FamilySyncData struct {
	Children      []ChildSyncData `json:"children"`
	PendingEvents []SyncEvent     `json:"pending_events"`
	ServerTime    time.Time       `json:"server_time"`
}
