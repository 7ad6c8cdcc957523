package models

import (
	"fmt"
	"time"
)

// Reasons a child request can be blocked
const (
	BlockEmergency = "emergency_mode"
	BlockBedtime   = "bedtime"
)

// ParentalControls holds the limits a parent sets for one child
type ParentalControls struct {
	ID                     int64     `json:"id"`
	ChildID                int64     `json:"child_id"`
	DailyScreenTimeMinutes int       `json:"daily_screen_time_minutes"`
	BedtimeStart           string    `json:"bedtime_start"`
	BedtimeEnd             string    `json:"bedtime_end"`
	RewardsEnabled         bool      `json:"rewards_enabled"`
	AvatarShopEnabled      bool      `json:"avatar_shop_enabled"`
	ChallengesEnabled      bool      `json:"challenges_enabled"`
	EmergencyMode          bool      `json:"emergency_mode"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// DefaultControls returns the settings a child starts with
func DefaultControls(childID int64) *ParentalControls {
	return &ParentalControls{
		ChildID:           childID,
		RewardsEnabled:    true,
		AvatarShopEnabled: true,
		ChallengesEnabled: true,
	}
}

// Blocks reports whether child access is blocked at now, and why.
// The bedtime window is evaluated in now's location and may cross midnight.
func (p *ParentalControls) Blocks(now time.Time) (bool, string) {
	if p.EmergencyMode {
		return true, BlockEmergency
	}
	if p.BedtimeStart == "" || p.BedtimeEnd == "" {
		return false, ""
	}
	start, err := MinuteOfDay(p.BedtimeStart)
	if err != nil {
		return false, ""
	}
	end, err := MinuteOfDay(p.BedtimeEnd)
	if err != nil || start == end {
		return false, ""
	}

	current := now.Hour()*60 + now.Minute()
	var inside bool
	if start < end {
		inside = current >= start && current < end
	} else {
		inside = current >= start || current < end
	}
	if inside {
		return true, BlockBedtime
	}
	return false, ""
}

// MinuteOfDay parses an "HH:MM" clock time into minutes after midnight
func MinuteOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", hhmm)
	}
	return t.Hour()*60 + t.Minute(), nil
}
