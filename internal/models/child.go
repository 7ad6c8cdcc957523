package models

import (
	"slices"
	"time"
)

// XPPerLevel scales the XP needed to leave a level: level N needs N*XPPerLevel
const XPPerLevel = 100

// Child represents one managed profile inside a family
type Child struct {
	ID              int64     `json:"id"`
	FamilyID        int64     `json:"family_id"`
	Name            string    `json:"name"`
	Username        string    `json:"username"`
	PINHash         string    `json:"-"`
	AvatarID        string    `json:"avatar_id"`
	Level           int       `json:"level"`
	XP              int       `json:"xp"`
	TotalXP         int       `json:"total_xp"`
	RewardPoints    int       `json:"reward_points"`
	UnlockedAvatars []string  `json:"unlocked_avatars"`
	UnlockedGear    []string  `json:"unlocked_gear"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// XPToNextLevel returns how much XP the current level needs in total
func (c *Child) XPToNextLevel() int {
	return c.Level * XPPerLevel
}

// ApplyXP credits XP, carrying any overflow into the following levels.
// It returns the number of levels gained.
func (c *Child) ApplyXP(amount int) int {
	if amount <= 0 {
		return 0
	}
	c.XP += amount
	c.TotalXP += amount
	return c.RollLevels()
}

// RollLevels converts surplus XP into levels and returns the levels gained
func (c *Child) RollLevels() int {
	if c.Level < 1 {
		c.Level = 1
	}
	gained := 0
	for c.XP >= c.XPToNextLevel() {
		c.XP -= c.XPToNextLevel()
		c.Level++
		gained++
	}
	return gained
}

// HasUnlocked reports whether an avatar or gear item is already owned
func (c *Child) HasUnlocked(kind ItemKind, itemID string) bool {
	switch kind {
	case ItemAvatar:
		return slices.Contains(c.UnlockedAvatars, itemID)
	case ItemGear:
		return slices.Contains(c.UnlockedGear, itemID)
	}
	return false
}

// ChildSession represents an authenticated child login
type ChildSession struct {
	ID        string
	ChildID   int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired checks if the session has expired at the given time
func (s *ChildSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ItemKind distinguishes the two kinds of shop items
type ItemKind string

const (
	ItemAvatar ItemKind = "avatar"
	ItemGear   ItemKind = "gear"
)
