package models

import "time"

// Challenge states derived from the accepted and completed flags
const (
	ChallengeAvailable = "available"
	ChallengeAccepted  = "accepted"
	ChallengeCompleted = "completed"
)

// WeekendChallenge is a time-boxed bonus task for one child
type WeekendChallenge struct {
	ID          int64      `json:"id"`
	ChildID     int64      `json:"child_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	BonusPoints int        `json:"bonus_points"`
	BonusXP     int        `json:"bonus_xp"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      time.Time  `json:"ends_at"`
	IsAccepted  bool       `json:"is_accepted"`
	IsCompleted bool       `json:"is_completed"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// State returns available, accepted or completed
func (w *WeekendChallenge) State() string {
	switch {
	case w.IsCompleted:
		return ChallengeCompleted
	case w.IsAccepted:
		return ChallengeAccepted
	default:
		return ChallengeAvailable
	}
}

// Open reports whether now falls inside the challenge window
func (w *WeekendChallenge) Open(now time.Time) bool {
	return !now.Before(w.StartsAt) && now.Before(w.EndsAt)
}
