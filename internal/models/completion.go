package models

import "time"

// Completion statuses
const (
	CompletionPending  = "pending"
	CompletionApproved = "approved"
	CompletionRejected = "rejected"
)

// AutoApprovalReviewer is recorded as the reviewer of auto-approved completions
const AutoApprovalReviewer = "auto-approval"

// HabitCompletion records one child performing one habit on one calendar day
type HabitCompletion struct {
	ID                 int64      `json:"id"`
	HabitID            int64      `json:"habit_id"`
	ChildID            int64      `json:"child_id"`
	CompletionDate     string     `json:"completion_date"`
	CompletedAt        time.Time  `json:"completed_at"`
	XPEarned           int        `json:"xp_earned"`
	StreakCount        int        `json:"streak_count"`
	RewardPointsEarned int        `json:"reward_points_earned"`
	Status             string     `json:"status"`
	ReviewedBy         string     `json:"reviewed_by,omitempty"`
	ReviewMessage      string     `json:"review_message,omitempty"`
	ReviewedAt         *time.Time `json:"reviewed_at,omitempty"`
	AutoApproved       bool       `json:"auto_approved"`
}

// IsPending reports whether the completion still awaits review
func (c *HabitCompletion) IsPending() bool {
	return c.Status == CompletionPending
}

// PendingCompletion is a pending completion joined with display details
type PendingCompletion struct {
	HabitCompletion
	FamilyID      int64      `json:"family_id"`
	HabitName     string     `json:"habit_name"`
	HabitIcon     string     `json:"habit_icon"`
	ChildName     string     `json:"child_name"`
	AutoApproveAt *time.Time `json:"auto_approve_at,omitempty"`
}

// RewardPointsForXP converts earned XP into reward points
func RewardPointsForXP(xp int) int {
	if xp <= 0 {
		return 0
	}
	return xp / 10
}
