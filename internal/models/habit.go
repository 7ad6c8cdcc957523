package models

import "time"

// MasterHabit is a family-level habit template that can be assigned to children
type MasterHabit struct {
	ID              int64     `json:"id"`
	FamilyID        int64     `json:"family_id"`
	Name            string    `json:"name"`
	Icon            string    `json:"icon"`
	XPReward        int       `json:"xp_reward"`
	ReminderEnabled bool      `json:"reminder_enabled"`
	ReminderTime    string    `json:"reminder_time"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Habit is a child's own habit, optionally cloned from a master habit.
// After cloning the two are independent copies.
type Habit struct {
	ID              int64     `json:"id"`
	ChildID         int64     `json:"child_id"`
	MasterHabitID   *int64    `json:"master_habit_id,omitempty"`
	Name            string    `json:"name"`
	Icon            string    `json:"icon"`
	XPReward        int       `json:"xp_reward"`
	ReminderEnabled bool      `json:"reminder_enabled"`
	ReminderTime    string    `json:"reminder_time"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// FromMaster builds a new habit for a child from a template
func (m *MasterHabit) FromMaster(childID int64) *Habit {
	masterID := m.ID
	return &Habit{
		ChildID:         childID,
		MasterHabitID:   &masterID,
		Name:            m.Name,
		Icon:            m.Icon,
		XPReward:        m.XPReward,
		ReminderEnabled: m.ReminderEnabled,
		ReminderTime:    m.ReminderTime,
		Active:          true,
	}
}
