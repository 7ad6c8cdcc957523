package models

import "time"

// Auto-approval delay units
const (
	UnitHours = "hours"
	UnitDays  = "days"
	UnitWeeks = "weeks"
)

// ApprovalSettings configures timed auto-approval of pending completions
type ApprovalSettings struct {
	FamilyID   int64     `json:"family_id"`
	Enabled    bool      `json:"enabled"`
	DelayValue int       `json:"delay_value"`
	DelayUnit  string    `json:"delay_unit"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DefaultApprovalSettings returns disabled auto-approval with a one day delay
func DefaultApprovalSettings(familyID int64) *ApprovalSettings {
	return &ApprovalSettings{
		FamilyID:   familyID,
		DelayValue: 24,
		DelayUnit:  UnitHours,
	}
}

// Delay returns the configured delay as a duration, zero for unknown units
func (s *ApprovalSettings) Delay() time.Duration {
	var unit time.Duration
	switch s.DelayUnit {
	case UnitHours:
		unit = time.Hour
	case UnitDays:
		unit = 24 * time.Hour
	case UnitWeeks:
		unit = 7 * 24 * time.Hour
	default:
		return 0
	}
	return time.Duration(s.DelayValue) * unit
}

// DeadlineFor returns when a completion made at completedAt is auto-approved
func (s *ApprovalSettings) DeadlineFor(completedAt time.Time) time.Time {
	return completedAt.Add(s.Delay())
}
