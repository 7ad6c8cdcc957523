package models

import (
	"testing"
	"time"
)

func TestSessionIsExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{
			name:      "future expiration",
			expiresAt: now.Add(1 * time.Hour),
			want:      false,
		},
		{
			name:      "expires exactly now",
			expiresAt: now,
			want:      true,
		},
		{
			name:      "expired yesterday",
			expiresAt: now.Add(-24 * time.Hour),
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := Session{ID: "test-session", UserID: 1, ExpiresAt: tt.expiresAt}
			if got := session.IsExpired(now); got != tt.want {
				t.Errorf("Session.IsExpired() = %v, want %v", got, tt.want)
			}
			child := ChildSession{ID: "child-session", ChildID: 1, ExpiresAt: tt.expiresAt}
			if got := child.IsExpired(now); got != tt.want {
				t.Errorf("ChildSession.IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChildApplyXP(t *testing.T) {
	tests := []struct {
		name       string
		start      Child
		amount     int
		wantLevel  int
		wantXP     int
		wantTotal  int
		wantGained int
	}{
		{"within level", Child{Level: 1}, 50, 1, 50, 50, 0},
		{"exact level up", Child{Level: 1, XP: 50, TotalXP: 50}, 50, 2, 0, 100, 1},
		{"overflow carries", Child{Level: 1, XP: 90, TotalXP: 90}, 30, 2, 20, 120, 1},
		{"multiple levels", Child{Level: 1}, 350, 3, 50, 350, 2},
		{"zero level treated as one", Child{}, 10, 1, 10, 10, 0},
		{"negative ignored", Child{Level: 2, XP: 10, TotalXP: 110}, -5, 2, 10, 110, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.start
			gained := c.ApplyXP(tt.amount)
			if c.Level != tt.wantLevel || c.XP != tt.wantXP || c.TotalXP != tt.wantTotal || gained != tt.wantGained {
				t.Errorf("ApplyXP(%d) = level %d xp %d total %d gained %d, want %d %d %d %d",
					tt.amount, c.Level, c.XP, c.TotalXP, gained, tt.wantLevel, tt.wantXP, tt.wantTotal, tt.wantGained)
			}
		})
	}
}

func TestRewardPointsForXP(t *testing.T) {
	tests := []struct {
		xp, want int
	}{
		{50, 5},
		{55, 5},
		{9, 0},
		{0, 0},
		{-10, 0},
	}
	for _, tt := range tests {
		if got := RewardPointsForXP(tt.xp); got != tt.want {
			t.Errorf("RewardPointsForXP(%d) = %d, want %d", tt.xp, got, tt.want)
		}
	}
}

func TestNextAfter(t *testing.T) {
	base := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		category string
		want     time.Time
		ok       bool
	}{
		{CategoryDaily, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC), true},
		{CategoryWeekly, time.Date(2024, 2, 7, 9, 0, 0, 0, time.UTC), true},
		{CategoryMonthly, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), true},
		{CategoryYearly, time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC), true},
		{CategoryOneTime, base, false},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			got, ok := NextAfter(tt.category, base)
			if ok != tt.ok || !got.Equal(tt.want) {
				t.Errorf("NextAfter(%s) = %v %v, want %v %v", tt.category, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParentalControlsBlocks(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, 1, 1, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name       string
		controls   ParentalControls
		now        time.Time
		wantBlock  bool
		wantReason string
	}{
		{"no bedtime", ParentalControls{}, at(23, 0), false, ""},
		{"emergency always blocks", ParentalControls{EmergencyMode: true}, at(12, 0), true, BlockEmergency},
		{"same day window inside", ParentalControls{BedtimeStart: "13:00", BedtimeEnd: "15:00"}, at(14, 0), true, BlockBedtime},
		{"same day window end exclusive", ParentalControls{BedtimeStart: "13:00", BedtimeEnd: "15:00"}, at(15, 0), false, ""},
		{"crosses midnight late evening", ParentalControls{BedtimeStart: "20:30", BedtimeEnd: "07:00"}, at(22, 15), true, BlockBedtime},
		{"crosses midnight early morning", ParentalControls{BedtimeStart: "20:30", BedtimeEnd: "07:00"}, at(6, 59), true, BlockBedtime},
		{"crosses midnight daytime", ParentalControls{BedtimeStart: "20:30", BedtimeEnd: "07:00"}, at(12, 0), false, ""},
		{"malformed ignored", ParentalControls{BedtimeStart: "late", BedtimeEnd: "07:00"}, at(3, 0), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocked, reason := tt.controls.Blocks(tt.now)
			if blocked != tt.wantBlock || reason != tt.wantReason {
				t.Errorf("Blocks() = %v %q, want %v %q", blocked, reason, tt.wantBlock, tt.wantReason)
			}
		})
	}
}

func TestApprovalSettingsDeadline(t *testing.T) {
	completedAt := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		value int
		unit  string
		want  time.Time
	}{
		{6, UnitHours, completedAt.Add(6 * time.Hour)},
		{2, UnitDays, completedAt.Add(48 * time.Hour)},
		{1, UnitWeeks, completedAt.Add(7 * 24 * time.Hour)},
		{3, "fortnights", completedAt},
	}
	for _, tt := range tests {
		s := ApprovalSettings{Enabled: true, DelayValue: tt.value, DelayUnit: tt.unit}
		if got := s.DeadlineFor(completedAt); !got.Equal(tt.want) {
			t.Errorf("DeadlineFor(%d %s) = %v, want %v", tt.value, tt.unit, got, tt.want)
		}
	}
}

func TestWeekendChallengeState(t *testing.T) {
	start := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	w := WeekendChallenge{StartsAt: start, EndsAt: start.Add(48 * time.Hour)}

	if w.State() != ChallengeAvailable {
		t.Errorf("State() = %s, want available", w.State())
	}
	if !w.Open(start) || w.Open(start.Add(48*time.Hour)) || w.Open(start.Add(-time.Second)) {
		t.Error("Open() window bounds are wrong")
	}
	w.IsAccepted = true
	if w.State() != ChallengeAccepted {
		t.Errorf("State() = %s, want accepted", w.State())
	}
	w.IsCompleted = true
	if w.State() != ChallengeCompleted {
		t.Errorf("State() = %s, want completed", w.State())
	}
}

func TestChildHasUnlocked(t *testing.T) {
	c := Child{UnlockedAvatars: []string{"knight"}, UnlockedGear: []string{"cape"}}
	if !c.HasUnlocked(ItemAvatar, "knight") || c.HasUnlocked(ItemAvatar, "cape") {
		t.Error("avatar lookup wrong")
	}
	if !c.HasUnlocked(ItemGear, "cape") || c.HasUnlocked(ItemKind("pet"), "cape") {
		t.Error("gear lookup wrong")
	}
}
