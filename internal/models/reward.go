package models

import "time"

// Reward categories. Every category except one-time can recur.
const (
	CategoryOneTime = "one_time"
	CategoryDaily   = "daily"
	CategoryWeekly  = "weekly"
	CategoryMonthly = "monthly"
	CategoryYearly  = "yearly"
)

// Claim statuses
const (
	ClaimPending  = "pending"
	ClaimApproved = "approved"
	ClaimRejected = "rejected"
)

// Transaction kinds
const (
	TransactionEarn   = "earn"
	TransactionSpend  = "spend"
	TransactionAdjust = "adjust"
)

// Transaction reference types
const (
	RefCompletion = "habit_completion"
	RefClaim      = "reward_claim"
	RefChallenge  = "weekend_challenge"
	RefShopItem   = "shop_item"
	RefManual     = "manual"
)

// Reward is a parent-defined item a child can redeem with reward points.
// A nil ChildID makes the reward visible to every child in the family.
type Reward struct {
	ID             int64      `json:"id"`
	FamilyID       int64      `json:"family_id"`
	ChildID        *int64     `json:"child_id,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Cost           int        `json:"cost"`
	Category       string     `json:"category"`
	IsRecurring    bool       `json:"is_recurring"`
	NextOccurrence *time.Time `json:"next_occurrence,omitempty"`
	ParentRewardID *int64     `json:"parent_reward_id,omitempty"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// VisibleTo reports whether a child of the reward's family may see it
func (r *Reward) VisibleTo(childID int64) bool {
	return r.ChildID == nil || *r.ChildID == childID
}

// NextAfter advances t by one unit of the category. Month and year steps use
// time.AddDate, so Jan 31 plus one month lands on Mar 2 or 3.
func NextAfter(category string, t time.Time) (time.Time, bool) {
	switch category {
	case CategoryDaily:
		return t.AddDate(0, 0, 1), true
	case CategoryWeekly:
		return t.AddDate(0, 0, 7), true
	case CategoryMonthly:
		return t.AddDate(0, 1, 0), true
	case CategoryYearly:
		return t.AddDate(1, 0, 0), true
	}
	return t, false
}

// RewardClaim is a child's request to redeem a reward
type RewardClaim struct {
	ID          int64      `json:"id"`
	RewardID    int64      `json:"reward_id"`
	ChildID     int64      `json:"child_id"`
	Status      string     `json:"status"`
	Message     string     `json:"message,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy  string     `json:"reviewed_by,omitempty"`

	// Joined for listings
	RewardTitle string `json:"reward_title,omitempty"`
	RewardCost  int    `json:"reward_cost,omitempty"`
	ChildName   string `json:"child_name,omitempty"`
}

// RewardTransaction is one signed movement in a child's points ledger
type RewardTransaction struct {
	ID               int64     `json:"id"`
	ChildID          int64     `json:"child_id"`
	Amount           int       `json:"amount"`
	Kind             string    `json:"kind"`
	Description      string    `json:"description"`
	ReferenceType    string    `json:"reference_type,omitempty"`
	ReferenceID      *int64    `json:"reference_id,omitempty"`
	RequiresApproval bool      `json:"requires_approval"`
	Approved         bool      `json:"approved"`
	CreatedAt        time.Time `json:"created_at"`
}

// BalanceReport compares a child's stored balance with its ledger
type BalanceReport struct {
	ChildID       int64 `json:"child_id"`
	StoredBalance int   `json:"stored_balance"`
	LedgerBalance int   `json:"ledger_balance"`
}

// Consistent reports whether the stored balance matches the ledger
func (b BalanceReport) Consistent() bool {
	return b.StoredBalance == b.LedgerBalance
}
