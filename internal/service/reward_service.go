package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"habitheroes/internal/catalog"
	"habitheroes/internal/clock"
	"habitheroes/internal/database"
	"habitheroes/internal/models"
	"habitheroes/internal/security"
	"habitheroes/internal/validation"
)

var (
	ErrRewardNotFound     = errors.New("reward not found")
	ErrRewardNotClaimable = errors.New("reward cannot be claimed")
	ErrClaimNotFound      = errors.New("reward claim not found")
	ErrClaimNotPending    = errors.New("reward claim is not pending")
	ErrInsufficientPoints = errors.New("not enough reward points")
	ErrItemNotFound       = errors.New("shop item not found")
	ErrAlreadyUnlocked    = errors.New("item already unlocked")
	ErrInvalidAdjustment  = errors.New("adjustment amount must not be zero")
)

const defaultTransactionLimit = 50

// RewardInput carries the editable fields of a reward
type RewardInput struct {
	ChildID        *int64     `json:"child_id,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Cost           int        `json:"cost"`
	Category       string     `json:"category"`
	IsRecurring    bool       `json:"is_recurring"`
	NextOccurrence *time.Time `json:"next_occurrence,omitempty"`
	Active         *bool      `json:"active,omitempty"`
}

// RewardService manages rewards, claims, the points ledger and the avatar shop
type RewardService struct {
	stores   *Stores
	clk      clock.Clock
	sync     *SyncService
	notifier Notifier
}

// NewRewardService creates a new reward service
func NewRewardService(stores *Stores, clk clock.Clock, sync *SyncService, notifier Notifier) *RewardService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &RewardService{stores: stores, clk: clk, sync: sync, notifier: notifier}
}

func (s *RewardService) validateInput(ctx context.Context, p *security.Principal, in *RewardInput) error {
	in.Title = validation.NormalizeName(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validation.ValidateTitle("title", in.Title); err != nil {
		return err
	}
	if len([]rune(in.Description)) > validation.MaxMessageLength {
		return validation.ValidationError{Field: "description", Message: fmt.Sprintf("description must be at most %d characters", validation.MaxMessageLength)}
	}
	if err := validation.ValidateCost(in.Cost); err != nil {
		return err
	}
	if in.Category == "" {
		in.Category = models.CategoryOneTime
	}
	if err := validation.ValidateCategory(in.Category, in.IsRecurring); err != nil {
		return err
	}
	if in.ChildID != nil {
		if _, err := childFor(ctx, s.stores.Children, p, *in.ChildID); err != nil {
			return err
		}
	}
	return nil
}

func (s *RewardService) rewardInFamily(ctx context.Context, p *security.Principal, id int64) (*models.Reward, error) {
	reward, err := s.stores.Rewards.GetReward(ctx, id)
	if err != nil {
		return nil, err
	}
	if reward == nil || reward.FamilyID != p.FamilyID {
		return nil, ErrRewardNotFound
	}
	return reward, nil
}

// ListRewards returns the family's rewards for parents, and the claimable
// rewards visible to a child for children
func (s *RewardService) ListRewards(ctx context.Context, p *security.Principal) ([]models.Reward, error) {
	if p.IsChild() {
		rewards, err := s.stores.Rewards.ListRewardsForChild(ctx, p.FamilyID, p.Child.ID)
		if err != nil {
			return nil, err
		}
		return withoutTemplates(rewards), nil
	}
	if err := requireParent(p); err != nil {
		return nil, err
	}
	return s.stores.Rewards.ListRewardsByFamily(ctx, p.FamilyID)
}

// withoutTemplates drops recurring templates, which children never claim directly
func withoutTemplates(rewards []models.Reward) []models.Reward {
	return slices.DeleteFunc(rewards, func(r models.Reward) bool { return r.IsRecurring })
}

// CreateReward adds a reward. A recurring reward is a template: it is not
// claimed itself but produces a claimable copy each period, starting at
// its next occurrence (now when unset).
func (s *RewardService) CreateReward(ctx context.Context, p *security.Principal, in RewardInput) (*models.Reward, error) {
	if err := requireParent(p); err != nil {
		return nil, err
	}
	if err := s.validateInput(ctx, p, &in); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	reward := &models.Reward{
		FamilyID:    p.FamilyID,
		ChildID:     in.ChildID,
		Title:       in.Title,
		Description: in.Description,
		Cost:        in.Cost,
		Category:    in.Category,
		IsRecurring: in.IsRecurring,
		Active:      in.Active == nil || *in.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.IsRecurring {
		next := now
		if in.NextOccurrence != nil {
			next = in.NextOccurrence.UTC()
		}
		reward.NextOccurrence = &next
	}
	if err := s.stores.Rewards.CreateReward(ctx, reward); err != nil {
		return nil, err
	}
	return reward, nil
}

// UpdateReward edits a reward of the caller's family
func (s *RewardService) UpdateReward(ctx context.Context, p *security.Principal, id int64, in RewardInput) (*models.Reward, error) {
	if err := requireParent(p); err != nil {
		return nil, err
	}
	reward, err := s.rewardInFamily(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := s.validateInput(ctx, p, &in); err != nil {
		return nil, err
	}

	reward.ChildID = in.ChildID
	reward.Title = in.Title
	reward.Description = in.Description
	reward.Cost = in.Cost
	reward.Category = in.Category
	reward.IsRecurring = in.IsRecurring
	if in.Active != nil {
		reward.Active = *in.Active
	}
	switch {
	case !in.IsRecurring:
		reward.NextOccurrence = nil
	case in.NextOccurrence != nil:
		next := in.NextOccurrence.UTC()
		reward.NextOccurrence = &next
	case reward.NextOccurrence == nil:
		next := s.clk.Now()
		reward.NextOccurrence = &next
	}
	reward.UpdatedAt = s.clk.Now()

	if err := s.stores.Rewards.UpdateReward(ctx, reward); err != nil {
		return nil, err
	}
	return reward, nil
}

// DeleteReward deletes a reward and its claims
func (s *RewardService) DeleteReward(ctx context.Context, p *security.Principal, id int64) error {
	if err := requireParent(p); err != nil {
		return err
	}
	if _, err := s.rewardInFamily(ctx, p, id); err != nil {
		return err
	}
	return s.stores.Rewards.DeleteReward(ctx, id)
}

// Claim asks to redeem a reward. Points are only debited when a parent
// approves the claim.
func (s *RewardService) Claim(ctx context.Context, p *security.Principal, rewardID int64) (*models.RewardClaim, error) {
	if !p.IsChild() {
		return nil, ErrForbidden
	}
	if err := requireFeature(ctx, s.stores, p.Child.ID, FeatureRewards); err != nil {
		return nil, err
	}
	reward, err := s.rewardInFamily(ctx, p, rewardID)
	if err != nil {
		return nil, err
	}
	if !reward.VisibleTo(p.Child.ID) {
		return nil, ErrRewardNotFound
	}
	if !reward.Active || reward.IsRecurring {
		return nil, ErrRewardNotClaimable
	}

	child, err := s.stores.Children.GetChild(ctx, p.Child.ID)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, ErrChildNotFound
	}
	if child.RewardPoints < reward.Cost {
		return nil, ErrInsufficientPoints
	}

	claim := &models.RewardClaim{
		RewardID:    reward.ID,
		ChildID:     child.ID,
		Status:      models.ClaimPending,
		RequestedAt: s.clk.Now(),
	}
	if err := s.stores.Rewards.CreateClaim(ctx, claim); err != nil {
		return nil, err
	}
	claim.RewardTitle = reward.Title
	claim.RewardCost = reward.Cost
	claim.ChildName = child.Name

	s.sync.Emit(ctx, child.FamilyID, models.EventRewardClaimed, models.EntityClaim, claim.ID, claim)
	notifyParents(ctx, s.stores, child.FamilyID, "reward claimed", func(parents []models.User) error {
		return s.notifier.RewardClaimed(ctx, parents, child, reward)
	})
	return claim, nil
}

func (s *RewardService) claimInFamily(ctx context.Context, p *security.Principal, id int64) (*models.RewardClaim, *models.Child, error) {
	if err := requireParent(p); err != nil {
		return nil, nil, err
	}
	claim, err := s.stores.Rewards.GetClaim(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if claim == nil {
		return nil, nil, ErrClaimNotFound
	}
	child, err := childFor(ctx, s.stores.Children, p, claim.ChildID)
	if errors.Is(err, ErrChildNotFound) {
		return nil, nil, ErrClaimNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return claim, child, nil
}

// ApproveClaim settles a pending claim: the balance is checked again and the
// cost is debited together with a spend entry. One-time rewards are retired.
func (s *RewardService) ApproveClaim(ctx context.Context, p *security.Principal, id int64, message string) (*models.RewardClaim, error) {
	claim, child, err := s.claimInFamily(ctx, p, id)
	if err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	now := s.clk.Now()

	err = database.WithTx(ctx, s.stores.DB, func(tx *database.Tx) error {
		rewards := s.stores.Rewards.WithTx(tx)

		ok, err := rewards.ReviewClaim(ctx, id, models.ClaimApproved, p.DisplayName(), message, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrClaimNotPending
		}

		debited, err := s.stores.Children.WithTx(tx).AdjustPoints(ctx, child.ID, -claim.RewardCost, now)
		if err != nil {
			return err
		}
		if !debited {
			return ErrInsufficientPoints
		}

		refID := claim.ID
		entry := &models.RewardTransaction{
			ChildID:       child.ID,
			Amount:        -claim.RewardCost,
			Kind:          models.TransactionSpend,
			Description:   "Redeemed " + claim.RewardTitle,
			ReferenceType: models.RefClaim,
			ReferenceID:   &refID,
			Approved:      true,
			CreatedAt:     now,
		}
		if err := s.stores.Ledger.WithTx(tx).CreateTransaction(ctx, entry); err != nil {
			return err
		}

		reward, err := rewards.GetReward(ctx, claim.RewardID)
		if err != nil {
			return err
		}
		if reward != nil && reward.Category == models.CategoryOneTime && reward.Active {
			reward.Active = false
			reward.UpdatedAt = now
			return rewards.UpdateReward(ctx, reward)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	approved, err := s.stores.Rewards.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	s.sync.Emit(ctx, child.FamilyID, models.EventRewardClaimApproved, models.EntityClaim, id, approved)
	return approved, nil
}

// RejectClaim declines a pending claim; nothing is debited
func (s *RewardService) RejectClaim(ctx context.Context, p *security.Principal, id int64, message string) (*models.RewardClaim, error) {
	_, child, err := s.claimInFamily(ctx, p, id)
	if err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if len([]rune(message)) > validation.MaxMessageLength {
		return nil, validation.ValidationError{Field: "message", Message: fmt.Sprintf("message must be at most %d characters", validation.MaxMessageLength)}
	}

	ok, err := s.stores.Rewards.ReviewClaim(ctx, id, models.ClaimRejected, p.DisplayName(), message, s.clk.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrClaimNotPending
	}

	rejected, err := s.stores.Rewards.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	s.sync.Emit(ctx, child.FamilyID, models.EventRewardClaimRejected, models.EntityClaim, id, rejected)
	return rejected, nil
}

// ListClaims returns the family's claims for parents, optionally filtered
// by status, and a child's own claims for children
func (s *RewardService) ListClaims(ctx context.Context, p *security.Principal, status string) ([]models.RewardClaim, error) {
	switch status {
	case "", models.ClaimPending, models.ClaimApproved, models.ClaimRejected:
	default:
		return nil, validation.ValidationError{Field: "status", Message: "unknown claim status"}
	}
	if p.IsChild() {
		return s.stores.Rewards.ListClaimsByChild(ctx, p.Child.ID)
	}
	if err := requireParent(p); err != nil {
		return nil, err
	}
	return s.stores.Rewards.ListClaimsByFamily(ctx, p.FamilyID, status)
}

// ListTransactions returns a child's most recent ledger entries
func (s *RewardService) ListTransactions(ctx context.Context, p *security.Principal, childID int64, limit int) ([]models.RewardTransaction, error) {
	if _, err := childFor(ctx, s.stores.Children, p, childID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = defaultTransactionLimit
	}
	return s.stores.Ledger.ListTransactionsByChild(ctx, childID, limit)
}

// AdjustPoints credits or debits a child by hand. A debit may not take the
// balance below zero.
func (s *RewardService) AdjustPoints(ctx context.Context, p *security.Principal, childID int64, amount int, description string) (*models.Child, error) {
	child, err := parentChildFor(ctx, s.stores.Children, p, childID)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAdjustment
	}
	description = strings.TrimSpace(description)
	if description == "" {
		description = "Manual adjustment"
	}

	now := s.clk.Now()
	err = database.WithTx(ctx, s.stores.DB, func(tx *database.Tx) error {
		ok, err := s.stores.Children.WithTx(tx).AdjustPoints(ctx, childID, amount, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientPoints
		}
		return s.stores.Ledger.WithTx(tx).CreateTransaction(ctx, &models.RewardTransaction{
			ChildID:       childID,
			Amount:        amount,
			Kind:          models.TransactionAdjust,
			Description:   description,
			ReferenceType: models.RefManual,
			Approved:      true,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.sync.Emit(ctx, child.FamilyID, models.EventPointsAdjusted, models.EntityChild, childID, map[string]interface{}{
		"child_id":    childID,
		"amount":      amount,
		"description": description,
	})
	return s.stores.Children.GetChild(ctx, childID)
}

// UnlockItem buys an avatar or gear piece from the catalog for the calling child
func (s *RewardService) UnlockItem(ctx context.Context, p *security.Principal, kind models.ItemKind, itemID string) (*models.Child, error) {
	if !p.IsChild() {
		return nil, ErrForbidden
	}
	if err := requireFeature(ctx, s.stores, p.Child.ID, FeatureAvatarShop); err != nil {
		return nil, err
	}
	cat, err := catalog.Load()
	if err != nil {
		return nil, err
	}
	item, ok := cat.Find(kind, itemID)
	if !ok {
		return nil, ErrItemNotFound
	}

	now := s.clk.Now()
	var familyID int64
	err = database.WithTx(ctx, s.stores.DB, func(tx *database.Tx) error {
		children := s.stores.Children.WithTx(tx)
		child, err := children.GetChild(ctx, p.Child.ID)
		if err != nil {
			return err
		}
		if child == nil {
			return ErrChildNotFound
		}
		familyID = child.FamilyID
		if child.HasUnlocked(kind, item.ID) {
			return ErrAlreadyUnlocked
		}

		if item.Cost > 0 {
			debited, err := children.AdjustPoints(ctx, child.ID, -item.Cost, now)
			if err != nil {
				return err
			}
			if !debited {
				return ErrInsufficientPoints
			}
			entry := &models.RewardTransaction{
				ChildID:       child.ID,
				Amount:        -item.Cost,
				Kind:          models.TransactionSpend,
				Description:   fmt.Sprintf("Unlocked %s %s", kind, item.Name),
				ReferenceType: models.RefShopItem,
				Approved:      true,
				CreatedAt:     now,
			}
			if err := s.stores.Ledger.WithTx(tx).CreateTransaction(ctx, entry); err != nil {
				return err
			}
		}

		avatars, gear := child.UnlockedAvatars, child.UnlockedGear
		if kind == models.ItemAvatar {
			avatars = append(avatars, item.ID)
		} else {
			gear = append(gear, item.ID)
		}
		return children.SetUnlocked(ctx, child.ID, avatars, gear, now)
	})
	if err != nil {
		return nil, err
	}

	s.sync.Emit(ctx, familyID, models.EventItemUnlocked, models.EntityChild, p.Child.ID, map[string]interface{}{
		"child_id": p.Child.ID,
		"kind":     kind,
		"item_id":  item.ID,
		"cost":     item.Cost,
	})
	return s.stores.Children.GetChild(ctx, p.Child.ID)
}

// Balance compares a child's stored points with the sum of its approved
// ledger entries
func (s *RewardService) Balance(ctx context.Context, p *security.Principal, childID int64) (*models.BalanceReport, error) {
	child, err := childFor(ctx, s.stores.Children, p, childID)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, child)
}

func (s *RewardService) reconcile(ctx context.Context, child *models.Child) (*models.BalanceReport, error) {
	sum, err := s.stores.Ledger.SumApproved(ctx, child.ID)
	if err != nil {
		return nil, err
	}
	return &models.BalanceReport{ChildID: child.ID, StoredBalance: child.RewardPoints, LedgerBalance: sum}, nil
}

// ReconcileBalances reports every child of a family whose stored balance
// disagrees with the ledger
func (s *RewardService) ReconcileBalances(ctx context.Context, p *security.Principal) ([]models.BalanceReport, error) {
	if err := requireParent(p); err != nil {
		return nil, err
	}
	children, err := s.stores.Children.ListChildrenByFamily(ctx, p.FamilyID)
	if err != nil {
		return nil, err
	}
	mismatches := []models.BalanceReport{}
	for i := range children {
		report, err := s.reconcile(ctx, &children[i])
		if err != nil {
			return nil, err
		}
		if !report.Consistent() {
			log.Printf("Warning: child %d balance %d does not match ledger %d", report.ChildID, report.StoredBalance, report.LedgerBalance)
			mismatches = append(mismatches, *report)
		}
	}
	return mismatches, nil
}

// GenerateDueRewards creates one claimable copy of every recurring reward
// that is due and moves its next occurrence on by one period. Each reward
// is handled in its own transaction; the first failure stops the run.
func (s *RewardService) GenerateDueRewards(ctx context.Context) (int, error) {
	now := s.clk.Now()
	due, err := s.stores.Rewards.ListDueRecurring(ctx, now)
	if err != nil {
		return 0, err
	}

	generated := 0
	for _, template := range due {
		current := *template.NextOccurrence
		next, ok := models.NextAfter(template.Category, current)
		if !ok {
			log.Printf("Warning: recurring reward %d has non-recurring category %q", template.ID, template.Category)
			continue
		}

		parentID := template.ID
		instance := &models.Reward{
			FamilyID:       template.FamilyID,
			ChildID:        template.ChildID,
			Title:          template.Title,
			Description:    template.Description,
			Cost:           template.Cost,
			Category:       models.CategoryOneTime,
			ParentRewardID: &parentID,
			Active:         true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		var advanced bool
		err := database.WithTx(ctx, s.stores.DB, func(tx *database.Tx) error {
			rewards := s.stores.Rewards.WithTx(tx)
			var err error
			advanced, err = rewards.AdvanceNextOccurrence(ctx, template.ID, current, next, now)
			if err != nil || !advanced {
				return err
			}
			return rewards.CreateReward(ctx, instance)
		})
		if err != nil {
			return generated, fmt.Errorf("failed to generate reward from %d: %w", template.ID, err)
		}
		if !advanced {
			continue
		}
		generated++
		s.sync.Emit(ctx, template.FamilyID, models.EventRewardGenerated, models.EntityReward, instance.ID, instance)
	}
	return generated, nil
}
