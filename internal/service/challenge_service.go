package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"habitheroes/internal/clock"
	"habitheroes/internal/database"
	"habitheroes/internal/models"
	"habitheroes/internal/security"
	"habitheroes/internal/validation"
)

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeClosed   = errors.New("challenge is not open")
	ErrInvalidTransition = errors.New("challenge cannot move to that state")
)

// ChallengeInput describes a new weekend challenge
type ChallengeInput struct {
	ChildID     int64     `json:"child_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	BonusPoints int       `json:"bonus_points"`
	BonusXP     int       `json:"bonus_xp"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
}

// ChallengeService manages weekend challenges: available, then accepted by
// the child, then completed with a one-off bonus
type ChallengeService struct {
	stores *Stores
	clk    clock.Clock
	sync   *SyncService
}

// NewChallengeService creates a new challenge service
func NewChallengeService(stores *Stores, clk clock.Clock, sync *SyncService) *ChallengeService {
	return &ChallengeService{stores: stores, clk: clk, sync: sync}
}

func (s *ChallengeService) challengeFor(ctx context.Context, p *security.Principal, id int64) (*models.WeekendChallenge, *models.Child, error) {
	w, err := s.stores.Challenges.GetChallenge(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if w == nil {
		return nil, nil, ErrChallengeNotFound
	}
	child, err := childFor(ctx, s.stores.Children, p, w.ChildID)
	if errors.Is(err, ErrChildNotFound) {
		return nil, nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return w, child, nil
}

// CreateChallenge offers a challenge to one child
func (s *ChallengeService) CreateChallenge(ctx context.Context, p *security.Principal, in ChallengeInput) (*models.WeekendChallenge, error) {
	if _, err := parentChildFor(ctx, s.stores.Children, p, in.ChildID); err != nil {
		return nil, err
	}
	in.Title = validation.NormalizeName(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validation.ValidateTitle("title", in.Title); err != nil {
		return nil, err
	}
	if in.BonusPoints < 0 || in.BonusPoints > validation.MaxRewardCost {
		return nil, validation.ValidationError{Field: "bonus_points", Message: fmt.Sprintf("bonus points must be between 0 and %d", validation.MaxRewardCost)}
	}
	if in.BonusXP < 0 || in.BonusXP > validation.MaxXPReward {
		return nil, validation.ValidationError{Field: "bonus_xp", Message: fmt.Sprintf("bonus xp must be between 0 and %d", validation.MaxXPReward)}
	}
	if in.StartsAt.IsZero() || !in.EndsAt.After(in.StartsAt) {
		return nil, validation.ValidationError{Field: "ends_at", Message: "the challenge must end after it starts"}
	}

	w := &models.WeekendChallenge{
		ChildID:     in.ChildID,
		Title:       in.Title,
		Description: in.Description,
		BonusPoints: in.BonusPoints,
		BonusXP:     in.BonusXP,
		StartsAt:    in.StartsAt.UTC(),
		EndsAt:      in.EndsAt.UTC(),
		CreatedAt:   s.clk.Now(),
	}
	if err := s.stores.Challenges.CreateChallenge(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// ListChallenges returns a child's challenges, newest first
func (s *ChallengeService) ListChallenges(ctx context.Context, p *security.Principal, childID int64) ([]models.WeekendChallenge, error) {
	if _, err := childFor(ctx, s.stores.Children, p, childID); err != nil {
		return nil, err
	}
	return s.stores.Challenges.ListChallengesByChild(ctx, childID)
}

// DeleteChallenge withdraws a challenge
func (s *ChallengeService) DeleteChallenge(ctx context.Context, p *security.Principal, id int64) error {
	if err := requireParent(p); err != nil {
		return err
	}
	if _, _, err := s.challengeFor(ctx, p, id); err != nil {
		return err
	}
	return s.stores.Challenges.DeleteChallenge(ctx, id)
}

// AcceptChallenge lets the child take on an open challenge
func (s *ChallengeService) AcceptChallenge(ctx context.Context, p *security.Principal, id int64) (*models.WeekendChallenge, error) {
	if !p.IsChild() {
		return nil, ErrForbidden
	}
	w, child, err := s.challengeFor(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := requireFeature(ctx, s.stores, child.ID, FeatureChallenges); err != nil {
		return nil, err
	}
	now := s.clk.Now()
	if !w.Open(now) {
		return nil, ErrChallengeClosed
	}

	ok, err := s.stores.Challenges.MarkAccepted(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}

	accepted, err := s.stores.Challenges.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	s.sync.Emit(ctx, child.FamilyID, models.EventChallengeAccepted, models.EntityChallenge, id, accepted)
	return accepted, nil
}

// CompleteChallenge finishes an accepted challenge and pays out its bonus
// exactly once. The child marks it done; a parent may do so on their behalf.
func (s *ChallengeService) CompleteChallenge(ctx context.Context, p *security.Principal, id int64) (*models.WeekendChallenge, error) {
	w, child, err := s.challengeFor(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if p.IsChild() {
		if err := requireFeature(ctx, s.stores, child.ID, FeatureChallenges); err != nil {
			return nil, err
		}
	}

	now := s.clk.Now()
	err = database.WithTx(ctx, s.stores.DB, func(tx *database.Tx) error {
		ok, err := s.stores.Challenges.WithTx(tx).MarkCompleted(ctx, id, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidTransition
		}

		children := s.stores.Children.WithTx(tx)
		if err := children.CreditProgress(ctx, child.ID, w.BonusXP, w.BonusPoints, now); err != nil {
			return err
		}
		if _, err := children.ApplyLevelUps(ctx, child.ID, now); err != nil {
			return err
		}
		if w.BonusPoints == 0 {
			return nil
		}

		refID := w.ID
		return s.stores.Ledger.WithTx(tx).CreateTransaction(ctx, &models.RewardTransaction{
			ChildID:       child.ID,
			Amount:        w.BonusPoints,
			Kind:          models.TransactionEarn,
			Description:   fmt.Sprintf("Completed challenge %s", w.Title),
			ReferenceType: models.RefChallenge,
			ReferenceID:   &refID,
			Approved:      true,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return nil, err
	}

	completed, err := s.stores.Challenges.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	s.sync.Emit(ctx, child.FamilyID, models.EventChallengeCompleted, models.EntityChallenge, id, completed)
	return completed, nil
}
