package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"

	"habitheroes/internal/catalog"
	"habitheroes/internal/clock"
	"habitheroes/internal/credentials"
	"habitheroes/internal/database"
	"habitheroes/internal/models"
	"habitheroes/internal/security"
	"habitheroes/internal/validation"
)

var (
	ErrFamilyNotFound     = errors.New("family not found")
	ErrInvalidFamilyCode  = errors.New("invalid family code")
	ErrAlreadyInFamily    = errors.New("already a member of this family")
	ErrCannotLeaveFamily  = errors.New("cannot leave a family that still has children and no other parent")
	ErrAvatarNotAvailable = errors.New("avatar is not unlocked")
)

// familyCodeAttempts bounds the retries when a generated code collides
const familyCodeAttempts = 10

// FamilyService handles families and child profiles
type FamilyService struct {
	stores *Stores
	clk    clock.Clock
}

// NewFamilyService creates a new family service
func NewFamilyService(stores *Stores, clk clock.Clock) *FamilyService {
	return &FamilyService{stores: stores, clk: clk}
}

// createFamily creates a family owned by owner, seeded with the starter
// master habits. It runs inside the caller's transaction.
func (s *FamilyService) createFamily(ctx context.Context, tx *database.Tx, owner *models.User) (*models.Family, error) {
	families := s.stores.Families.WithTx(tx)

	var code string
	for attempt := 0; attempt < familyCodeAttempts; attempt++ {
		candidate, err := credentials.GenerateFamilyCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate family code: %w", err)
		}
		exists, err := families.FamilyCodeExists(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if !exists {
			code = candidate
			break
		}
	}
	if code == "" {
		return nil, errors.New("failed to generate a unique family code")
	}

	now := s.clk.Now()
	family := &models.Family{
		Name:       owner.Name + "'s family",
		FamilyCode: code,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := families.CreateFamily(ctx, family); err != nil {
		return nil, err
	}
	if err := families.AddFamilyMember(ctx, family.ID, owner.ID, models.RoleOwner, now); err != nil {
		return nil, err
	}
	if err := seedStarterHabits(ctx, s.stores.Habits.WithTx(tx), family.ID, now); err != nil {
		return nil, err
	}
	return family, nil
}

// GetFamily returns the caller's family with its parents
func (s *FamilyService) GetFamily(ctx context.Context, p *security.Principal) (*models.FamilyWithMembers, error) {
	family, err := s.stores.Families.GetFamilyByID(ctx, p.FamilyID)
	if err != nil {
		return nil, err
	}
	if family == nil {
		return nil, ErrFamilyNotFound
	}

	members, err := s.stores.Families.ListMembers(ctx, family.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	users, err := s.stores.Users.ListUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &models.FamilyWithMembers{Family: *family, Members: members, Users: users}, nil
}

// JoinFamily moves the calling parent into the family with the given code.
// A family left without parents is deleted; one that still has children
// cannot be left that way.
func (s *FamilyService) JoinFamily(ctx context.Context, p *security.Principal, code string) (*models.Family, error) {
	if err := requireParent(p); err != nil {
		return nil, err
	}
	code = validation.NormalizeFamilyCode(code)
	if err := validation.ValidateFamilyCode(code); err != nil {
		return nil, err
	}

	var joined *models.Family
	err := database.WithTx(ctx, s.stores.DB, func(tx *database.Tx) error {
		families := s.stores.Families.WithTx(tx)

		target, err := families.GetFamilyByCode(ctx, code)
		if err != nil {
			return err
		}
		if target == nil {
			return ErrInvalidFamilyCode
		}
		if target.ID == p.FamilyID {
			return ErrAlreadyInFamily
		}

		members, err := families.ListMembers(ctx, p.FamilyID)
		if err != nil {
			return err
		}
		lastParent := len(members) <= 1
		if lastParent {
			children, err := families.CountChildren(ctx, p.FamilyID)
			if err != nil {
				return err
			}
			if children > 0 {
				return ErrCannotLeaveFamily
			}
		}

		if err := families.MoveMember(ctx, p.User.ID, target.ID, models.RoleParent); err != nil {
			return err
		}
		if lastParent {
			if err := families.DeleteFamily(ctx, p.FamilyID); err != nil {
				return err
			}
		}
		joined = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("User %d joined family %d", p.User.ID, joined.ID)
	return joined, nil
}

// CreateChild adds a child profile to the caller's family. The generated
// PIN is returned in clear text this one time only.
func (s *FamilyService) CreateChild(ctx context.Context, p *security.Principal, name, avatarID string) (*models.Child, string, error) {
	if err := requireParent(p); err != nil {
		return nil, "", err
	}
	name = validation.NormalizeName(name)
	if err := validation.ValidateName(name); err != nil {
		return nil, "", err
	}

	cat, err := catalog.Load()
	if err != nil {
		return nil, "", err
	}
	free := cat.FreeAvatars()
	if avatarID == "" && len(free) > 0 {
		avatarID = free[0]
	}
	if avatarID != "" && !slices.Contains(free, avatarID) {
		return nil, "", ErrAvatarNotAvailable
	}

	username, err := credentials.UniqueChildUsername(ctx, s.stores.Children.UsernameExists)
	if err != nil {
		return nil, "", err
	}
	pin, err := credentials.GeneratePIN()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate pin: %w", err)
	}
	pinHash, err := security.HashPIN(pin)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash pin: %w", err)
	}

	now := s.clk.Now()
	child := &models.Child{
		FamilyID:        p.FamilyID,
		Name:            name,
		Username:        username,
		PINHash:         pinHash,
		AvatarID:        avatarID,
		Level:           1,
		UnlockedAvatars: free,
		UnlockedGear:    []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.stores.Children.CreateChild(ctx, child); err != nil {
		return nil, "", err
	}
	return child, pin, nil
}

// ListChildren lists the children the caller can see: the whole family for
// parents, only themselves for children
func (s *FamilyService) ListChildren(ctx context.Context, p *security.Principal) ([]models.Child, error) {
	if p.IsChild() {
		child, err := s.stores.Children.GetChild(ctx, p.Child.ID)
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, ErrChildNotFound
		}
		return []models.Child{*child}, nil
	}
	if err := requireParent(p); err != nil {
		return nil, err
	}
	return s.stores.Children.ListChildrenByFamily(ctx, p.FamilyID)
}

// GetChild returns a child the caller may act for
func (s *FamilyService) GetChild(ctx context.Context, p *security.Principal, childID int64) (*models.Child, error) {
	return childFor(ctx, s.stores.Children, p, childID)
}

// UpdateChild changes a child's display name and avatar. The avatar must
// already be unlocked by the child.
func (s *FamilyService) UpdateChild(ctx context.Context, p *security.Principal, childID int64, name, avatarID string) (*models.Child, error) {
	child, err := parentChildFor(ctx, s.stores.Children, p, childID)
	if err != nil {
		return nil, err
	}

	name = validation.NormalizeName(name)
	if err := validation.ValidateName(name); err != nil {
		return nil, err
	}
	if avatarID == "" {
		avatarID = child.AvatarID
	}
	if !child.HasUnlocked(models.ItemAvatar, avatarID) {
		return nil, ErrAvatarNotAvailable
	}

	if err := s.stores.Children.UpdateProfile(ctx, childID, name, avatarID, s.clk.Now()); err != nil {
		return nil, err
	}
	return s.stores.Children.GetChild(ctx, childID)
}

// RegeneratePIN issues a new PIN and signs the child out everywhere
func (s *FamilyService) RegeneratePIN(ctx context.Context, p *security.Principal, childID int64) (string, error) {
	if _, err := parentChildFor(ctx, s.stores.Children, p, childID); err != nil {
		return "", err
	}

	pin, err := credentials.GeneratePIN()
	if err != nil {
		return "", fmt.Errorf("failed to generate pin: %w", err)
	}
	pinHash, err := security.HashPIN(pin)
	if err != nil {
		return "", fmt.Errorf("failed to hash pin: %w", err)
	}

	err = database.WithTx(ctx, s.stores.DB, func(tx *database.Tx) error {
		children := s.stores.Children.WithTx(tx)
		if err := children.UpdatePINHash(ctx, childID, pinHash, s.clk.Now()); err != nil {
			return err
		}
		return children.DeleteChildSessionsFor(ctx, childID)
	})
	if err != nil {
		return "", err
	}
	return pin, nil
}

// DeleteChild removes a child and everything that belongs to it
func (s *FamilyService) DeleteChild(ctx context.Context, p *security.Principal, childID int64) error {
	if _, err := parentChildFor(ctx, s.stores.Children, p, childID); err != nil {
		return err
	}
	return s.stores.Children.DeleteChild(ctx, childID)
}
