package service

import (
	"context"
	"errors"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"habitheroes/internal/database"
	"habitheroes/internal/models"
	"habitheroes/internal/repository"
	"habitheroes/internal/security"
)

var tracer = otel.Tracer("habitheroes/internal/service")

var (
	ErrForbidden     = errors.New("not allowed")
	ErrChildNotFound = errors.New("child not found")
)

// Stores bundles the repositories shared by the services. Repositories are
// rebound to a transaction with their WithTx method.
type Stores struct {
	DB          *database.DB
	Users       *repository.UserRepository
	Families    *repository.FamilyRepository
	Children    *repository.ChildRepository
	Habits      *repository.HabitRepository
	Completions *repository.CompletionRepository
	Rewards     *repository.RewardRepository
	Ledger      *repository.LedgerRepository
	Controls    *repository.ControlsRepository
	Sync        *repository.SyncRepository
	Challenges  *repository.ChallengeRepository
}

// NewStores creates every repository over db
func NewStores(db *database.DB) *Stores {
	return &Stores{
		DB:          db,
		Users:       repository.NewUserRepository(db),
		Families:    repository.NewFamilyRepository(db),
		Children:    repository.NewChildRepository(db),
		Habits:      repository.NewHabitRepository(db),
		Completions: repository.NewCompletionRepository(db),
		Rewards:     repository.NewRewardRepository(db),
		Ledger:      repository.NewLedgerRepository(db),
		Controls:    repository.NewControlsRepository(db),
		Sync:        repository.NewSyncRepository(db),
		Challenges:  repository.NewChallengeRepository(db),
	}
}

// requireParent rejects callers that are not a signed-in parent
func requireParent(p *security.Principal) error {
	if !p.IsParent() {
		return ErrForbidden
	}
	return nil
}

// childFor loads a child the caller may act for. Children outside the
// caller's reach are reported as missing.
func childFor(ctx context.Context, children *repository.ChildRepository, p *security.Principal, childID int64) (*models.Child, error) {
	child, err := children.GetChild(ctx, childID)
	if err != nil {
		return nil, err
	}
	if child == nil || !p.CanActFor(child) {
		return nil, ErrChildNotFound
	}
	return child, nil
}

// parentChildFor is childFor restricted to parents
func parentChildFor(ctx context.Context, children *repository.ChildRepository, p *security.Principal, childID int64) (*models.Child, error) {
	if err := requireParent(p); err != nil {
		return nil, err
	}
	return childFor(ctx, children, p, childID)
}

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// endSpan records err on the span and ends it
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// familyParents returns the parent accounts of a family, for notifications
func familyParents(ctx context.Context, stores *Stores, familyID int64) ([]models.User, error) {
	ids, err := stores.Families.ListParentUserIDs(ctx, familyID)
	if err != nil {
		return nil, err
	}
	return stores.Users.ListUsersByIDs(ctx, ids)
}

// notifyParents runs send against the family's parents and only logs failures
func notifyParents(ctx context.Context, stores *Stores, familyID int64, what string, send func(parents []models.User) error) {
	parents, err := familyParents(ctx, stores, familyID)
	if err != nil {
		log.Printf("Warning: failed to load parents of family %d for %s notification: %v", familyID, what, err)
		return
	}
	if len(parents) == 0 {
		return
	}
	if err := send(parents); err != nil {
		log.Printf("Warning: failed to send %s notification for family %d: %v", what, familyID, err)
	}
}
