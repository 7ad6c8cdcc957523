package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"habitheroes/internal/clock"
	"habitheroes/internal/database"
	"habitheroes/internal/models"
	"habitheroes/internal/security"
	"habitheroes/internal/validation"
)

var (
	ErrCompletionNotFound    = errors.New("completion not found")
	ErrNotPending            = errors.New("completion is not pending")
	ErrAlreadyCompletedToday = errors.New("habit already completed today")
	ErrCompletionPending     = errors.New("habit completion already awaiting approval")
	ErrFeedbackRequired      = errors.New("feedback message is required when rejecting")
	ErrHabitInactive         = errors.New("habit is not active")
)

// CompletionService runs the habit completion workflow: submit, review,
// daily reload and streaks
type CompletionService struct {
	stores   *Stores
	clk      clock.Clock
	sync     *SyncService
	notifier Notifier
	loc      *time.Location
}

// NewCompletionService creates a new completion service. Completion days
// follow the wall clock of loc; nil means UTC.
func NewCompletionService(stores *Stores, clk clock.Clock, sync *SyncService, notifier Notifier, loc *time.Location) *CompletionService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CompletionService{stores: stores, clk: clk, sync: sync, notifier: notifier, loc: loc}
}

// Submit records that a child performed a habit today. The completion waits
// for a parent's review before anything is credited.
func (s *CompletionService) Submit(ctx context.Context, p *security.Principal, habitID int64) (*models.HabitCompletion, error) {
	ctx, span := startSpan(ctx, "CompletionService.Submit")
	var err error
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.Int64("habit.id", habitID))

	habit, child, err := loadHabit(ctx, s.stores, p, habitID)
	if err != nil {
		return nil, err
	}
	if !habit.Active {
		err = ErrHabitInactive
		return nil, err
	}

	now := s.clk.Now()
	today := now.In(s.loc).Format(clock.DateLayout)
	completion := &models.HabitCompletion{
		HabitID:            habit.ID,
		ChildID:            child.ID,
		CompletionDate:     today,
		CompletedAt:        now,
		XPEarned:           habit.XPReward,
		RewardPointsEarned: models.RewardPointsForXP(habit.XPReward),
		Status:             models.CompletionPending,
	}

	err = database.WithTx(ctx, s.stores.DB, func(tx *database.Tx) error {
		completions := s.stores.Completions.WithTx(tx)
		if err := s.stores.Habits.WithTx(tx).LockHabit(ctx, habit.ID); err != nil {
			return err
		}

		approved, err := completions.CountForDay(ctx, habit.ID, today, models.CompletionApproved, 0)
		if err != nil {
			return err
		}
		if approved > 0 {
			return ErrAlreadyCompletedToday
		}
		pending, err := completions.CountForDay(ctx, habit.ID, today, models.CompletionPending, 0)
		if err != nil {
			return err
		}
		if pending > 0 {
			return ErrCompletionPending
		}

		yesterday := clock.DayBefore(today)
		dates, err := completions.ApprovedDates(ctx, habit.ID, child.ID, yesterday)
		if err != nil {
			return err
		}
		completion.StreakCount = consecutiveDays(dates, yesterday) + 1

		err = completions.CreateCompletion(ctx, completion)
		if tx.GetDialect().IsUniqueViolation(err) {
			return ErrCompletionPending
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.sync.Emit(ctx, child.FamilyID, models.EventHabitCompleted, models.EntityCompletion, completion.ID, map[string]interface{}{
		"completion_id": completion.ID,
		"habit_id":      habit.ID,
		"habit_name":    habit.Name,
		"child_id":      child.ID,
		"child_name":    child.Name,
		"xp_earned":     completion.XPEarned,
	})
	notifyParents(ctx, s.stores, child.FamilyID, "habit submitted", func(parents []models.User) error {
		return s.notifier.HabitSubmitted(ctx, parents, child, habit)
	})
	return completion, nil
}

// completionInFamily loads a completion and checks it belongs to the
// caller's family
func (s *CompletionService) completionInFamily(ctx context.Context, p *security.Principal, id int64) (*models.HabitCompletion, *models.Child, error) {
	if err := requireParent(p); err != nil {
		return nil, nil, err
	}
	c, err := s.stores.Completions.GetCompletion(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, ErrCompletionNotFound
	}
	child, err := childFor(ctx, s.stores.Children, p, c.ChildID)
	if errors.Is(err, ErrChildNotFound) {
		return nil, nil, ErrCompletionNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return c, child, nil
}

// Approve accepts a pending completion and credits its XP and points
func (s *CompletionService) Approve(ctx context.Context, p *security.Principal, id int64, message string) (*models.HabitCompletion, error) {
	_, child, err := s.completionInFamily(ctx, p, id)
	if err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if len([]rune(message)) > validation.MaxMessageLength {
		return nil, validation.ValidationError{Field: "message", Message: fmt.Sprintf("message must be at most %d characters", validation.MaxMessageLength)}
	}
	return s.approve(ctx, child, id, p.DisplayName(), message, false)
}

// approve moves a completion to approved and credits the child exactly
// once. Concurrent approvals of the same completion or of a sibling for
// the same day lose the race and change nothing.
func (s *CompletionService) approve(ctx context.Context, child *models.Child, id int64, reviewer, message string, auto bool) (*models.HabitCompletion, error) {
	ctx, span := startSpan(ctx, "CompletionService.Approve")
	var err error
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.Int64("completion.id", id), attribute.Bool("completion.auto", auto))

	now := s.clk.Now()
	var approved *models.HabitCompletion
	var levels int
	err = database.WithTx(ctx, s.stores.DB, func(tx *database.Tx) error {
		completions := s.stores.Completions.WithTx(tx)
		children := s.stores.Children.WithTx(tx)

		c, err := completions.GetCompletion(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrCompletionNotFound
		}
		if err := s.stores.Habits.WithTx(tx).LockHabit(ctx, c.HabitID); err != nil {
			return err
		}

		ok, err := completions.Review(ctx, id, models.CompletionApproved, reviewer, message, now, auto)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotPending
		}
		siblings, err := completions.CountForDay(ctx, c.HabitID, c.CompletionDate, models.CompletionApproved, c.ID)
		if err != nil {
			return err
		}
		if siblings > 0 {
			return ErrAlreadyCompletedToday
		}

		if err := children.CreditProgress(ctx, c.ChildID, c.XPEarned, c.RewardPointsEarned, now); err != nil {
			return err
		}
		if levels, err = children.ApplyLevelUps(ctx, c.ChildID, now); err != nil {
			return err
		}

		refID := c.ID
		entry := &models.RewardTransaction{
			ChildID:       c.ChildID,
			Amount:        c.RewardPointsEarned,
			Kind:          models.TransactionEarn,
			Description:   "Habit completed",
			ReferenceType: models.RefCompletion,
			ReferenceID:   &refID,
			Approved:      true,
			CreatedAt:     now,
		}
		if err := s.stores.Ledger.WithTx(tx).CreateTransaction(ctx, entry); err != nil {
			return err
		}

		approved, err = completions.GetCompletion(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.sync.Emit(ctx, child.FamilyID, models.EventHabitApproved, models.EntityCompletion, approved.ID, map[string]interface{}{
		"completion_id":  approved.ID,
		"child_id":       approved.ChildID,
		"xp_earned":      approved.XPEarned,
		"points_earned":  approved.RewardPointsEarned,
		"levels_gained":  levels,
		"auto_approved":  auto,
		"reviewed_by":    reviewer,
		"review_message": message,
	})
	return approved, nil
}

// Reject declines a pending completion. A non-blank message is required.
func (s *CompletionService) Reject(ctx context.Context, p *security.Principal, id int64, message string) (*models.HabitCompletion, error) {
	ctx, span := startSpan(ctx, "CompletionService.Reject")
	var err error
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(message) == "" {
		err = ErrFeedbackRequired
		return nil, err
	}
	if err = validation.ValidateFeedback(message); err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)

	_, child, err := s.completionInFamily(ctx, p, id)
	if err != nil {
		return nil, err
	}

	ok, err := s.stores.Completions.Review(ctx, id, models.CompletionRejected, p.DisplayName(), message, s.clk.Now(), false)
	if err != nil {
		return nil, err
	}
	if !ok {
		err = ErrNotPending
		return nil, err
	}
	rejected, err := s.stores.Completions.GetCompletion(ctx, id)
	if err != nil {
		return nil, err
	}

	s.sync.Emit(ctx, child.FamilyID, models.EventHabitRejected, models.EntityCompletion, id, map[string]interface{}{
		"completion_id":  id,
		"child_id":       child.ID,
		"review_message": message,
	})
	return rejected, nil
}

// Reload clears today's pending and rejected completions of a child so the
// habits can be done again. Approved completions stay.
func (s *CompletionService) Reload(ctx context.Context, p *security.Principal, childID int64) (int64, error) {
	child, err := childFor(ctx, s.stores.Children, p, childID)
	if err != nil {
		return 0, err
	}
	deleted, err := s.stores.Completions.DeleteUnapprovedForDay(ctx, child.ID, clock.TodayIn(s.clk, s.loc))
	if err != nil {
		return 0, err
	}
	s.sync.Emit(ctx, child.FamilyID, models.EventHabitsReloaded, models.EntityChild, child.ID, map[string]interface{}{
		"child_id": child.ID,
		"deleted":  deleted,
	})
	return deleted, nil
}

// Streak counts the consecutive days, up to today, on which the habit was
// approved. A today without an approved completion yet does not break it.
func (s *CompletionService) Streak(ctx context.Context, p *security.Principal, habitID int64) (int, error) {
	habit, child, err := loadHabit(ctx, s.stores, p, habitID)
	if err != nil {
		return 0, err
	}
	today := clock.TodayIn(s.clk, s.loc)
	dates, err := s.stores.Completions.ApprovedDates(ctx, habit.ID, child.ID, today)
	if err != nil {
		return 0, err
	}
	start := today
	if len(dates) == 0 || dates[0] != today {
		start = clock.DayBefore(today)
	}
	return consecutiveDays(dates, start), nil
}

// consecutiveDays counts how many of dates, sorted newest first, form an
// unbroken run of days ending at from
func consecutiveDays(dates []string, from string) int {
	count := 0
	expected := from
	for _, d := range dates {
		if d != expected {
			break
		}
		count++
		expected = clock.DayBefore(expected)
	}
	return count
}

// ListPending returns the family's completions awaiting review. When
// auto-approval is on each carries its deadline.
func (s *CompletionService) ListPending(ctx context.Context, p *security.Principal) ([]models.PendingCompletion, error) {
	if err := requireParent(p); err != nil {
		return nil, err
	}
	pending, err := s.stores.Completions.ListPendingByFamily(ctx, p.FamilyID)
	if err != nil {
		return nil, err
	}
	settings, err := s.stores.Controls.GetApprovalSettings(ctx, p.FamilyID)
	if err != nil {
		return nil, err
	}
	if settings != nil && settings.Enabled {
		for i := range pending {
			deadline := settings.DeadlineFor(pending[i].CompletedAt)
			pending[i].AutoApproveAt = &deadline
		}
	}
	if pending == nil {
		pending = []models.PendingCompletion{}
	}
	return pending, nil
}

// ListForChild returns a child's completions since the given day, or for
// the last 30 days when since is empty
func (s *CompletionService) ListForChild(ctx context.Context, p *security.Principal, childID int64, since string) ([]models.HabitCompletion, error) {
	if _, err := childFor(ctx, s.stores.Children, p, childID); err != nil {
		return nil, err
	}
	if since == "" {
		since = s.clk.Now().In(s.loc).AddDate(0, 0, -recentCompletionDays).Format(clock.DateLayout)
	} else if _, err := time.Parse(clock.DateLayout, since); err != nil {
		return nil, validation.ValidationError{Field: "since", Message: "date must be YYYY-MM-DD"}
	}
	return s.stores.Completions.ListForChild(ctx, childID, since)
}

// AutoApproveDue approves every pending completion whose auto-approval
// deadline has passed, across all families that enabled it. One failing
// completion does not stop the others.
func (s *CompletionService) AutoApproveDue(ctx context.Context) (int, error) {
	settings, err := s.stores.Controls.ListEnabledApprovalSettings(ctx)
	if err != nil {
		return 0, err
	}

	now := s.clk.Now()
	approved := 0
	var errs []error
	for _, set := range settings {
		if set.Delay() <= 0 {
			continue
		}
		due, err := s.stores.Completions.ListPendingCompletedBefore(ctx, set.FamilyID, now.Add(-set.Delay()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, pc := range due {
			child := &models.Child{ID: pc.ChildID, FamilyID: pc.FamilyID, Name: pc.ChildName}
			_, err := s.approve(ctx, child, pc.ID, models.AutoApprovalReviewer, "", true)
			switch {
			case err == nil:
				approved++
			case errors.Is(err, ErrNotPending), errors.Is(err, ErrAlreadyCompletedToday):
				log.Printf("Auto-approval skipped completion %d: %v", pc.ID, err)
			default:
				log.Printf("Auto-approval failed for completion %d: %v", pc.ID, err)
				errs = append(errs, err)
			}
		}
	}
	return approved, errors.Join(errs...)
}
