package scheduler

import (
	"context"
	"errors"
	"log"
	"time"
)

// Job names accepted by RunOnce
const (
	JobRecurringRewards = "recurring-rewards"
	JobAutoApproval     = "auto-approval"
	JobSessionCleanup   = "session-cleanup"
)

// RewardGenerator materialises recurring rewards that are due
type RewardGenerator interface {
	GenerateDueRewards(ctx context.Context) (int, error)
}

// AutoApprover approves pending completions past their deadline
type AutoApprover interface {
	AutoApproveDue(ctx context.Context) (int, error)
}

// SessionCleaner removes expired parent and child sessions
type SessionCleaner interface {
	CleanupExpiredSessions(ctx context.Context) (int64, error)
}

// EventPruner removes sync events older than a retention window
type EventPruner interface {
	PruneEvents(ctx context.Context, retention time.Duration) (int64, error)
}

// RecurringRewardJob creates the next instance of every due recurring reward
type RecurringRewardJob struct {
	Rewards RewardGenerator
	Every   time.Duration
}

func (j *RecurringRewardJob) Name() string { return JobRecurringRewards }
func (j *RecurringRewardJob) Interval() time.Duration { return j.Every }

func (j *RecurringRewardJob) Run(ctx context.Context) error {
	n, err := j.Rewards.GenerateDueRewards(ctx)
	if n > 0 {
		log.Printf("Scheduler: generated %d recurring reward(s)", n)
	}
	return err
}

// AutoApprovalJob approves overdue pending completions
type AutoApprovalJob struct {
	Completions AutoApprover
	Every       time.Duration
}

func (j *AutoApprovalJob) Name() string { return JobAutoApproval }
func (j *AutoApprovalJob) Interval() time.Duration { return j.Every }

func (j *AutoApprovalJob) Run(ctx context.Context) error {
	n, err := j.Completions.AutoApproveDue(ctx)
	if n > 0 {
		log.Printf("Scheduler: auto-approved %d completion(s)", n)
	}
	return err
}

// SessionCleanupJob deletes expired sessions and, when Events is set, old
// sync events
type SessionCleanupJob struct {
	Sessions  SessionCleaner
	Events    EventPruner
	Retention time.Duration
	Every     time.Duration
}

func (j *SessionCleanupJob) Name() string { return JobSessionCleanup }
func (j *SessionCleanupJob) Interval() time.Duration { return j.Every }

func (j *SessionCleanupJob) Run(ctx context.Context) error {
	removed, err := j.Sessions.CleanupExpiredSessions(ctx)
	if removed > 0 {
		log.Printf("Scheduler: removed %d expired session(s)", removed)
	}
	if j.Events == nil {
		return err
	}

	pruned, pruneErr := j.Events.PruneEvents(ctx, j.Retention)
	if pruned > 0 {
		log.Printf("Scheduler: pruned %d sync event(s)", pruned)
	}
	return errors.Join(err, pruneErr)
}
