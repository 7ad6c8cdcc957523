// Package scheduler runs the server's periodic background jobs.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"habitheroes/internal/clock"
)

// Job is one unit of periodic work
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// Scheduler ticks each job on its own interval until stopped
type Scheduler struct {
	jobs []Job
	clk  clock.Clock

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastRun map[string]time.Time
}

// New creates a scheduler for jobs
func New(clk clock.Clock, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:    jobs,
		clk:     clk,
		lastRun: make(map[string]time.Time),
	}
}

// Jobs returns the registered job names in order
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.Name())
	}
	return names
}

// Start launches one goroutine per job. Jobs with a non-positive interval
// are only reachable through RunOnce.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		if job.Interval() <= 0 {
			log.Printf("Scheduler: %s disabled", job.Name())
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.run(ctx, job); err != nil {
				log.Printf("Scheduler: %s failed: %v", job.Name(), err)
			}
		}
	}
}

// Stop cancels every job loop and waits for the running ticks to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// RunOnce runs the named job now, on the caller's goroutine
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.Name() == name {
			return s.run(ctx, job)
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

// LastRun reports when the named job last finished without error
func (s *Scheduler) LastRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastRun[name]
	return t, ok
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	if err := job.Run(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastRun[job.Name()] = s.clk.Now()
	s.mu.Unlock()
	return nil
}
