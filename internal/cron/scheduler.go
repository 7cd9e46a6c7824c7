package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// parser accepts standard 5-field cron expressions.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateJobs checks that every job in the set has a name, a unique name
// within the set, and a parseable schedule. Callers validate before
// Replace so a swap never fails halfway.
func ValidateJobs(jobs []Job) error {
	seen := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		name := j.Name()
		if name == "" {
			return fmt.Errorf("cron: job name must not be empty")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("cron: duplicate job name %q", name)
		}
		seen[name] = struct{}{}
		if _, err := parser.Parse(j.Schedule()); err != nil {
			return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
		}
	}
	return nil
}

// Scheduler manages periodic job execution using cron expressions. Jobs are
// registered in per-module sets that can be swapped while the scheduler is
// running. Each job is protected by a per-job mutex to prevent parallel
// execution of the same job (uses TryLock — atomic, no race).
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string][]cron.EntryID
	names   map[string]string
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs run only after Start().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string][]cron.EntryID),
		names:   make(map[string]string),
		logger:  logger.With("component", "cron"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Replace swaps the job set registered under the given module key. The set
// is validated in full before any existing entry is touched, so a failed
// Replace leaves the previous set running.
func (s *Scheduler) Replace(module string, jobs []Job) error {
	if err := ValidateJobs(jobs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range jobs {
		if owner, taken := s.names[j.Name()]; taken && owner != module {
			return fmt.Errorf("cron: job name %q already registered by %s", j.Name(), owner)
		}
	}

	s.removeLocked(module)

	ids := make([]cron.EntryID, 0, len(jobs))
	for _, j := range jobs {
		job := j
		lock := &sync.Mutex{}
		sched, err := parser.Parse(job.Schedule())
		if err != nil {
			return fmt.Errorf("cron: invalid schedule for job %q: %w", job.Name(), err)
		}
		id := s.cron.Schedule(sched, cron.FuncJob(func() {
			// TryLock is atomic — no race between check and acquire.
			// If the previous tick is still running, skip this one.
			if !lock.TryLock() {
				s.logger.Warn("job still running, skipping tick", "job", job.Name())
				return
			}
			defer lock.Unlock()

			s.logger.Debug("job started", "job", job.Name())
			if err := job.Run(s.ctx); err != nil {
				s.logger.Error("job failed", "job", job.Name(), "error", err)
			} else {
				s.logger.Debug("job completed", "job", job.Name())
			}
		}))
		ids = append(ids, id)
		s.names[job.Name()] = module
	}
	s.entries[module] = ids
	return nil
}

// Remove drops every job registered under the given module key.
func (s *Scheduler) Remove(module string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(module)
}

func (s *Scheduler) removeLocked(module string) {
	for _, id := range s.entries[module] {
		s.cron.Remove(id)
	}
	delete(s.entries, module)
	for name, owner := range s.names {
		if owner == module {
			delete(s.names, name)
		}
	}
}

// JobCount returns the number of registered jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}

// Start begins executing registered jobs. Jobs registered after Start are
// picked up on their next tick.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.names))
}

// Stop gracefully shuts down the scheduler, waiting for in-flight jobs.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	// Wait for running jobs to complete.
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}
