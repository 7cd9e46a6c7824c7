// Package cron provides a job scheduler for periodic background tasks.
// Modules contribute job sets that the scheduler swaps wholesale on reload.
package cron

import "context"

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job (used for logging and dedup).
	Name() string

	// Schedule returns a 5-field cron expression (e.g., "*/5 * * * *").
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}

type funcJob struct {
	name     string
	schedule string
	run      func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Schedule() string              { return j.schedule }
func (j funcJob) Run(ctx context.Context) error { return j.run(ctx) }

// NewJob wraps a function as a Job.
func NewJob(name, schedule string, run func(ctx context.Context) error) Job {
	return funcJob{name: name, schedule: schedule, run: run}
}
