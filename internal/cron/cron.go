// Package cron runs periodic background jobs next to a batchexec run, such
// as executor stats snapshots and ledger retention.
package cron

import "context"

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job (used for logging and dedup).
	Name() string

	// Schedule returns a 5-field cron expression ("*/5 * * * *") or a
	// descriptor ("@every 30s", "@hourly").
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}
