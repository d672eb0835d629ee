package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/batchexec/internal/executor"
)

// StatsSource exposes the executor counters.
type StatsSource interface {
	Stats() executor.Stats
}

// SnapshotRecorder persists a stats snapshot of the run in progress.
// *ledger.Tracker implements it.
type SnapshotRecorder interface {
	Snapshot(ctx context.Context) error
}

// SnapshotPruner is the subset of ledger.Store needed for retention.
type SnapshotPruner interface {
	PruneSnapshots(ctx context.Context, cutoff time.Time) (int, error)
}

// StatsSnapshotJob logs the executor counters and, when a recorder is set,
// stores them in the run ledger.
type StatsSnapshotJob struct {
	Source       StatsSource
	Recorder     SnapshotRecorder // nil = log only
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "@every 30s"
}

// Compile-time interface check.
var _ Job = (*StatsSnapshotJob)(nil)

// Name implements Job.
func (j *StatsSnapshotJob) Name() string { return "stats_snapshot" }

// Schedule implements Job.
func (j *StatsSnapshotJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "@every 30s"
}

// Run implements Job.
func (j *StatsSnapshotJob) Run(ctx context.Context) error {
	s := j.Source.Stats()
	j.Logger.Info("executor stats",
		"status", s.Status,
		"session", s.Session,
		"queued", s.Queued,
		"processed", s.Processed,
		"delivered", s.Delivered,
		"stale", s.Stale,
		"failed", s.Failed,
		"workers_alive", s.WorkersAlive,
	)
	if j.Recorder == nil {
		return nil
	}
	if err := j.Recorder.Snapshot(ctx); err != nil {
		return fmt.Errorf("cron: recording snapshot: %w", err)
	}
	return nil
}

// SnapshotPruneJob deletes ledger snapshots older than Retention.
type SnapshotPruneJob struct {
	Store        SnapshotPruner
	Retention    time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 * * * *"
}

// Compile-time interface check.
var _ Job = (*SnapshotPruneJob)(nil)

// Name implements Job.
func (j *SnapshotPruneJob) Name() string { return "snapshot_prune" }

// Schedule implements Job.
func (j *SnapshotPruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run implements Job.
func (j *SnapshotPruneJob) Run(ctx context.Context) error {
	pruned, err := j.Store.PruneSnapshots(ctx, time.Now().Add(-j.Retention))
	if err != nil {
		return fmt.Errorf("cron: pruning snapshots: %w", err)
	}
	if pruned > 0 {
		j.Logger.Info("cron: pruned ledger snapshots", "count", pruned, "retention", j.Retention)
	}
	return nil
}
