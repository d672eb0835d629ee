// Package ledger records batchexec runs: when they started and ended, the
// epochs they completed and periodic executor stats snapshots.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/flemzord/batchexec/internal/executor"
	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run ID is unknown to the store.
var ErrRunNotFound = errors.New("ledger: run not found")

// Run statuses.
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusInterrupted = "interrupted"
)

// Run is one invocation of the epoch driver.
type Run struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	Mode       string         `json:"mode"`
	Transform  string         `json:"transform"`
	Workers    int            `json:"workers"`
	Epochs     int            `json:"epochs"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitzero"`
	Error      string         `json:"error,omitempty"`
	Stats      executor.Stats `json:"stats"`
}

// Epoch summarizes one completed epoch of a run.
type Epoch struct {
	RunID    string        `json:"run_id"`
	Number   int           `json:"number"`
	Items    int           `json:"items"`
	Session  int64         `json:"session"`
	Duration time.Duration `json:"duration_ns"`
	At       time.Time     `json:"at"`
}

// Snapshot is an executor stats sample taken while a run is in progress.
type Snapshot struct {
	RunID string         `json:"run_id"`
	At    time.Time      `json:"at"`
	Stats executor.Stats `json:"stats"`
}

// Store persists runs. Implementations must be safe for concurrent use.
type Store interface {
	// BeginRun records a new run.
	BeginRun(ctx context.Context, run Run) error

	// FinishRun sets the final status, error and stats of a run.
	FinishRun(ctx context.Context, id, status, errMsg string, stats executor.Stats) error

	RecordEpoch(ctx context.Context, epoch Epoch) error
	RecordSnapshot(ctx context.Context, snap Snapshot) error

	// Runs returns up to limit runs, most recent first.
	Runs(ctx context.Context, limit int) ([]Run, error)

	// Run returns a single run or ErrRunNotFound.
	Run(ctx context.Context, id string) (Run, error)

	Epochs(ctx context.Context, runID string) ([]Epoch, error)

	// Snapshots returns up to limit snapshots of a run, most recent first.
	Snapshots(ctx context.Context, runID string, limit int) ([]Snapshot, error)

	// PruneSnapshots deletes snapshots taken before cutoff and reports how
	// many were removed.
	PruneSnapshots(ctx context.Context, cutoff time.Time) (int, error)
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Tracker binds a store to the run in progress.
type Tracker struct {
	Store Store
	RunID string
	Stats func() executor.Stats
}

// Snapshot records the current executor stats for the tracked run.
func (t *Tracker) Snapshot(ctx context.Context) error {
	return t.Store.RecordSnapshot(ctx, Snapshot{
		RunID: t.RunID,
		At:    time.Now().UTC(),
		Stats: t.Stats(),
	})
}

func now() time.Time { return time.Now().UTC() }
