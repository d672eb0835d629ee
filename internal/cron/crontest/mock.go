// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/batchexec/internal/cron"
	"github.com/flemzord/batchexec/internal/executor"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu       sync.Mutex
	calls    int
	lastCall time.Time
}

// Compile-time interface check.
var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.lastCall = time.Now()
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastCall returns the time of the last Run call.
func (m *MockJob) LastCall() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCall
}

// StatsSource returns fixed stats and counts calls.
type StatsSource struct {
	Value executor.Stats
	Calls atomic.Int32
}

// Stats implements cron.StatsSource.
func (s *StatsSource) Stats() executor.Stats {
	s.Calls.Add(1)
	return s.Value
}

// Recorder counts snapshots.
type Recorder struct {
	Err   error
	Calls atomic.Int32
}

// Snapshot implements cron.SnapshotRecorder.
func (r *Recorder) Snapshot(_ context.Context) error {
	r.Calls.Add(1)
	return r.Err
}

// Pruner is a test double for cron.SnapshotPruner.
type Pruner struct {
	PruneFunc  func(cutoff time.Time) int
	PruneCalls atomic.Int32
}

// PruneSnapshots implements cron.SnapshotPruner.
func (p *Pruner) PruneSnapshots(_ context.Context, cutoff time.Time) (int, error) {
	p.PruneCalls.Add(1)
	if p.PruneFunc != nil {
		return p.PruneFunc(cutoff), nil
	}
	return 0, nil
}
