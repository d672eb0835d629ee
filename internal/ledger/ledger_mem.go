package ledger

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/flemzord/batchexec/internal/executor"
)

// InMemoryStore is a thread-safe, in-memory implementation of Store.
type InMemoryStore struct {
	mu        sync.RWMutex
	runs      []Run
	epochs    map[string][]Epoch
	snapshots map[string][]Snapshot
}

// NewInMemoryStore creates a new empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		epochs:    make(map[string][]Epoch),
		snapshots: make(map[string][]Snapshot),
	}
}

// Compile-time interface check.
var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) BeginRun(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *InMemoryStore) FinishRun(_ context.Context, id, status, errMsg string, stats executor.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return ErrRunNotFound
	}
	s.runs[i].Status = status
	s.runs[i].Error = errMsg
	s.runs[i].Stats = stats
	s.runs[i].FinishedAt = now()
	return nil
}

func (s *InMemoryStore) RecordEpoch(_ context.Context, epoch Epoch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(epoch.RunID)
	if i < 0 {
		return ErrRunNotFound
	}
	s.runs[i].Epochs = max(s.runs[i].Epochs, epoch.Number)
	s.epochs[epoch.RunID] = append(s.epochs[epoch.RunID], epoch)
	return nil
}

func (s *InMemoryStore) RecordSnapshot(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index(snap.RunID) < 0 {
		return ErrRunNotFound
	}
	s.snapshots[snap.RunID] = append(s.snapshots[snap.RunID], snap)
	return nil
}

func (s *InMemoryStore) Runs(_ context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.runs)
	slices.Reverse(out)
	return truncate(out, limit), nil
}

func (s *InMemoryStore) Run(_ context.Context, id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.index(id)
	if i < 0 {
		return Run{}, ErrRunNotFound
	}
	return s.runs[i], nil
}

func (s *InMemoryStore) Epochs(_ context.Context, runID string) ([]Epoch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.epochs[runID]), nil
}

func (s *InMemoryStore) Snapshots(_ context.Context, runID string, limit int) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.snapshots[runID])
	slices.Reverse(out)
	return truncate(out, limit), nil
}

func (s *InMemoryStore) PruneSnapshots(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for id, snaps := range s.snapshots {
		kept := slices.DeleteFunc(snaps, func(sn Snapshot) bool { return sn.At.Before(cutoff) })
		pruned += len(snaps) - len(kept)
		s.snapshots[id] = kept
	}
	return pruned, nil
}

func (s *InMemoryStore) index(id string) int {
	return slices.IndexFunc(s.runs, func(r Run) bool { return r.ID == id })
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
