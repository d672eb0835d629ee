package sqlite

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/flemzord/batchexec/internal/core"
	"github.com/flemzord/batchexec/internal/executor"
	"github.com/flemzord/batchexec/internal/ledger"
	"gopkg.in/yaml.v3"
)

func newTestModule(t *testing.T) *Module {
	t.Helper()

	dir := t.TempDir()
	m := &Module{config: Config{Path: filepath.Join(dir, "test.db")}}

	ctx := core.NewAppContext(slog.Default(), dir)
	if err := m.Provision(ctx); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	t.Cleanup(func() {
		_ = m.Stop(context.Background())
	})
	return m
}

func TestModule_RegistersService(t *testing.T) {
	dir := t.TempDir()
	ctx := core.NewAppContext(slog.Default(), dir)

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("busy_timeout: 1000"), &node); err != nil {
		t.Fatal(err)
	}
	m := &Module{}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := m.Provision(ctx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	if m.config.Path != filepath.Join(dir, defaultDBFile) {
		t.Errorf("Path = %q, want default under data dir", m.config.Path)
	}
	if m.config.BusyTimeout != 1000 {
		t.Errorf("BusyTimeout = %d, want 1000", m.config.BusyTimeout)
	}
	store, ok := core.ServiceAs[ledger.Store](ctx, core.ServiceLedgerStore)
	if !ok || store == nil {
		t.Fatal("ledger.store service not registered")
	}
}

func TestStore_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestModule(t).Store()

	started := time.Now().Add(-time.Minute)
	older := ledger.Run{ID: ledger.NewRunID(), Status: ledger.StatusRunning, Mode: "stream", StartedAt: started}
	newer := ledger.Run{ID: ledger.NewRunID(), Status: ledger.StatusRunning, Mode: "reservoir", Transform: "cast", Workers: 4, StartedAt: time.Now()}
	for _, r := range []ledger.Run{older, newer} {
		if err := s.BeginRun(ctx, r); err != nil {
			t.Fatalf("BeginRun: %v", err)
		}
	}

	for n := 1; n <= 3; n++ {
		if err := s.RecordEpoch(ctx, ledger.Epoch{
			RunID: newer.ID, Number: n, Items: 10, Session: int64(n), Duration: time.Second, At: time.Now(),
		}); err != nil {
			t.Fatalf("RecordEpoch(%d): %v", n, err)
		}
	}

	final := executor.Stats{Status: "closed", Queued: 30, Processed: 30, Delivered: 29, Failed: 1}
	if err := s.FinishRun(ctx, newer.ID, ledger.StatusCompleted, "", final); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := s.Run(ctx, newer.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.Status != ledger.StatusCompleted || got.Epochs != 3 || got.Workers != 4 || got.Transform != "cast" {
		t.Errorf("Run = %+v", got)
	}
	if got.Stats != final {
		t.Errorf("Stats = %+v, want %+v", got.Stats, final)
	}
	if got.FinishedAt.IsZero() || !got.StartedAt.Equal(newer.StartedAt.UTC()) {
		t.Errorf("times: started %v finished %v", got.StartedAt, got.FinishedAt)
	}

	runs, err := s.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != newer.ID || runs[1].ID != older.ID {
		t.Errorf("Runs order wrong: %+v", runs)
	}

	epochs, err := s.Epochs(ctx, newer.ID)
	if err != nil {
		t.Fatalf("Epochs: %v", err)
	}
	if len(epochs) != 3 || epochs[2].Number != 3 || epochs[0].Duration != time.Second {
		t.Errorf("Epochs = %+v", epochs)
	}
}

func TestStore_Snapshots(t *testing.T) {
	ctx := context.Background()
	s := newTestModule(t).Store()

	id := ledger.NewRunID()
	if err := s.BeginRun(ctx, ledger.Run{ID: id, Status: ledger.StatusRunning, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	tr := &ledger.Tracker{Store: s, RunID: id}
	for i := range 5 {
		tr.Stats = func() executor.Stats { return executor.Stats{Queued: int64(i)} }
		if err := tr.Snapshot(ctx); err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
	}

	snaps, err := s.Snapshots(ctx, id, 2)
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if len(snaps) != 2 || snaps[0].Stats.Queued != 4 || snaps[1].Stats.Queued != 3 {
		t.Errorf("Snapshots = %+v, want the latest two newest first", snaps)
	}
}

func TestStore_PruneSnapshots(t *testing.T) {
	ctx := context.Background()
	s := newTestModule(t).Store()

	id := ledger.NewRunID()
	if err := s.BeginRun(ctx, ledger.Run{ID: id, Status: ledger.StatusRunning, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-48 * time.Hour)
	for _, at := range []time.Time{old, old.Add(time.Minute), time.Now()} {
		if err := s.RecordSnapshot(ctx, ledger.Snapshot{RunID: id, At: at}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.PruneSnapshots(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneSnapshots: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned = %d, want 2", n)
	}
	snaps, err := s.Snapshots(ctx, id, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 {
		t.Errorf("remaining = %d, want 1", len(snaps))
	}
}

func TestStore_UnknownRun(t *testing.T) {
	ctx := context.Background()
	s := newTestModule(t).Store()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"run", func() error { _, err := s.Run(ctx, "missing"); return err }},
		{"finish", func() error { return s.FinishRun(ctx, "missing", ledger.StatusFailed, "", executor.Stats{}) }},
		{"epoch", func() error { return s.RecordEpoch(ctx, ledger.Epoch{RunID: "missing", Number: 1}) }},
		{"snapshot", func() error { return s.RecordSnapshot(ctx, ledger.Snapshot{RunID: "missing"}) }},
	}
	for _, tt := range tests {
		if err := tt.fn(); !errors.Is(err, ledger.ErrRunNotFound) {
			t.Errorf("%s: got %v, want ErrRunNotFound", tt.name, err)
		}
	}
}
