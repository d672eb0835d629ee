package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/flemzord/batchexec/internal/ledger"
	"github.com/flemzord/batchexec/modules/ledger/sqlite"
)

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "runs.db")

	store, err := sqlite.Open(ctx, sqlite.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id := ledger.NewRunID()
	if err := store.BeginRun(ctx, ledger.Run{ID: id, Status: ledger.StatusRunning, StartedAt: time.Now()}); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store, err = sqlite.Open(ctx, sqlite.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = store.Close() }()

	run, err := store.Run(ctx, id)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != ledger.StatusRunning {
		t.Errorf("Status = %q, want running", run.Status)
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := sqlite.Open(context.Background(), sqlite.Config{
		Path:        filepath.Join(t.TempDir(), "x.db"),
		BusyTimeout: -1,
	})
	if err == nil {
		t.Fatal("expected error for negative busy_timeout")
	}
}
