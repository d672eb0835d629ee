package gateway

import (
	"bytes"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/batchexec/internal/executor"
	"github.com/flemzord/batchexec/internal/ledger"
	"gopkg.in/yaml.v3"
)

// fakeController is a Controller backed by fixed stats.
type fakeController struct {
	mu      sync.Mutex
	stats   executor.Stats
	workers []executor.WorkerStatus
	resets  atomic.Int64
}

func (f *fakeController) Stats() executor.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeController) Workers() []executor.WorkerStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workers
}

func (f *fakeController) Reset() {
	f.resets.Add(1)
	f.mu.Lock()
	f.stats.Session++
	f.stats.Resets++
	f.mu.Unlock()
}

func runningController(workers, alive int) *fakeController {
	f := &fakeController{
		stats: executor.Stats{
			Status:       "running",
			Session:      1,
			Workers:      workers,
			WorkersAlive: alive,
		},
	}
	for i := range workers {
		f.workers = append(f.workers, executor.WorkerStatus{
			WorkerInfo: executor.WorkerInfo{Index: i, PID: 1000 + i},
			Alive:      i < alive,
		})
	}
	return f
}

type fakeScheduler map[string]time.Time

func (f fakeScheduler) Next() map[string]time.Time { return f }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// handlerGateway returns a Gateway suitable for calling handlers directly.
func handlerGateway(exec Controller, runs ledger.Store) *Gateway {
	g := &Gateway{
		logger:    discardLogger(),
		metrics:   &Metrics{},
		startedAt: time.Now(),
		exec:      exec,
		runs:      runs,
	}
	g.config.defaults()
	return g
}

// mustYAMLNode parses YAML text into a *yaml.Node for Configure calls.
func mustYAMLNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		t.Fatalf("YAML parse: %v", err)
	}
	if len(node.Content) > 0 {
		return node.Content[0]
	}
	return &node
}
