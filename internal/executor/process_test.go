package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"testing"
	"time"
)

const envHelperWorker = "BATCHEXEC_TEST_HELPER_WORKER"

// TestMain turns the test binary into a worker process when a test
// re-executes it through ProcessRunner.
func TestMain(m *testing.M) {
	if os.Getenv(envHelperWorker) == "1" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		err := ServeWorker(ctx, os.Stdin, os.Stdout, WorkerInfoFromEnv(), helperTransform, logger)
		stop()
		if err != nil {
			logger.Error("worker failed", "error", err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// helperTransform fails on 5 and is slow from 100 up.
func helperTransform(_ context.Context, v int) (int, error) {
	switch {
	case v == 5:
		return 0, errBoom
	case v >= 100:
		time.Sleep(20 * time.Millisecond)
	}
	return v + 1, nil
}

func newProcessExecutor(t *testing.T, cfg Config) *Executor[int, int] {
	t.Helper()
	cfg.WaitTime = time.Millisecond
	e, err := New(Params[int, int]{
		Config:    cfg,
		Transform: helperTransform,
		Runner: ProcessRunner[int, int]{
			Path:       os.Args[0],
			Env:        []string{envHelperWorker + "=1"},
			GOMAXPROCS: 1,
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() {
		if err := e.Close(5 * time.Second); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return e
}

func TestProcessRunner_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns worker processes")
	}
	t.Parallel()

	e := newProcessExecutor(t, Config{Workers: 2})

	got := run(t, e, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	slices.Sort(got)
	if want := []int{1, 2, 3, 4, 5, 7, 8, 9, 10}; !slices.Equal(got, want) {
		t.Errorf("results = %v, want %v", got, want)
	}

	stats := e.Stats()
	if stats.Failed != 1 || stats.Processed != 10 {
		t.Errorf("stats = %+v, want 1 failure and 10 processed", stats)
	}
	for _, w := range e.Workers() {
		if w.PID == os.Getpid() || w.PID == 0 {
			t.Errorf("worker %d pid = %d, want a child process", w.Index, w.PID)
		}
		if !w.Alive {
			t.Errorf("worker %d not alive", w.Index)
		}
	}
}

func TestProcessRunner_PutFullMutatesNothing(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns worker processes")
	}
	t.Parallel()

	e := newProcessExecutor(t, Config{Workers: 1, QueueSize: 2, PinQueueSize: 1})

	// Nobody drains the results, so the pipeline must saturate and stay
	// saturated: shared queue, collector, output queue, jobs written to the
	// child and the input queue.
	const bound = 1 + 1 + 2 + 2 + 2
	accepted := 0
	until := time.Now().Add(time.Second)
	for time.Now().Before(until) {
		if e.Put(1) {
			accepted++
			continue
		}
		time.Sleep(100 * time.Microsecond)
	}
	if accepted > bound {
		t.Fatalf("accepted %d jobs with queue_size=2, want at most %d", accepted, bound)
	}

	before := e.Stats()
	if !e.IsFull() {
		t.Errorf("IsFull() = false after saturating the pool: %+v", before)
	}
	if e.Put(1) {
		t.Fatal("Put() = true on a saturated pool")
	}
	if after := e.Stats(); after.Queued != before.Queued {
		t.Errorf("Queued changed from %d to %d on a rejected Put", before.Queued, after.Queued)
	}
}

func TestProcessRunner_ResetDiscardsStaleResults(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns worker processes")
	}
	t.Parallel()

	e := newProcessExecutor(t, Config{Workers: 2})

	deadline := time.Now().Add(10 * time.Second)
	for v := 100; v < 105; v++ {
		for !e.Put(v) {
			if time.Now().After(deadline) {
				t.Fatalf("Put(%d) kept failing", v)
			}
			time.Sleep(time.Millisecond)
		}
	}
	e.Reset()

	got := run(t, e, []int{0, 1, 2, 3, 4})
	slices.Sort(got)
	if want := []int{1, 2, 3, 4, 5}; !slices.Equal(got, want) {
		t.Errorf("results = %v, want %v", got, want)
	}

	stats := e.Stats()
	if stats.Session != 1 {
		t.Errorf("Session = %d, want 1", stats.Session)
	}
	if discarded := stats.Stale + stats.Flushed; discarded != 5 {
		t.Errorf("stale + flushed = %d, want 5: %+v", discarded, stats)
	}
	if stats.Processed != 10 {
		t.Errorf("Processed = %d, want 10", stats.Processed)
	}
}

func TestProcessRunner_CloseStopsChildren(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns worker processes")
	}
	t.Parallel()

	e, err := New(Params[int, int]{
		Config:    Config{Workers: 2, WaitTime: time.Millisecond},
		Transform: helperTransform,
		Runner: ProcessRunner[int, int]{
			Path: os.Args[0],
			Env:  []string{envHelperWorker + "=1"},
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	run(t, e, []int{1, 2, 3})

	if err := e.Close(5 * time.Second); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	for _, w := range e.Workers() {
		if w.Alive {
			t.Errorf("worker %d (pid %d) still alive after Close", w.Index, w.PID)
		}
	}
}

func TestProcessRunner_LaunchMissingBinary(t *testing.T) {
	t.Parallel()

	_, err := New(Params[int, int]{
		Config:    Config{Workers: 1},
		Transform: helperTransform,
		Runner:    ProcessRunner[int, int]{Path: "/nonexistent/batchexec-worker"},
	})
	if err == nil {
		t.Fatal("New() with a missing worker binary succeeded")
	}
}

func TestServeWorker(t *testing.T) {
	t.Parallel()

	var in bytes.Buffer
	for i, v := range []int{1, 5, 9} {
		if err := writeFrame(&in, Job[int]{Session: int64(i), Payload: v}); err != nil {
			t.Fatalf("writeFrame() error: %v", err)
		}
	}

	var out bytes.Buffer
	info := WorkerInfo{Index: 3, Seed: 3}
	if err := ServeWorker(context.Background(), &in, &out, info, helperTransform, nil); err != nil {
		t.Fatalf("ServeWorker() error: %v", err)
	}

	want := []Result[int]{
		{Session: 0, Payload: 2},
		{Session: 1, Failed: true, Err: errBoom.Error()},
		{Session: 2, Payload: 10},
	}
	for i, w := range want {
		var got Result[int]
		if err := readFrame(&out, &got); err != nil {
			t.Fatalf("readFrame(%d) error: %v", i, err)
		}
		if got != w {
			t.Errorf("result %d = %+v, want %+v", i, got, w)
		}
	}
	var extra Result[int]
	if err := readFrame(&out, &extra); !errors.Is(err, io.EOF) {
		t.Errorf("trailing readFrame() error = %v, want EOF", err)
	}
}

func TestServeWorker_CancelledContext(t *testing.T) {
	t.Parallel()

	var in bytes.Buffer
	if err := writeFrame(&in, Job[int]{Payload: 1}); err != nil {
		t.Fatalf("writeFrame() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	if err := ServeWorker(ctx, &in, &out, WorkerInfo{}, helperTransform, nil); err != nil {
		t.Fatalf("ServeWorker() error: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("ServeWorker emitted %d bytes after cancellation", out.Len())
	}
}

func TestServeWorker_InterruptWhileIdle(t *testing.T) {
	t.Parallel()

	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- ServeWorker(ctx, r, io.Discard, WorkerInfo{}, helperTransform, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("ServeWorker() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeWorker still waiting for input after cancellation")
	}
}

func TestServeWorker_NoTransform(t *testing.T) {
	t.Parallel()

	err := ServeWorker[int, int](context.Background(), &bytes.Buffer{}, io.Discard, WorkerInfo{}, nil, nil)
	if !errors.Is(err, ErrNoTransform) {
		t.Errorf("ServeWorker() error = %v, want ErrNoTransform", err)
	}
}

func TestWorkerInfoFromEnv(t *testing.T) {
	info := WorkerInfo{Index: 4, Seed: 4}
	for _, kv := range info.environ() {
		k, v, _ := strings.Cut(kv, "=")
		t.Setenv(k, v)
	}

	got := WorkerInfoFromEnv()
	if got.Index != 4 || got.Seed != 4 || got.PID != os.Getpid() {
		t.Errorf("WorkerInfoFromEnv() = %+v", got)
	}
}
