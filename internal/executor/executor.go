// Package executor runs a transform over a stream of jobs on a pool of
// workers and delivers the results to a single consumer, trading result
// ordering for throughput.
//
// Jobs are tagged with the live session id when they are queued. Reset
// starts a new session; results of older sessions are discarded by the
// collectors when they surface, so a consumer can abandon a round of work
// without restarting the pool.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Status is the lifecycle state of an Executor.
type Status int32

const (
	StatusUnstarted Status = iota
	StatusRunning
	StatusClosing
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusUnstarted:
		return "unstarted"
	case StatusRunning:
		return "running"
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// killGrace bounds the wait for a killed worker process to be reaped.
const killGrace = time.Second

// Params configures a new Executor.
type Params[In, Out any] struct {
	Config    Config
	Transform Transform[In, Out]
	// Runner launches the workers. Defaults to GoroutineRunner.
	Runner   Runner[In, Out]
	Logger   *slog.Logger
	Observer Observer
}

// Executor is the pool controller. All methods are safe for concurrent use,
// but Put, Reset and the consumer methods are meant for a single caller.
type Executor[In, Out any] struct {
	cfg      Config
	fn       Transform[In, Out]
	runner   Runner[In, Out]
	logger   *slog.Logger
	observer Observer
	state    *State
	ownerPID int

	// results is the shared consumer queue. It lives as long as the executor.
	results chan Out

	mu           sync.Mutex
	status       atomic.Int32
	inputs       []chan Job[In]
	outputs      []chan Result[Out]
	workers      []Worker
	infos        []WorkerInfo
	collectors   sync.WaitGroup
	collectorsUp atomic.Int32

	// cursor is the round-robin position for Put. Only Put touches it.
	putMu  sync.Mutex
	cursor int
}

// New validates p, builds the executor and starts it with
// Config.StartTimeout.
func New[In, Out any](p Params[In, Out]) (*Executor[In, Out], error) {
	if p.Transform == nil {
		return nil, ErrNoTransform
	}
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	cfg := p.Config.withDefaults()

	runner := p.Runner
	if runner == nil {
		runner = GoroutineRunner[In, Out]{}
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := p.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	e := &Executor[In, Out]{
		cfg:      cfg,
		fn:       p.Transform,
		runner:   runner,
		logger:   logger.With("component", "executor"),
		observer: observer,
		state:    newState(),
		ownerPID: os.Getpid(),
		results:  make(chan Out, cfg.sharedQueueSize()),
	}
	if err := e.Start(cfg.StartTimeout); err != nil {
		return nil, err
	}
	return e, nil
}

// Start allocates the worker queues and launches the workers and the
// collectors. It is a no-op when the executor already runs. When
// WaitUntilStarted is set it waits up to timeout for every worker and
// collector to come up; missing the deadline is logged, not returned.
func (e *Executor[In, Out]) Start(timeout time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.Status() {
	case StatusRunning:
		return nil
	case StatusClosing, StatusClosed:
		return ErrClosed
	}

	e.state.rearm()

	if e.cfg.Workers == 0 {
		e.status.Store(int32(StatusRunning))
		e.logger.Info("executor started in synchronous mode")
		return nil
	}

	n := e.cfg.Workers
	e.inputs = make([]chan Job[In], n)
	e.outputs = make([]chan Result[Out], n)
	for i := range n {
		e.inputs[i] = make(chan Job[In], e.cfg.QueueSize)
		e.outputs[i] = make(chan Result[Out], e.cfg.QueueSize)
	}

	e.workers = make([]Worker, 0, n)
	e.infos = make([]WorkerInfo, 0, n)
	for i := range n {
		info := WorkerInfo{Index: i, Seed: int64(i)}
		w, err := e.runner.Launch(WorkerSpec[In, Out]{
			Info:      info,
			In:        e.inputs[i],
			Out:       e.outputs[i],
			Transform: e.fn,
			Abort:     e.state.Context(),
			Logger:    e.logger,
		})
		if err != nil {
			e.abortLaunch()
			return fmt.Errorf("executor: launching worker %d: %w", i, err)
		}
		info.PID = w.PID()
		e.workers = append(e.workers, w)
		e.infos = append(e.infos, info)
		e.observer.WorkerStarted(info)
	}

	for i := range e.cfg.Collectors {
		c := &collector[Out]{
			id:       i,
			state:    e.state,
			queues:   e.outputs,
			out:      e.results,
			wait:     e.cfg.WaitTime,
			observer: e.observer,
			logger:   e.logger,
		}
		e.collectors.Add(1)
		go func() {
			defer e.collectors.Done()
			e.collectorsUp.Add(1)
			defer e.collectorsUp.Add(-1)
			c.run()
		}()
	}

	e.status.Store(int32(StatusRunning))
	e.logger.Info("executor started",
		"workers", n,
		"collectors", e.cfg.Collectors,
		"queue_size", e.cfg.QueueSize,
		"shared_queue_size", cap(e.results),
	)

	if *e.cfg.WaitUntilStarted {
		e.waitStarted(timeout)
	}
	return nil
}

// abortLaunch tears down workers launched before a launch failure.
// Called with e.mu held.
func (e *Executor[In, Out]) abortLaunch() {
	e.state.Abort()
	for _, w := range e.workers {
		if err := w.Kill(); err != nil && !errors.Is(err, ErrCannotKill) {
			e.logger.Error("killing worker after failed start", "pid", w.PID(), "error", err)
		}
	}
	for _, w := range e.workers {
		select {
		case <-w.Done():
		case <-time.After(killGrace):
			e.logger.Error("worker did not exit after failed start", "pid", w.PID())
		}
	}
	e.workers = nil
	e.infos = nil
	e.inputs = nil
	e.outputs = nil
}

func (e *Executor[In, Out]) waitStarted(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for {
		alive := 0
		for _, w := range e.workers {
			if w.Alive() {
				alive++
			}
		}
		up := int(e.collectorsUp.Load())
		if alive == len(e.workers) && up == e.cfg.Collectors {
			return
		}
		if time.Now().After(deadline) {
			e.logger.Error("workers not started before deadline",
				"timeout", timeout,
				"workers_alive", alive,
				"workers", len(e.workers),
				"collectors_up", up,
			)
			return
		}
		time.Sleep(e.cfg.WaitTime)
	}
}

// Put submits payload tagged with the live session. It never blocks: it
// returns false, without any side effect, when every worker queue is full.
// With zero workers the transform runs synchronously and the result is in
// the shared queue when Put returns; Put then returns false only if the
// shared queue is full.
func (e *Executor[In, Out]) Put(payload In) bool {
	e.putMu.Lock()
	defer e.putMu.Unlock()

	if e.Status() != StatusRunning {
		return false
	}
	if e.cfg.Workers == 0 {
		return e.putSync(payload)
	}

	// Put is the only sender on the input queues, so a queue seen with room
	// accepts the job without blocking.
	n := len(e.inputs)
	for k := range n {
		i := (e.cursor + k) % n
		q := e.inputs[i]
		if len(q) == cap(q) {
			continue
		}
		// Count the job before a worker can account for it.
		e.state.queued.Add(1)
		q <- Job[In]{Session: e.state.Session(), Payload: payload}
		e.cursor = (i + 1) % n
		e.observer.JobQueued()
		return true
	}
	return false
}

// putSync runs payload inline. Called with putMu held; Put is the only
// producer of the shared queue in synchronous mode.
func (e *Executor[In, Out]) putSync(payload In) bool {
	if len(e.results) == cap(e.results) {
		return false
	}

	job := Job[In]{Session: e.state.Session(), Payload: payload}
	res := apply(context.Background(), job, e.fn, e.logger)

	e.state.queued.Add(1)
	e.observer.JobQueued()
	if res.Failed {
		e.state.failed.Add(1)
		e.state.processed.Add(1)
		e.observer.ResultDiscarded(DiscardFailed, 1)
		return true
	}

	e.results <- res.Payload
	e.state.delivered.Add(1)
	e.state.processed.Add(1)
	e.observer.ResultDelivered()
	return true
}

// IsFull reports whether every worker input queue is full. Always false
// with zero workers.
func (e *Executor[In, Out]) IsFull() bool {
	e.putMu.Lock()
	defer e.putMu.Unlock()
	if len(e.inputs) == 0 {
		return false
	}
	for _, q := range e.inputs {
		if len(q) < cap(q) {
			return false
		}
	}
	return true
}

// IsIdle reports whether every queued job has been accounted for.
func (e *Executor[In, Out]) IsIdle() bool {
	return e.state.idle()
}

// Reset discards the results waiting in the shared queue and starts a new
// session. Jobs already dispatched keep running; their results are
// discarded when they surface. Once Reset returns no result of an earlier
// session reaches the consumer.
func (e *Executor[In, Out]) Reset() {
	if e.Status() != StatusRunning {
		return
	}

	_, span := tracer.Start(context.Background(), "executor.reset")
	defer span.End()

	var flushed int
	session := e.state.bump(func() int {
		for {
			select {
			case _, ok := <-e.results:
				if !ok {
					return flushed
				}
				flushed++
			default:
				return flushed
			}
		}
	})

	span.SetAttributes(
		attribute.Int64("executor.session", session),
		attribute.Int("executor.flushed", flushed),
	)
	if flushed > 0 {
		e.observer.ResultDiscarded(DiscardFlushed, flushed)
	}
	e.observer.SessionReset(session)
	e.logger.Debug("session reset", "session", session, "flushed", flushed)
}

// Close stops the executor. Workers and collectors get timeout to exit;
// workers still running afterwards are killed. Close must be called from
// the process that created the executor; a call from any other process is
// logged and ignored. Calling Close again is a no-op.
func (e *Executor[In, Out]) Close(timeout time.Duration) error {
	if pid := os.Getpid(); pid != e.ownerPID {
		e.logger.Error("close called from a process that does not own the executor",
			"pid", pid, "owner_pid", e.ownerPID)
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.Status() {
	case StatusClosing, StatusClosed:
		return nil
	}
	e.status.Store(int32(StatusClosing))
	e.state.Abort()

	stopped := make(chan struct{})
	go func() {
		for _, w := range e.workers {
			<-w.Done()
		}
		e.collectors.Wait()
		close(stopped)
	}()

	var errs []error
	select {
	case <-stopped:
	case <-time.After(timeout):
		errs = e.kill(timeout)
	}

	// Collectors only wait on the abort signal; they are joined, never killed.
	e.collectors.Wait()

	e.putMu.Lock()
	close(e.results)
	e.inputs = nil
	e.outputs = nil
	e.putMu.Unlock()
	e.status.Store(int32(StatusClosed))

	e.logger.Info("executor closed",
		"queued", e.state.queued.Load(),
		"processed", e.state.processed.Load(),
		"delivered", e.state.delivered.Load(),
	)
	return errors.Join(errs...)
}

// kill force-stops the workers still running after the close deadline.
func (e *Executor[In, Out]) kill(timeout time.Duration) []error {
	var lingering []Worker
	for _, w := range e.workers {
		select {
		case <-w.Done():
		default:
			lingering = append(lingering, w)
		}
	}
	if len(lingering) == 0 {
		return nil
	}

	e.logger.Error("workers did not stop before deadline, killing them",
		"timeout", timeout, "lingering", len(lingering))

	var errs []error
	for _, w := range lingering {
		if err := w.Kill(); err != nil {
			if errors.Is(err, ErrCannotKill) {
				e.logger.Error("worker cannot be force-stopped", "pid", w.PID())
				continue
			}
			errs = append(errs, err)
			continue
		}
		select {
		case <-w.Done():
		case <-time.After(killGrace):
			e.logger.Error("killed worker was not reaped", "pid", w.PID())
		}
	}
	return errs
}

// Results returns the shared consumer queue. It is closed by Close.
func (e *Executor[In, Out]) Results() <-chan Out {
	return e.results
}

// Get waits for the next result until ctx is done. It returns ErrClosed
// once the executor is closed and the queue drained.
func (e *Executor[In, Out]) Get(ctx context.Context) (Out, error) {
	var zero Out
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case out, ok := <-e.results:
		if !ok {
			return zero, ErrClosed
		}
		return out, nil
	}
}

// TryGet returns the next result if one is ready.
func (e *Executor[In, Out]) TryGet() (Out, bool) {
	select {
	case out, ok := <-e.results:
		return out, ok
	default:
		var zero Out
		return zero, false
	}
}

// Status returns the lifecycle state.
func (e *Executor[In, Out]) Status() Status {
	return Status(e.status.Load())
}

// State returns the state shared with the workers and collectors.
func (e *Executor[In, Out]) State() *State {
	return e.state
}

// Config returns the effective configuration, defaults applied.
func (e *Executor[In, Out]) Config() Config {
	return e.cfg
}

// WorkerStatus describes one worker.
type WorkerStatus struct {
	WorkerInfo
	Alive bool `json:"alive"`
}

// Workers returns the status of every worker.
func (e *Executor[In, Out]) Workers() []WorkerStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]WorkerStatus, len(e.workers))
	for i, w := range e.workers {
		out[i] = WorkerStatus{WorkerInfo: e.infos[i], Alive: w.Alive()}
	}
	return out
}

// Stats is a point-in-time snapshot of the executor counters.
type Stats struct {
	Status       string `json:"status"`
	Session      int64  `json:"session"`
	Queued       int64  `json:"queued"`
	Processed    int64  `json:"processed"`
	Delivered    int64  `json:"delivered"`
	Stale        int64  `json:"stale"`
	Failed       int64  `json:"failed"`
	Flushed      int64  `json:"flushed"`
	Resets       int64  `json:"resets"`
	// Pending counts results waiting in the shared queue.
	Pending      int    `json:"pending"`
	Workers      int    `json:"workers"`
	WorkersAlive int    `json:"workers_alive"`
	Idle         bool   `json:"idle"`
}

// Stats returns a snapshot of the counters. Counters are read one by one,
// so a snapshot taken under load may be slightly inconsistent.
func (e *Executor[In, Out]) Stats() Stats {
	workers := e.Workers()
	alive := 0
	for _, w := range workers {
		if w.Alive {
			alive++
		}
	}
	s := e.state
	return Stats{
		Status:       e.Status().String(),
		Session:      s.Session(),
		Queued:       s.queued.Load(),
		Processed:    s.processed.Load(),
		Delivered:    s.delivered.Load(),
		Stale:        s.stale.Load(),
		Failed:       s.failed.Load(),
		Flushed:      s.flushed.Load(),
		Resets:       s.resets.Load(),
		Pending:      len(e.results),
		Workers:      e.cfg.Workers,
		WorkersAlive: alive,
		Idle:         s.idle(),
	}
}
