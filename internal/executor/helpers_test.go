package executor

import (
	"sync/atomic"
)

// stubRunner launches workers that never exit on their own.
type stubRunner struct {
	failAt    int
	launchErr error
	killErr   error
	workers   []*stubWorker
}

func (r *stubRunner) Launch(spec WorkerSpec[int, int]) (Worker, error) {
	if r.launchErr != nil && spec.Info.Index == r.failAt {
		return nil, r.launchErr
	}
	w := &stubWorker{pid: 1000 + spec.Info.Index, done: make(chan struct{}), killErr: r.killErr}
	r.workers = append(r.workers, w)
	return w, nil
}

type stubWorker struct {
	pid     int
	done    chan struct{}
	killErr error
	killed  atomic.Bool
}

func (w *stubWorker) PID() int              { return w.pid }
func (w *stubWorker) Alive() bool           { return !w.killed.Load() }
func (w *stubWorker) Done() <-chan struct{} { return w.done }

func (w *stubWorker) Kill() error {
	if w.killErr != nil {
		return w.killErr
	}
	if w.killed.CompareAndSwap(false, true) {
		close(w.done)
	}
	return nil
}

type recordingObserver struct {
	queued    atomic.Int32
	delivered atomic.Int32
	failed    atomic.Int32
	stale     atomic.Int32
	flushed   atomic.Int32
	resets    atomic.Int32
	started   atomic.Int32
}

func (o *recordingObserver) JobQueued()       { o.queued.Add(1) }
func (o *recordingObserver) ResultDelivered() { o.delivered.Add(1) }

func (o *recordingObserver) ResultDiscarded(reason DiscardReason, n int) {
	switch reason {
	case DiscardFailed:
		o.failed.Add(int32(n))
	case DiscardStale:
		o.stale.Add(int32(n))
	case DiscardFlushed:
		o.flushed.Add(int32(n))
	}
}

func (o *recordingObserver) SessionReset(_ int64)       { o.resets.Add(1) }
func (o *recordingObserver) WorkerStarted(_ WorkerInfo) { o.started.Add(1) }
