package executor

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

// WorkerSpec is everything a Runner needs to launch one worker.
type WorkerSpec[In, Out any] struct {
	Info      WorkerInfo
	In        <-chan Job[In]
	Out       chan<- Result[Out]
	Transform Transform[In, Out]
	// Abort is cancelled when the executor raises its abort signal.
	Abort  context.Context
	Logger *slog.Logger
}

// Worker is a handle on a running worker.
type Worker interface {
	PID() int
	Alive() bool
	// Done is closed once the worker has exited.
	Done() <-chan struct{}
	// Kill forcibly terminates the worker. It returns ErrCannotKill when
	// the worker kind has no such primitive.
	Kill() error
}

// Runner launches workers. Launch must return without waiting for the
// worker to finish.
type Runner[In, Out any] interface {
	Launch(spec WorkerSpec[In, Out]) (Worker, error)
}

// GoroutineRunner runs each worker as a goroutine of the current process.
type GoroutineRunner[In, Out any] struct{}

// Launch starts Work in a new goroutine.
func (GoroutineRunner[In, Out]) Launch(spec WorkerSpec[In, Out]) (Worker, error) {
	w := &goroutineWorker{done: make(chan struct{})}
	w.alive.Store(true)
	go func() {
		defer close(w.done)
		defer w.alive.Store(false)
		Work(spec.Abort, spec.Info, spec.In, spec.Out, spec.Transform, spec.Logger)
	}()
	return w, nil
}

type goroutineWorker struct {
	alive atomic.Bool
	done  chan struct{}
}

func (w *goroutineWorker) PID() int              { return os.Getpid() }
func (w *goroutineWorker) Alive() bool           { return w.alive.Load() }
func (w *goroutineWorker) Done() <-chan struct{} { return w.done }
func (w *goroutineWorker) Kill() error           { return ErrCannotKill }
