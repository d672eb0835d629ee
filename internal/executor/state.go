package executor

import (
	"context"
	"sync"
	"sync/atomic"
)

// State is the state shared by the controller, the workers and the
// collectors. It is created before any worker is launched and outlives them.
//
// The session id and the counters are the only values written from several
// goroutines at once; all of them are atomics.
type State struct {
	session   atomic.Int64
	queued    atomic.Int64
	processed atomic.Int64

	delivered atomic.Int64
	stale     atomic.Int64
	failed    atomic.Int64
	flushed   atomic.Int64
	resets    atomic.Int64

	// deliverMu is read-held by a collector while it checks a result's
	// session and pushes it, and write-held by Reset while it flushes the
	// shared queue and bumps the session.
	deliverMu sync.RWMutex

	abortMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func newState() *State {
	s := &State{}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Session returns the live session id.
func (s *State) Session() int64 { return s.session.Load() }

// Context returns a context cancelled when the abort signal is raised.
func (s *State) Context() context.Context {
	s.abortMu.Lock()
	defer s.abortMu.Unlock()
	return s.ctx
}

// Abort raises the abort signal. Safe to call more than once.
func (s *State) Abort() {
	s.abortMu.Lock()
	defer s.abortMu.Unlock()
	s.cancel()
}

// Aborted reports whether the abort signal is raised.
func (s *State) Aborted() bool {
	return s.Context().Err() != nil
}

// rearm clears a raised abort signal. Only called before workers launch.
func (s *State) rearm() {
	s.abortMu.Lock()
	defer s.abortMu.Unlock()
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
}

// deliver runs push if session is still live. push must not block.
func (s *State) deliver(session int64, push func() bool) (delivered, stale bool) {
	s.deliverMu.RLock()
	defer s.deliverMu.RUnlock()
	if session != s.session.Load() {
		return false, true
	}
	return push(), false
}

// bump flushes via drain and starts a new session, returning its id.
func (s *State) bump(drain func() int) int64 {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.flushed.Add(int64(drain()))
	s.resets.Add(1)
	return s.session.Add(1)
}

func (s *State) idle() bool {
	return s.processed.Load() == s.queued.Load()
}
