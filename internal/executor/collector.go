package executor

import (
	"log/slog"
	"time"
)

// collector moves results from the worker output queues into the shared
// consumer queue. Several collectors run at once; each sweeps every output
// queue in round-robin order without coordinating with the others.
type collector[Out any] struct {
	id       int
	state    *State
	queues   []chan Result[Out]
	out      chan Out
	wait     time.Duration
	observer Observer
	logger   *slog.Logger
}

func (c *collector[Out]) run() {
	c.logger.Debug("collector started", "collector", c.id)
	defer c.logger.Debug("collector stopped", "collector", c.id)

	timer := time.NewTimer(c.wait)
	timer.Stop()
	defer timer.Stop()

	// Start collectors at different queues so they do not all contend on
	// the same one.
	cursor := c.id % len(c.queues)

	var (
		pending Result[Out]
		holding bool
	)
	for {
		if c.state.Aborted() {
			return
		}

		if !holding {
			res, ok := c.sweep(&cursor)
			if !ok {
				if !c.sleep(timer) {
					return
				}
				continue
			}
			pending, holding = res, true
		}

		if pending.Failed {
			c.state.failed.Add(1)
			c.observer.ResultDiscarded(DiscardFailed, 1)
			c.state.processed.Add(1)
			holding = false
			continue
		}

		delivered, stale := c.state.deliver(pending.Session, func() bool {
			select {
			case c.out <- pending.Payload:
				return true
			default:
				return false
			}
		})
		switch {
		case stale:
			c.state.stale.Add(1)
			c.observer.ResultDiscarded(DiscardStale, 1)
			c.state.processed.Add(1)
			holding = false
		case delivered:
			c.state.delivered.Add(1)
			c.observer.ResultDelivered()
			c.state.processed.Add(1)
			holding = false
		default:
			// Shared queue full: the consumer sets the pace, keep the result.
			if !c.sleep(timer) {
				return
			}
		}
	}
}

// sweep tries each output queue once, starting at cursor.
func (c *collector[Out]) sweep(cursor *int) (Result[Out], bool) {
	n := len(c.queues)
	for range n {
		q := c.queues[*cursor]
		*cursor = (*cursor + 1) % n
		select {
		case res, ok := <-q:
			if ok {
				return res, true
			}
		default:
		}
	}
	return Result[Out]{}, false
}

// sleep waits for the wait interval. It returns false if the abort signal
// was raised meanwhile.
func (c *collector[Out]) sleep(timer *time.Timer) bool {
	timer.Reset(c.wait)
	select {
	case <-c.state.Context().Done():
		return false
	case <-timer.C:
		return true
	}
}
