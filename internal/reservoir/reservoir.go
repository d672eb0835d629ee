// Package reservoir keeps a bounded pool of transformed items that is
// refreshed in the background while a consumer iterates over it.
//
// Slow transforms keep running on the executor while each epoch samples
// what is already loaded. Finished items replace the oldest ones, and the
// reservoir survives from one epoch to the next.
package reservoir

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"
)

const defaultWaitTime = 5 * time.Millisecond

// Source produces the items fed to the pool. Next returns io.EOF when the
// source is exhausted; Rewind restarts it.
type Source[T any] interface {
	Next(ctx context.Context) (T, error)
	Rewind() error
}

// Pool is the part of the executor the reservoir drives.
type Pool[In, Out any] interface {
	Put(job In) bool
	TryGet() (Out, bool)
}

// Config sizes the reservoir.
type Config struct {
	// MaxSamples bounds the reservoir. The oldest items are evicted first.
	MaxSamples int `yaml:"max_samples"`
	// MinSamples is the number of items an epoch waits for before it
	// starts. Defaults to 1.
	MinSamples int `yaml:"min_samples"`
	// MaxSamplesPerEpoch stops an epoch early. Zero means no limit.
	MaxSamplesPerEpoch int `yaml:"max_samples_per_epoch"`
	// Sampler is "sequential" or "random".
	Sampler string `yaml:"sampler"`
	Seed    uint64 `yaml:"seed"`
	// WaitTime is the poll interval while waiting for MinSamples.
	WaitTime time.Duration `yaml:"wait_time"`
}

func (c *Config) defaults() {
	if c.MinSamples == 0 {
		c.MinSamples = 1
	}
	if c.WaitTime <= 0 {
		c.WaitTime = defaultWaitTime
	}
}

// Validate checks the sizing constraints.
func (c Config) Validate() error {
	var errs []error
	if c.MaxSamples < 1 {
		errs = append(errs, fmt.Errorf("reservoir: max_samples must be >= 1, got %d", c.MaxSamples))
	}
	if c.MinSamples < 0 {
		errs = append(errs, fmt.Errorf("reservoir: min_samples must be >= 0, got %d", c.MinSamples))
	}
	if c.MinSamples > c.MaxSamples {
		errs = append(errs, fmt.Errorf("reservoir: min_samples (%d) exceeds max_samples (%d)", c.MinSamples, c.MaxSamples))
	}
	if c.MaxSamplesPerEpoch < 0 {
		errs = append(errs, fmt.Errorf("reservoir: max_samples_per_epoch must be >= 0, got %d", c.MaxSamplesPerEpoch))
	}
	return errors.Join(errs...)
}

// Reservoir feeds a pool from a source and keeps its latest results.
// It is not safe for concurrent use.
type Reservoir[In, Out any] struct {
	cfg     Config
	source  Source[In]
	pool    Pool[In, Out]
	sampler Sampler
	logger  *slog.Logger

	items []Out

	// pending holds a source item the pool refused.
	pending    In
	hasPending bool

	rewinds int
}

// New builds a reservoir over pool.
func New[In, Out any](cfg Config, source Source[In], pool Pool[In, Out], logger *slog.Logger) (*Reservoir[In, Out], error) {
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sampler, err := NewSampler(cfg.Sampler, cfg.Seed)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reservoir[In, Out]{
		cfg:     cfg,
		source:  source,
		pool:    pool,
		sampler: sampler,
		logger:  logger.With("component", "reservoir"),
		items:   make([]Out, 0, cfg.MaxSamples),
	}, nil
}

// Len returns the number of items currently held.
func (r *Reservoir[In, Out]) Len() int { return len(r.items) }

// Rewinds returns how many times the source was restarted.
func (r *Reservoir[In, Out]) Rewinds() int { return r.rewinds }

// Epoch iterates over a snapshot of the reservoir, in sampler order. It
// first waits until MinSamples items are loaded. The pool keeps being fed
// and drained between items; newly loaded items show up in the next epoch.
// An error stops the iteration after being yielded.
func (r *Reservoir[In, Out]) Epoch(ctx context.Context) iter.Seq2[Out, error] {
	return func(yield func(Out, error) bool) {
		var zero Out
		if err := r.refresh(ctx); err != nil {
			yield(zero, err)
			return
		}
		if err := r.waitMin(ctx); err != nil {
			yield(zero, err)
			return
		}

		snapshot := make([]Out, len(r.items))
		copy(snapshot, r.items)
		r.sampler.Init(len(snapshot))

		for generated := 0; r.cfg.MaxSamplesPerEpoch == 0 || generated < r.cfg.MaxSamplesPerEpoch; generated++ {
			if err := r.refresh(ctx); err != nil {
				yield(zero, err)
				return
			}
			i, ok := r.sampler.Next()
			if !ok {
				return
			}
			if !yield(snapshot[i], nil) {
				return
			}
		}
	}
}

// refresh tops up the pool from the source and moves finished results
// into the reservoir.
func (r *Reservoir[In, Out]) refresh(ctx context.Context) error {
	if err := r.fill(ctx); err != nil {
		return err
	}
	for {
		out, ok := r.pool.TryGet()
		if !ok {
			return nil
		}
		r.add(out)
	}
}

// fill submits source items until the pool refuses one. On exhaustion the
// source is rewound and filling stops for this round.
func (r *Reservoir[In, Out]) fill(ctx context.Context) error {
	for {
		if !r.hasPending {
			item, err := r.source.Next(ctx)
			if errors.Is(err, io.EOF) {
				r.rewinds++
				r.logger.Debug("source exhausted, rewinding", "rewinds", r.rewinds)
				if err := r.source.Rewind(); err != nil {
					return fmt.Errorf("reservoir: rewinding source: %w", err)
				}
				return nil
			}
			if err != nil {
				return fmt.Errorf("reservoir: reading source: %w", err)
			}
			r.pending, r.hasPending = item, true
		}
		if !r.pool.Put(r.pending) {
			return nil
		}
		var zero In
		r.pending, r.hasPending = zero, false
	}
}

func (r *Reservoir[In, Out]) add(out Out) {
	if len(r.items) == r.cfg.MaxSamples {
		copy(r.items, r.items[1:])
		r.items = r.items[:len(r.items)-1]
	}
	r.items = append(r.items, out)
}

func (r *Reservoir[In, Out]) waitMin(ctx context.Context) error {
	if len(r.items) >= r.cfg.MinSamples {
		return nil
	}
	r.logger.Debug("waiting for reservoir", "have", len(r.items), "min", r.cfg.MinSamples)

	ticker := time.NewTicker(r.cfg.WaitTime)
	defer ticker.Stop()
	for len(r.items) < r.cfg.MinSamples {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := r.refresh(ctx); err != nil {
			return err
		}
	}
	return nil
}
