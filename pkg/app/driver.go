package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/flemzord/batchexec/internal/config"
	"github.com/flemzord/batchexec/internal/executor"
	"github.com/flemzord/batchexec/internal/ledger"
	"github.com/flemzord/batchexec/internal/reservoir"
	"github.com/flemzord/batchexec/pkg/batch"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/flemzord/batchexec/pkg/app")

// ErrWorkerLost is returned when a worker exits during a run. The jobs it
// held are gone, so the epoch can never drain.
var ErrWorkerLost = errors.New("app: worker exited during the run")

// drive runs every configured epoch.
func (rt *runtime) drive(ctx context.Context) error {
	switch rt.cfg.Run.Mode {
	case config.RunReservoir:
		res, err := reservoir.New[batch.Batch, batch.Batch](rt.cfg.Reservoir, rt.source, rt.exec, rt.logger)
		if err != nil {
			return err
		}
		for n := 1; n <= rt.cfg.Run.Epochs; n++ {
			if err := rt.epoch(ctx, n, func(ctx context.Context) (int, error) {
				return rt.reservoirEpoch(ctx, res)
			}); err != nil {
				return err
			}
		}
		rt.logger.Info("reservoir drained", "held", res.Len(), "rewinds", res.Rewinds())
		return nil
	default:
		for n := 1; n <= rt.cfg.Run.Epochs; n++ {
			if err := rt.epoch(ctx, n, func(ctx context.Context) (int, error) {
				return rt.streamEpoch(ctx, n)
			}); err != nil {
				return err
			}
		}
		return nil
	}
}

// epoch wraps one epoch in a span and records it in the ledger.
func (rt *runtime) epoch(ctx context.Context, n int, body func(context.Context) (int, error)) error {
	ctx, span := tracer.Start(ctx, "app.epoch", trace.WithAttributes(
		attribute.Int("app.epoch", n),
		attribute.String("app.mode", rt.cfg.Run.Mode),
	))
	defer span.End()

	start := time.Now()
	items, err := body(ctx)
	span.SetAttributes(attribute.Int("app.items", items))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	elapsed := time.Since(start)
	session := rt.exec.State().Session()
	rt.logger.Info("epoch complete", "epoch", n, "items", items, "session", session, "duration", elapsed)

	if rt.tracker != nil {
		if err := rt.tracker.Store.RecordEpoch(ctx, ledger.Epoch{
			RunID:    rt.tracker.RunID,
			Number:   n,
			Items:    items,
			Session:  session,
			Duration: elapsed,
			At:       time.Now().UTC(),
		}); err != nil {
			rt.logger.Error("recording epoch", "epoch", n, "error", err)
		}
	}
	return nil
}

// streamEpoch feeds one pass of the dataset through the executor and writes
// every result. When run.max_batches is reached the remaining work is
// abandoned with a session reset.
func (rt *runtime) streamEpoch(ctx context.Context, n int) (int, error) {
	if n > 1 {
		if err := rt.source.Rewind(); err != nil {
			return 0, err
		}
	}

	var (
		written    int
		pending    batch.Batch
		hasPending bool
		exhausted  bool
	)
	limit := rt.cfg.Run.MaxBatches
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		progressed := false
		if !exhausted && !hasPending {
			b, err := rt.source.Next(ctx)
			switch {
			case errors.Is(err, io.EOF):
				exhausted = true
			case err != nil:
				return written, err
			default:
				pending, hasPending = b, true
			}
		}
		if hasPending && rt.exec.Put(pending) {
			hasPending = false
			progressed = true
		}

		// Sampled before draining: once idle, every result is already in
		// the shared queue.
		idle := exhausted && !hasPending && rt.exec.IsIdle()
		for {
			out, ok := rt.exec.TryGet()
			if !ok {
				break
			}
			if err := rt.write(out); err != nil {
				return written, err
			}
			written++
			progressed = true
			if limit > 0 && written >= limit {
				rt.exec.Reset()
				return written, nil
			}
		}
		if idle {
			return written, nil
		}

		if !progressed {
			if err := rt.checkWorkers(); err != nil {
				return written, err
			}
			if err := sleep(ctx, rt.cfg.Run.PutRetry); err != nil {
				return written, err
			}
		}
	}
}

// reservoirEpoch writes one epoch sampled from the reservoir.
func (rt *runtime) reservoirEpoch(ctx context.Context, res *reservoir.Reservoir[batch.Batch, batch.Batch]) (int, error) {
	written := 0
	for out, err := range res.Epoch(ctx) {
		if err != nil {
			return written, err
		}
		if err := rt.write(out); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func (rt *runtime) write(b batch.Batch) error {
	if rt.sink == nil {
		return nil
	}
	return rt.sink.Write(b)
}

// checkWorkers fails the epoch when the executor stopped or lost a worker.
func (rt *runtime) checkWorkers() error {
	if rt.exec.Status() != executor.StatusRunning {
		return executor.ErrClosed
	}
	s := rt.exec.Stats()
	if s.Workers > 0 && s.WorkersAlive < s.Workers {
		return fmt.Errorf("%w: %d of %d workers alive", ErrWorkerLost, s.WorkersAlive, s.Workers)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
