package executor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/flemzord/batchexec/internal/executor")

// Work is the worker loop. It takes jobs from in, applies fn and emits one
// result per job to out, until ctx is cancelled or in is closed.
//
// A transform error or panic never stops the loop: it produces a result
// carrying the failure marker so that queued and processed counts match.
// When ctx is cancelled the loop returns at once, without emitting a result
// for the job in progress.
func Work[In, Out any](
	ctx context.Context,
	info WorkerInfo,
	in <-chan Job[In],
	out chan<- Result[Out],
	fn Transform[In, Out],
	logger *slog.Logger,
) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("worker", info.Index)
	ctx = WithWorker(ctx, info)

	logger.Debug("worker started", "pid", info.PID)
	defer logger.Debug("worker stopped", "pid", info.PID)

	for {
		// Abort wins over a ready job.
		if ctx.Err() != nil {
			return
		}

		var job Job[In]
		select {
		case <-ctx.Done():
			return
		case j, ok := <-in:
			if !ok {
				return
			}
			job = j
		}

		res := apply(ctx, job, fn, logger)
		if ctx.Err() != nil {
			return
		}

		// Back-pressure: wait for room in the output queue.
		select {
		case out <- res:
		case <-ctx.Done():
			return
		}
	}
}

// apply runs fn once on job and converts errors and panics into the
// failure marker.
func apply[In, Out any](ctx context.Context, job Job[In], fn Transform[In, Out], logger *slog.Logger) (res Result[Out]) {
	ctx, span := tracer.Start(ctx, "executor.transform",
		trace.WithAttributes(attribute.Int64("executor.session", job.Session)),
	)
	defer span.End()
	if info, ok := WorkerFromContext(ctx); ok {
		span.SetAttributes(attribute.Int("executor.worker", info.Index))
	}

	res.Session = job.Session

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrTransformPanic, r)
			var zero Out
			res.Payload = zero
			res.Failed = true
			res.Err = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			logger.Error("transform panicked, job aborted",
				"session", job.Session,
				"error", err,
				"stack", string(debug.Stack()),
			)
		}
	}()

	out, err := fn(ctx, job.Payload)
	if err != nil {
		res.Failed = true
		res.Err = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transform failed")
		logger.Error("transform failed, job aborted", "session", job.Session, "error", err)
		return res
	}
	res.Payload = out
	return res
}
