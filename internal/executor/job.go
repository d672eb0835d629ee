package executor

import (
	"context"
	"os"
	"strconv"
)

// Transform turns one payload into another. It runs concurrently on every
// worker and must not rely on state shared between invocations.
type Transform[In, Out any] func(ctx context.Context, in In) (Out, error)

// Job is a payload tagged with the session that was live when it was queued.
type Job[In any] struct {
	Session int64 `msgpack:"s"`
	Payload In    `msgpack:"p"`
}

// Result is a transformed payload tagged with its job's session. Failed is
// the failure marker: the transform returned an error or panicked, and
// Payload holds the zero value.
type Result[Out any] struct {
	Session int64  `msgpack:"s"`
	Payload Out    `msgpack:"p"`
	Failed  bool   `msgpack:"f"`
	Err     string `msgpack:"e,omitempty"`
}

// WorkerInfo identifies the worker running a transform.
type WorkerInfo struct {
	Index int   `json:"index"`
	Seed  int64 `json:"seed"`
	PID   int   `json:"pid"`
}

// Environment variables carrying WorkerInfo into a worker process.
const (
	EnvWorkerIndex = "BATCHEXEC_WORKER_INDEX"
	EnvWorkerSeed  = "BATCHEXEC_WORKER_SEED"
)

// WorkerInfoFromEnv reads the WorkerInfo a ProcessRunner passed to this process.
func WorkerInfoFromEnv() WorkerInfo {
	info := WorkerInfo{PID: os.Getpid()}
	if v, err := strconv.Atoi(os.Getenv(EnvWorkerIndex)); err == nil {
		info.Index = v
	}
	if v, err := strconv.ParseInt(os.Getenv(EnvWorkerSeed), 10, 64); err == nil {
		info.Seed = v
	}
	return info
}

func (w WorkerInfo) environ() []string {
	return []string{
		EnvWorkerIndex + "=" + strconv.Itoa(w.Index),
		EnvWorkerSeed + "=" + strconv.FormatInt(w.Seed, 10),
	}
}

type workerKey struct{}

// WithWorker returns a context carrying info.
func WithWorker(ctx context.Context, info WorkerInfo) context.Context {
	return context.WithValue(ctx, workerKey{}, info)
}

// WorkerFromContext returns the WorkerInfo of the worker running the
// current transform. ok is false for synchronous execution.
func WorkerFromContext(ctx context.Context) (WorkerInfo, bool) {
	info, ok := ctx.Value(workerKey{}).(WorkerInfo)
	return info, ok
}
