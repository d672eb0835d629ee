package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// ProcessRunner runs each worker as a child OS process. The child must call
// ServeWorker with the same payload types; jobs and results cross the
// process boundary as msgpack frames on the child's stdin and stdout.
type ProcessRunner[In, Out any] struct {
	// Path is the worker executable. Defaults to the current executable.
	Path string
	Args []string
	// Env is appended to the parent's environment.
	Env []string
	// GOMAXPROCS, when positive, is passed to every child.
	GOMAXPROCS int
}

// Launch starts one child process and the goroutines that pump frames
// between its pipes and the worker queues.
func (r ProcessRunner[In, Out]) Launch(spec WorkerSpec[In, Out]) (Worker, error) {
	path := r.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("executor: resolving worker executable: %w", err)
		}
		path = exe
	}

	cmd := exec.Command(path, r.Args...)
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.Env = append(cmd.Env, spec.Info.environ()...)
	if r.GOMAXPROCS > 0 {
		cmd.Env = append(cmd.Env, "GOMAXPROCS="+strconv.Itoa(r.GOMAXPROCS))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("executor: worker %d stdin: %w", spec.Info.Index, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("executor: worker %d stdout: %w", spec.Info.Index, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("executor: worker %d stderr: %w", spec.Info.Index, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("executor: starting worker %d: %w", spec.Info.Index, err)
	}

	logger := spec.Logger
	if logger == nil {
		logger = slog.Default()
	}
	w := &processWorker[In, Out]{
		cmd:     cmd,
		done:    make(chan struct{}),
		credits: make(chan struct{}, max(1, cap(spec.In))),
		logger:  logger.With("worker", spec.Info.Index, "pid", cmd.Process.Pid),
	}
	w.alive.Store(true)

	var pipes sync.WaitGroup
	pipes.Add(2)
	go func() {
		defer pipes.Done()
		w.readResults(spec, stdout)
	}()
	go func() {
		defer pipes.Done()
		w.logStderr(stderr)
	}()
	go w.sendJobs(spec, stdin)
	go w.wait(spec.Abort, &pipes)

	w.logger.Debug("worker process started")
	return w, nil
}

type processWorker[In, Out any] struct {
	cmd   *exec.Cmd
	alive atomic.Bool
	done  chan struct{}
	// credits holds one token per job written to the child whose result
	// has not been forwarded yet. Its capacity matches the input queue, so
	// the pipes never hold more jobs than the queue Put inspects.
	credits chan struct{}
	logger  *slog.Logger
}

func (w *processWorker[In, Out]) PID() int              { return w.cmd.Process.Pid }
func (w *processWorker[In, Out]) Alive() bool           { return w.alive.Load() }
func (w *processWorker[In, Out]) Done() <-chan struct{} { return w.done }

func (w *processWorker[In, Out]) Kill() error {
	if err := w.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("executor: killing worker pid %d: %w", w.PID(), err)
	}
	return nil
}

// sendJobs forwards jobs to the child, taking a credit before each one.
// Closing stdin on abort lets the child exit on its own.
func (w *processWorker[In, Out]) sendJobs(spec WorkerSpec[In, Out], stdin io.WriteCloser) {
	defer stdin.Close()
	bw := bufio.NewWriter(stdin)
	for {
		select {
		case w.credits <- struct{}{}:
		case <-spec.Abort.Done():
			return
		case <-w.done:
			return
		}

		select {
		case <-spec.Abort.Done():
			return
		case <-w.done:
			return
		case job, ok := <-spec.In:
			if !ok {
				return
			}
			if err := writeFrame(bw, job); err != nil {
				w.logger.Error("sending job to worker", "error", err)
				return
			}
			if err := bw.Flush(); err != nil {
				w.logger.Error("sending job to worker", "error", err)
				return
			}
		}
	}
}

// readResults forwards the child's results to the output queue. After
// abort it keeps draining stdout so the child never blocks on a full pipe.
func (w *processWorker[In, Out]) readResults(spec WorkerSpec[In, Out], stdout io.Reader) {
	br := bufio.NewReader(stdout)
	for {
		var res Result[Out]
		if err := readFrame(br, &res); err != nil {
			if !errors.Is(err, io.EOF) && spec.Abort.Err() == nil {
				w.logger.Error("reading worker result", "error", err)
			}
			_, _ = io.Copy(io.Discard, br)
			return
		}
		select {
		case spec.Out <- res:
			w.release()
		case <-spec.Abort.Done():
			_, _ = io.Copy(io.Discard, br)
			return
		}
	}
}

func (w *processWorker[In, Out]) release() {
	select {
	case <-w.credits:
	default:
	}
}

// logStderr forwards the child's log lines at the level they carry.
func (w *processWorker[In, Out]) logStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "level=ERROR"):
			w.logger.Error("worker", "line", line)
		case strings.Contains(line, "level=WARN"):
			w.logger.Warn("worker", "line", line)
		case strings.Contains(line, "level=INFO"):
			w.logger.Info("worker", "line", line)
		default:
			w.logger.Debug("worker", "line", line)
		}
	}
}

// wait reaps the child once its output pipes are drained.
func (w *processWorker[In, Out]) wait(abort context.Context, pipes *sync.WaitGroup) {
	pipes.Wait()
	err := w.cmd.Wait()
	w.alive.Store(false)
	close(w.done)

	switch {
	case abort.Err() != nil:
		w.logger.Debug("worker process exited", "error", err)
	case err != nil:
		w.logger.Error("worker process exited unexpectedly", "error", err)
	default:
		w.logger.Warn("worker process exited before shutdown")
	}
}

// ServeWorker is the child side of ProcessRunner. It reads jobs from r,
// applies fn and writes results to w until r reaches EOF or ctx is
// cancelled. Wire ctx to SIGINT and SIGTERM so an interrupt stops the loop
// without emitting the job in progress, even while it waits for input.
func ServeWorker[In, Out any](
	ctx context.Context,
	r io.Reader,
	w io.Writer,
	info WorkerInfo,
	fn Transform[In, Out],
	logger *slog.Logger,
) error {
	if fn == nil {
		return ErrNoTransform
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("worker", info.Index)
	ctx = WithWorker(ctx, info)

	jobs := make(chan Job[In])
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go readJobs(r, jobs, readErr, stop)

	bw := bufio.NewWriter(w)
	for {
		var job Job[In]
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("executor: reading job: %w", err)
		case job = <-jobs:
		}
		if ctx.Err() != nil {
			return nil
		}

		res := apply(ctx, job, fn, logger)
		if ctx.Err() != nil {
			return nil
		}
		if err := writeFrame(bw, res); err != nil {
			return fmt.Errorf("executor: writing result: %w", err)
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("executor: writing result: %w", err)
		}
	}
}

// readJobs decodes frames from r so ServeWorker can wait on its input and
// its context together. A read blocked on an idle pipe is abandoned when
// ServeWorker returns.
func readJobs[In any](r io.Reader, jobs chan<- Job[In], readErr chan<- error, stop <-chan struct{}) {
	br := bufio.NewReader(r)
	for {
		var job Job[In]
		if err := readFrame(br, &job); err != nil {
			readErr <- err
			return
		}
		select {
		case jobs <- job:
		case <-stop:
			return
		}
	}
}
