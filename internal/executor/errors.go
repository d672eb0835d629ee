package executor

import "errors"

var (
	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("executor: closed")

	// ErrInvalidConfig is returned when the executor configuration is unusable.
	ErrInvalidConfig = errors.New("executor: invalid config")

	// ErrNoTransform is returned when no transform is supplied.
	ErrNoTransform = errors.New("executor: transform is required")

	// ErrTransformPanic marks a result whose transform panicked.
	ErrTransformPanic = errors.New("executor: transform panicked")

	// ErrFrameTooLarge is returned when a wire frame exceeds maxFrameSize.
	ErrFrameTooLarge = errors.New("executor: frame too large")

	// ErrCannotKill is returned when a worker cannot be forcibly terminated.
	ErrCannotKill = errors.New("executor: worker cannot be force-stopped")
)
