package executor

import (
	"fmt"
	"time"
)

const (
	defaultQueueSize    = 2
	defaultPinQueueSize = 3
	defaultWaitTime     = 20 * time.Millisecond
	defaultStartTimeout = 10 * time.Second
	defaultCloseTimeout = 10 * time.Second
)

// Config holds the executor sizing and timing knobs.
type Config struct {
	// Workers is the number of workers. Zero runs every job synchronously
	// inside Put.
	Workers int `yaml:"workers"`

	// QueueSize is the capacity of each worker's input and output queue.
	QueueSize int `yaml:"queue_size"`

	// PinQueueSize is the per-worker share of the consumer-facing queue.
	// The shared queue holds PinQueueSize × max(1, Workers) results.
	PinQueueSize int `yaml:"pin_queue_size"`

	// Collectors is the number of result collector goroutines.
	// Defaults to max(1, Workers/2).
	Collectors int `yaml:"collectors"`

	// WaitTime is how long workers and collectors sleep when they find no work.
	WaitTime time.Duration `yaml:"wait_time"`

	// WaitUntilStarted makes Start block until every worker and collector
	// is alive. Defaults to true.
	WaitUntilStarted *bool `yaml:"wait_until_started"`

	StartTimeout time.Duration `yaml:"start_timeout"`
	CloseTimeout time.Duration `yaml:"close_timeout"`
}

// withDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.PinQueueSize <= 0 {
		c.PinQueueSize = defaultPinQueueSize
	}
	if c.Collectors <= 0 {
		c.Collectors = max(1, c.Workers/2)
	}
	if c.WaitTime <= 0 {
		c.WaitTime = defaultWaitTime
	}
	if c.WaitUntilStarted == nil {
		wait := true
		c.WaitUntilStarted = &wait
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = defaultStartTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = defaultCloseTimeout
	}
	return c
}

// Validate reports configuration values that cannot be defaulted.
func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.Collectors < 0 {
		return fmt.Errorf("%w: collectors must be >= 0, got %d", ErrInvalidConfig, c.Collectors)
	}
	return nil
}

func (c Config) sharedQueueSize() int {
	return c.PinQueueSize * max(1, c.Workers)
}
