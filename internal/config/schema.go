// Package config handles YAML configuration loading, environment variable
// expansion, defaults and structural validation for batchexec.
package config

import (
	"time"

	"github.com/flemzord/batchexec/internal/executor"
	"github.com/flemzord/batchexec/internal/reservoir"
	"gopkg.in/yaml.v3"
)

// Executor modes.
const (
	ModeProcess   = "process"
	ModeGoroutine = "goroutine"
)

// Run modes.
const (
	RunStream    = "stream"
	RunReservoir = "reservoir"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Executor  ExecutorConfig  `yaml:"executor"`
	Transform TransformConfig `yaml:"transform"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Output    OutputConfig    `yaml:"output"`
	Run       RunConfig       `yaml:"run"`
	Reservoir reservoir.Config `yaml:"reservoir"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "gateway.http").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// ExecutorConfig extends the executor sizing with how workers are hosted.
type ExecutorConfig struct {
	executor.Config `yaml:",inline"`

	// Mode is "process" (child OS processes) or "goroutine".
	Mode string `yaml:"mode"`

	// WorkerGOMAXPROCS caps the threads of each worker process.
	WorkerGOMAXPROCS int `yaml:"worker_gomaxprocs"`
}

// TransformConfig names a registered transform and its parameters. Then
// chains further transforms after it.
type TransformConfig struct {
	Name   string            `yaml:"name"`
	Params yaml.Node         `yaml:"params,omitempty"`
	Then   []TransformConfig `yaml:"then,omitempty"`
}

// DatasetConfig locates the JSONL input.
type DatasetConfig struct {
	Path string `yaml:"path"`
}

// OutputConfig locates the JSONL output. An empty path discards results.
type OutputConfig struct {
	Path string `yaml:"path,omitempty"`
}

// RunConfig drives the epoch loop.
type RunConfig struct {
	Epochs int `yaml:"epochs"`
	// Mode is "stream" or "reservoir".
	Mode string `yaml:"mode"`
	// PutRetry is the pause before retrying a refused Put.
	PutRetry time.Duration `yaml:"put_retry"`
	// MaxBatches ends a stream epoch once that many results were written.
	// Work still in flight is abandoned with a session reset. Zero means
	// the whole dataset.
	MaxBatches int `yaml:"max_batches,omitempty"`
}

// TelemetryConfig toggles metrics and tracing.
type TelemetryConfig struct {
	Metrics bool `yaml:"metrics"`
	// OTLPEndpoint enables span export over OTLP/HTTP when set.
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	ServiceName  string `yaml:"service_name,omitempty"`
}

const defaultPutRetry = 5 * time.Millisecond

// ApplyDefaults fills the zero values that have a documented default.
// Executor and reservoir sizing is defaulted by their own packages.
func (c *Config) ApplyDefaults() {
	if c.Executor.Mode == "" {
		c.Executor.Mode = ModeProcess
	}
	if c.Run.Epochs == 0 {
		c.Run.Epochs = 1
	}
	if c.Run.Mode == "" {
		c.Run.Mode = RunStream
	}
	if c.Run.PutRetry <= 0 {
		c.Run.PutRetry = defaultPutRetry
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "batchexec"
	}
}
