package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Answers collects what `batchexec config init` asks the user.
type Answers struct {
	Workers     int
	Mode        string
	Transform   string
	Dataset     string
	Output      string
	RunMode     string
	Metrics     bool
	GatewayBind string // empty disables the admin gateway
	LedgerPath  string // empty disables the run ledger
}

// Init builds a starter configuration from answers.
func Init(a Answers) (*Config, error) {
	cfg := &Config{
		Version: "1",
		Executor: ExecutorConfig{
			Mode: a.Mode,
		},
		Transform: TransformConfig{Name: a.Transform},
		Dataset:   DatasetConfig{Path: a.Dataset},
		Output:    OutputConfig{Path: a.Output},
		Run:       RunConfig{Mode: a.RunMode},
		Telemetry: TelemetryConfig{Metrics: a.Metrics},
		Modules:   make(map[string]yaml.Node),
	}
	cfg.Executor.Workers = a.Workers
	if cfg.Run.Mode == RunReservoir {
		cfg.Reservoir.MaxSamples = 64
		cfg.Reservoir.MinSamples = 8
	}

	if a.GatewayBind != "" {
		if err := cfg.setModule("gateway.http", map[string]string{"bind": a.GatewayBind}); err != nil {
			return nil, err
		}
	}
	if a.LedgerPath != "" {
		if err := cfg.setModule("ledger.sqlite", map[string]string{"path": a.LedgerPath}); err != nil {
			return nil, err
		}
		if err := cfg.setModule("cron.scheduler", map[string]string{"stats_schedule": "@every 30s"}); err != nil {
			return nil, err
		}
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

func (c *Config) setModule(id string, v any) error {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return fmt.Errorf("config: encoding module %s: %w", id, err)
	}
	c.Modules[id] = node
	return nil
}

// Write marshals cfg to path, creating parent directories. It refuses to
// overwrite an existing file.
func Write(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshalling: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("config: creating %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return f.Close()
}
