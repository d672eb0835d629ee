// Package app provides the entry point of the batchexec binary: it loads the
// configuration, wires the executor, telemetry and modules together and
// drives the epochs.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/flemzord/batchexec/internal/config"
	"github.com/flemzord/batchexec/internal/redact"
)

// RunParams configures a run.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level

	// Logger replaces the stderr text logger built from LogLevel.
	Logger *slog.Logger

	// WorkerPath and WorkerArgs start worker processes in process mode.
	// They default to the current executable and
	// "worker --config <ConfigPath>".
	WorkerPath string
	WorkerArgs []string
}

// Run loads the configuration, runs every configured epoch and shuts down.
// Cancelling ctx interrupts the run; the interruption is recorded in the
// ledger and Run returns nil.
func Run(ctx context.Context, params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	var handler slog.Handler
	if params.Logger != nil {
		handler = params.Logger.Handler()
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: params.LogLevel,
		})
	}
	logger := NewLogger(cfg, handler)
	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	logger.Info("starting batchexec",
		"version", params.Version,
		"config", cfgPath,
		"mode", cfg.Run.Mode,
		"workers", cfg.Executor.Workers,
	)

	rt, err := wire(ctx, wireParams{
		cfg:        cfg,
		cfgPath:    cfgPath,
		dataDir:    dataDir,
		logger:     logger,
		workerPath: params.WorkerPath,
		workerArgs: params.WorkerArgs,
	})
	if err != nil {
		return err
	}

	runErr := rt.drive(ctx)
	status, msg := ledgerStatus(runErr)
	closeErr := rt.close(status, msg)

	if interrupted(runErr) {
		logger.Info("run interrupted")
		return closeErr
	}
	if runErr != nil {
		return errors.Join(runErr, closeErr)
	}
	return closeErr
}

// NewLogger wraps handler so that the secrets of cfg never reach the log
// output.
func NewLogger(cfg *config.Config, handler slog.Handler) *slog.Logger {
	r := redact.New()
	for _, node := range cfg.Modules {
		r.AddYAML(&node)
	}
	r.AddYAML(&cfg.Transform.Params)
	r.AddURL(cfg.Telemetry.OTLPEndpoint)
	return slog.New(redact.NewHandler(handler, r))
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/batchexec/batchexec.yaml → ~/.config/batchexec/batchexec.yaml → ./batchexec.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "batchexec", "batchexec.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "batchexec", "batchexec.yaml"))
	}

	candidates = append(candidates, "batchexec.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/batchexec if set, otherwise ~/.local/share/batchexec per the XDG spec.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "batchexec")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "batchexec")
}
