package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flemzord/batchexec/internal/core"
	"github.com/flemzord/batchexec/internal/transform"
)

// Validate checks the structural validity of a Config: the version, the
// executor and run modes, the transform names, the reservoir sizing when the
// reservoir drives the run, and that every module ID is registered.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if err := cfg.Executor.Config.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: executor: %w", err))
	}
	switch cfg.Executor.Mode {
	case ModeProcess, ModeGoroutine:
	default:
		errs = append(errs, fmt.Errorf("config: executor.mode must be %q or %q, got %q", ModeProcess, ModeGoroutine, cfg.Executor.Mode))
	}
	if cfg.Executor.WorkerGOMAXPROCS < 0 {
		errs = append(errs, fmt.Errorf("config: executor.worker_gomaxprocs must be >= 0, got %d", cfg.Executor.WorkerGOMAXPROCS))
	}

	errs = append(errs, validateTransform(cfg.Transform)...)

	if cfg.Dataset.Path == "" {
		errs = append(errs, errors.New("config: dataset.path is required"))
	}

	if cfg.Run.Epochs < 1 {
		errs = append(errs, fmt.Errorf("config: run.epochs must be >= 1, got %d", cfg.Run.Epochs))
	}
	if cfg.Run.MaxBatches < 0 {
		errs = append(errs, fmt.Errorf("config: run.max_batches must be >= 0, got %d", cfg.Run.MaxBatches))
	}
	switch cfg.Run.Mode {
	case RunStream:
	case RunReservoir:
		if err := cfg.Reservoir.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("config: run.mode must be %q or %q, got %q", RunStream, RunReservoir, cfg.Run.Mode))
	}

	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, unknownModule(id))
		}
	}

	return errors.Join(errs...)
}

// unknownModule names the registered modules sharing the namespace of id,
// which catches typos such as "ledger.sqllite".
func unknownModule(id string) error {
	ns := core.ModuleID(id).Namespace()
	siblings := core.GetModulesByNamespace(ns)
	if len(siblings) == 0 {
		return fmt.Errorf("config: unknown module %q", id)
	}
	names := make([]string, len(siblings))
	for i, info := range siblings {
		names[i] = string(info.ID)
	}
	return fmt.Errorf("config: unknown module %q (available in %s: %s)", id, ns, strings.Join(names, ", "))
}

func validateTransform(t TransformConfig) []error {
	var errs []error
	for _, name := range t.names() {
		if name == "" {
			errs = append(errs, errors.New("config: transform.name is required"))
			continue
		}
		if _, ok := transform.Lookup(name); !ok {
			errs = append(errs, fmt.Errorf("config: %w: %q", transform.ErrUnknownTransform, name))
		}
	}
	return errs
}
