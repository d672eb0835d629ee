package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/batchexec/internal/core"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Config holds the scheduler module configuration.
type Config struct {
	StatsSchedule string        `yaml:"stats_schedule"`
	PruneSchedule string        `yaml:"prune_schedule"`
	Retention     time.Duration `yaml:"retention"`
}

func (c *Config) defaults() {
	if c.StatsSchedule == "" {
		c.StatsSchedule = "@every 30s"
	}
	if c.PruneSchedule == "" {
		c.PruneSchedule = "0 * * * *"
	}
	if c.Retention <= 0 {
		c.Retention = 7 * 24 * time.Hour
	}
}

// Module runs the built-in jobs next to a run. Stats snapshots need the
// executor service; snapshot retention needs a ledger.
type Module struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	scheduler *Scheduler
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "cron.scheduler",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("cron: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.appCtx = ctx
	m.logger = ctx.Logger
	m.scheduler = NewScheduler(ctx.Logger)
	ctx.RegisterService(core.ServiceScheduler, m.scheduler)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return errors.Join(
		ValidateSchedule(m.config.StatsSchedule),
		ValidateSchedule(m.config.PruneSchedule),
	)
}

// Start implements core.Starter. Jobs whose services are missing are
// skipped.
func (m *Module) Start() error {
	if src, ok := core.ServiceAs[StatsSource](m.appCtx, core.ServiceExecutor); ok {
		job := &StatsSnapshotJob{
			Source:       src,
			Logger:       m.logger,
			ScheduleExpr: m.config.StatsSchedule,
		}
		if rec, ok := core.ServiceAs[SnapshotRecorder](m.appCtx, core.ServiceLedgerTracker); ok {
			job.Recorder = rec
		}
		if err := m.scheduler.RegisterJob(job); err != nil {
			return err
		}
	} else {
		m.logger.Warn("cron: no executor service, stats snapshots disabled")
	}

	if store, ok := core.ServiceAs[SnapshotPruner](m.appCtx, core.ServiceLedgerStore); ok {
		if err := m.scheduler.RegisterJob(&SnapshotPruneJob{
			Store:        store,
			Retention:    m.config.Retention,
			Logger:       m.logger,
			ScheduleExpr: m.config.PruneSchedule,
		}); err != nil {
			return err
		}
	}

	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Stop(ctx)
}

// Scheduler returns the module's scheduler.
func (m *Module) Scheduler() *Scheduler {
	return m.scheduler
}
