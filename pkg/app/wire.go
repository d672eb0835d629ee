package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/batchexec/internal/config"
	"github.com/flemzord/batchexec/internal/core"
	"github.com/flemzord/batchexec/internal/dataset"
	"github.com/flemzord/batchexec/internal/executor"
	"github.com/flemzord/batchexec/internal/ledger"
	"github.com/flemzord/batchexec/internal/telemetry"
	"github.com/flemzord/batchexec/pkg/batch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const ledgerTimeout = 5 * time.Second

// Pool is the executor specialised to batches.
type Pool = executor.Executor[batch.Batch, batch.Batch]

type wireParams struct {
	cfg        *config.Config
	cfgPath    string
	dataDir    string
	logger     *slog.Logger
	workerPath string
	workerArgs []string
}

// runtime holds everything a run owns.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger

	exec     *Pool
	app      *core.App
	source   *dataset.Source
	sink     *dataset.Sink
	tracker  *ledger.Tracker
	shutdown telemetry.ShutdownFunc
}

// wire builds the runtime: tracing, metrics, the executor, the dataset and
// the modules. Services are registered after LoadModules, so modules bind
// them in Start. On error everything already built is released.
func wire(ctx context.Context, p wireParams) (_ *runtime, err error) {
	cfg := p.cfg
	rt := &runtime{cfg: cfg, logger: p.logger}
	defer func() {
		if err != nil {
			_ = rt.release()
		}
	}()

	rt.shutdown, err = telemetry.SetupTracing(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	var (
		registry *prometheus.Registry
		observer executor.Observer
	)
	if cfg.Telemetry.Metrics {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		observer = telemetry.NewMetrics(registry)
	}

	fn, err := cfg.Transform.Build()
	if err != nil {
		return nil, err
	}

	rt.source, err = dataset.Open(cfg.Dataset.Path)
	if err != nil {
		return nil, err
	}
	if cfg.Output.Path != "" {
		rt.sink, err = dataset.Create(cfg.Output.Path)
		if err != nil {
			return nil, err
		}
	}

	rt.exec, err = executor.New(executor.Params[batch.Batch, batch.Batch]{
		Config:    cfg.Executor.Config,
		Transform: fn,
		Runner:    newRunner(p),
		Logger:    p.logger,
		Observer:  observer,
	})
	if err != nil {
		return nil, fmt.Errorf("app: starting executor: %w", err)
	}
	if registry != nil {
		registry.MustRegister(telemetry.NewStatsCollector(rt.exec.Stats))
	}

	appCtx := core.NewAppContext(p.logger, p.dataDir).WithModuleConfigs(cfg.Modules)
	rt.app = core.NewApp(appCtx)
	if err := rt.app.LoadModules(config.Resolve(cfg)); err != nil {
		return nil, err
	}

	appCtx.RegisterService(core.ServiceExecutor, rt.exec)
	if registry != nil {
		appCtx.RegisterService(core.ServiceMetrics, registry)
	}
	if store, ok := core.ServiceAs[ledger.Store](appCtx, core.ServiceLedgerStore); ok {
		rt.tracker = &ledger.Tracker{Store: store, RunID: ledger.NewRunID(), Stats: rt.exec.Stats}
		if err := store.BeginRun(ctx, ledger.Run{
			ID:        rt.tracker.RunID,
			Status:    ledger.StatusRunning,
			Mode:      cfg.Run.Mode,
			Transform: cfg.Transform.Name,
			Workers:   cfg.Executor.Workers,
			StartedAt: time.Now().UTC(),
		}); err != nil {
			return nil, fmt.Errorf("app: recording run: %w", err)
		}
		appCtx.RegisterService(core.ServiceLedgerTracker, rt.tracker)
		p.logger.Info("run recorded", "run", rt.tracker.RunID)
	}

	if err := rt.app.Start(); err != nil {
		return nil, err
	}
	return rt, nil
}

// newRunner picks how workers are hosted.
func newRunner(p wireParams) executor.Runner[batch.Batch, batch.Batch] {
	if p.cfg.Executor.Mode == config.ModeGoroutine {
		return executor.GoroutineRunner[batch.Batch, batch.Batch]{}
	}
	args := p.workerArgs
	if args == nil {
		args = []string{"worker", "--config", p.cfgPath}
	}
	return executor.ProcessRunner[batch.Batch, batch.Batch]{
		Path:       p.workerPath,
		Args:       args,
		GOMAXPROCS: p.cfg.Executor.WorkerGOMAXPROCS,
	}
}

// close shuts the executor down, records the outcome of the run and stops
// the modules. The ledger is written before the modules stop, since a
// ledger module closes its store on Stop.
func (rt *runtime) close(status, errMsg string) error {
	var errs []error
	if err := rt.exec.Close(rt.exec.Config().CloseTimeout); err != nil {
		errs = append(errs, fmt.Errorf("app: closing executor: %w", err))
	}

	stats := rt.exec.Stats()
	rt.logger.Info("run finished",
		"status", status,
		"delivered", stats.Delivered,
		"stale", stats.Stale,
		"failed", stats.Failed,
		"resets", stats.Resets,
	)

	if rt.tracker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), ledgerTimeout)
		defer cancel()
		if err := rt.tracker.Store.FinishRun(ctx, rt.tracker.RunID, status, errMsg, stats); err != nil {
			errs = append(errs, fmt.Errorf("app: recording run outcome: %w", err))
		}
	}

	rt.app.Close()
	rt.exec = nil
	rt.app = nil
	errs = append(errs, rt.release())
	return errors.Join(errs...)
}

// release frees whatever wire managed to build.
func (rt *runtime) release() error {
	var errs []error
	if rt.app != nil {
		rt.app.Close()
	}
	if rt.exec != nil {
		errs = append(errs, rt.exec.Close(rt.exec.Config().CloseTimeout))
	}
	if rt.sink != nil {
		errs = append(errs, rt.sink.Close())
	}
	if rt.source != nil {
		errs = append(errs, rt.source.Close())
	}
	if rt.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), ledgerTimeout)
		defer cancel()
		errs = append(errs, rt.shutdown(ctx))
	}
	return errors.Join(errs...)
}

// ledgerStatus maps the outcome of drive to a run status.
func ledgerStatus(err error) (status, msg string) {
	switch {
	case err == nil:
		return ledger.StatusCompleted, ""
	case interrupted(err):
		return ledger.StatusInterrupted, ""
	default:
		return ledger.StatusFailed, err.Error()
	}
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
