package core

// Well-known service registry keys.
const (
	// ServiceExecutor holds the running executor. It provides Stats,
	// Workers and Reset.
	ServiceExecutor = "executor"

	// ServiceLedgerStore holds a ledger.Store.
	ServiceLedgerStore = "ledger.store"

	// ServiceLedgerTracker holds the *ledger.Tracker of the run in progress.
	ServiceLedgerTracker = "ledger.tracker"

	// ServiceMetrics holds the *prometheus.Registry metrics are exported from.
	ServiceMetrics = "telemetry.registry"

	// ServiceScheduler holds the *cron.Scheduler.
	ServiceScheduler = "cron.scheduler"
)
