// Package telemetry exports executor activity as Prometheus metrics and
// sets up the OpenTelemetry tracer provider.
package telemetry

import (
	"os"
	"strconv"
	"sync"

	"github.com/flemzord/batchexec/internal/executor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "batchexec"

// Metrics records executor events. It implements executor.Observer.
type Metrics struct {
	JobsQueued       prometheus.Counter
	ResultsDelivered prometheus.Counter
	ResultsDiscarded *prometheus.CounterVec
	Resets           prometheus.Counter
	Session          prometheus.Gauge
	WorkersStarted   prometheus.Counter

	reg       prometheus.Registerer
	mu        sync.Mutex
	processes map[int]prometheus.Collector
}

var _ executor.Observer = (*Metrics)(nil)

// NewMetrics creates the executor metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_queued_total",
			Help:      "Total number of jobs accepted by Put",
		}),
		ResultsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_delivered_total",
			Help:      "Total number of results forwarded to the consumer queue",
		}),
		ResultsDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_discarded_total",
			Help:      "Total number of results that never reached the consumer, by reason",
		}, []string{"reason"}),
		Resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resets_total",
			Help:      "Total number of session resets",
		}),
		Session: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session",
			Help:      "Current session number",
		}),
		WorkersStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_started_total",
			Help:      "Total number of workers launched",
		}),
		reg:       reg,
		processes: make(map[int]prometheus.Collector),
	}

	reg.MustRegister(
		m.JobsQueued,
		m.ResultsDelivered,
		m.ResultsDiscarded,
		m.Resets,
		m.Session,
		m.WorkersStarted,
	)
	return m
}

func (m *Metrics) JobQueued()       { m.JobsQueued.Inc() }
func (m *Metrics) ResultDelivered() { m.ResultsDelivered.Inc() }

func (m *Metrics) ResultDiscarded(reason executor.DiscardReason, n int) {
	m.ResultsDiscarded.WithLabelValues(string(reason)).Add(float64(n))
}

func (m *Metrics) SessionReset(session int64) {
	m.Resets.Inc()
	m.Session.Set(float64(session))
}

// WorkerStarted counts the worker and, when it runs in its own process,
// exports that process's CPU, memory and file descriptor usage labelled
// with the worker index. A restarted worker replaces the previous collector.
func (m *Metrics) WorkerStarted(info executor.WorkerInfo) {
	m.WorkersStarted.Inc()
	if info.PID == 0 || info.PID == os.Getpid() {
		return
	}

	pid := info.PID
	c := collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
		PidFn:     func() (int, error) { return pid, nil },
		Namespace: namespace + "_worker",
	})
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"worker": strconv.Itoa(info.Index)}, m.reg)

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.processes[info.Index]; ok {
		reg.Unregister(prev)
		delete(m.processes, info.Index)
	}
	if err := reg.Register(c); err != nil {
		return
	}
	m.processes[info.Index] = c
}

// StatsCollector exports an executor Stats snapshot on every scrape.
type StatsCollector struct {
	stats func() executor.Stats

	pending      *prometheus.Desc
	inFlight     *prometheus.Desc
	workers      *prometheus.Desc
	workersAlive *prometheus.Desc
	idle         *prometheus.Desc
	processed    *prometheus.Desc
}

// NewStatsCollector returns a collector reading stats at scrape time.
func NewStatsCollector(stats func() executor.Stats) *StatsCollector {
	return &StatsCollector{
		stats:        stats,
		pending:      prometheus.NewDesc(namespace+"_pending_results", "Results waiting in the shared queue for the consumer", nil, nil),
		inFlight:     prometheus.NewDesc(namespace+"_jobs_in_flight", "Jobs queued but not yet processed", nil, nil),
		workers:      prometheus.NewDesc(namespace+"_workers", "Configured number of workers", nil, nil),
		workersAlive: prometheus.NewDesc(namespace+"_workers_alive", "Number of live workers", nil, nil),
		idle:         prometheus.NewDesc(namespace+"_idle", "1 when every queued job has been processed", nil, nil),
		processed:    prometheus.NewDesc(namespace+"_jobs_processed", "Jobs processed in the executor's lifetime", nil, nil),
	}
}

func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pending
	ch <- c.inFlight
	ch <- c.workers
	ch <- c.workersAlive
	ch <- c.idle
	ch <- c.processed
}

func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	idle := 0.0
	if s.Idle {
		idle = 1
	}
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(s.Pending))
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(s.Queued-s.Processed))
	ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(s.Workers))
	ch <- prometheus.MustNewConstMetric(c.workersAlive, prometheus.GaugeValue, float64(s.WorkersAlive))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, idle)
	ch <- prometheus.MustNewConstMetric(c.processed, prometheus.CounterValue, float64(s.Processed))
}
