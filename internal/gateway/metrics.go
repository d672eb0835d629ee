package gateway

import "sync/atomic"

// Metrics tracks gateway-level counters using atomic operations for lock-free concurrency.
type Metrics struct {
	requests      atomic.Int64
	resets        atomic.Int64
	streams       atomic.Int64
	streamsActive atomic.Int64
}

// RecordRequest records an inbound HTTP request.
func (m *Metrics) RecordRequest() {
	m.requests.Add(1)
}

// RecordReset records a session reset issued through the API.
func (m *Metrics) RecordReset() {
	m.resets.Add(1)
}

// StreamOpened records a new stats stream client. The returned func marks
// it closed.
func (m *Metrics) StreamOpened() func() {
	m.streams.Add(1)
	m.streamsActive.Add(1)
	return func() { m.streamsActive.Add(-1) }
}

// Snapshot returns a point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests:      m.requests.Load(),
		Resets:        m.resets.Load(),
		Streams:       m.streams.Load(),
		StreamsActive: m.streamsActive.Load(),
	}
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Requests      int64 `json:"requests"`
	Resets        int64 `json:"resets"`
	Streams       int64 `json:"streams"`
	StreamsActive int64 `json:"streams_active"`
}
