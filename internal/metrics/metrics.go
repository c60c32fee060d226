package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	DispatchesTotal   prometheus.Counter
	JobsProcessed     *prometheus.CounterVec
	JobLatency        prometheus.Histogram
	FanoutEvents      *prometheus.CounterVec
	SocketConnections prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DispatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatches_enqueued_total",
			Help: "Total number of dispatch requests that created a queue job.",
		}),

		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_jobs_processed_total",
			Help: "Queue jobs handled by the worker, by outcome.",
		}, []string{"result"}),

		JobLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "queue_job_processing_seconds",
			Help:    "Latency from claim to completed delivery marking.",
			Buckets: prometheus.DefBuckets,
		}),

		FanoutEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_fanout_events_total",
			Help: "Realtime events emitted, by mode (room broadcast or per-user).",
		}, []string{"mode"}),

		SocketConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Currently connected websocket clients.",
		}),
	}

	reg.MustRegister(
		m.DispatchesTotal,
		m.JobsProcessed,
		m.JobLatency,
		m.FanoutEvents,
		m.SocketConnections,
	)

	return m
}

// WorkerHooks returns the callbacks expected by worker.Hooks.
// Centralises the prometheus observation calls so the worker stays import-free.
func (m *Metrics) WorkerHooks() (
	onProcessed func(result string, latency time.Duration),
	onFanout func(mode string),
) {
	onProcessed = func(result string, latency time.Duration) {
		m.JobsProcessed.WithLabelValues(result).Inc()
		m.JobLatency.Observe(latency.Seconds())
	}
	onFanout = func(mode string) {
		m.FanoutEvents.WithLabelValues(mode).Inc()
	}
	return
}

// HubHooks returns the connect/disconnect callbacks for the realtime hub.
func (m *Metrics) HubHooks() (onJoin, onLeave func()) {
	onJoin = func() { m.SocketConnections.Inc() }
	onLeave = func() { m.SocketConnections.Dec() }
	return
}
