package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "solwave"

// Outcome labels shared by the session collectors.
const (
	OutcomeSuccess     = "success"
	OutcomeRejected    = "rejected"
	OutcomeNoProvider  = "no_provider"
	OutcomeJoined      = "joined"
	OutcomeFailed      = "failed"
	OutcomeInvalid     = "invalid_identity"
	OutcomeSkipped     = "skipped"
	OutcomeProviderErr = "provider_error"
)

// Metrics holds the Prometheus collectors of the session core. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	connects      *prometheus.CounterVec
	disconnects   *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	staleResults  prometheus.Counter
	fetchDuration prometheus.Histogram
	connected     prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connect_total",
			Help:      "Connect attempts by outcome.",
		}, []string{"outcome"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "disconnect_total",
			Help:      "Disconnects by provider outcome.",
		}, []string{"outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "fetch_total",
			Help:      "Completed balance fetches by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "refresh_total",
			Help:      "User requested refreshes by outcome.",
		}, []string{"outcome"}),
		staleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "stale_results_total",
			Help:      "Balance results discarded because the identity changed.",
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "fetch_duration_seconds",
			Help:      "Latency of balance queries.",
			Buckets:   prometheus.DefBuckets,
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connected",
			Help:      "1 while a wallet is connected.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connects, m.disconnects, m.fetches, m.refreshes, m.staleResults, m.fetchDuration, m.connected)
	}
	return m
}

func (m *Metrics) Connect(outcome string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Disconnect(outcome string) {
	if m == nil {
		return
	}
	m.disconnects.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Fetch(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(outcome).Inc()
	m.fetchDuration.Observe(took.Seconds())
}

func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Stale() {
	if m == nil {
		return
	}
	m.staleResults.Inc()
}

func (m *Metrics) Connected(on bool) {
	if m == nil {
		return
	}
	if on {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}
