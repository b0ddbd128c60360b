// Package metrics defines the Prometheus collectors for the access core.
//
// All methods are nil-safe so components can run without metrics in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the core exports.
type Metrics struct {
	DecisionOutcome  *prometheus.CounterVec
	ValidateLatency  prometheus.Histogram
	GatewayPublishes *prometheus.CounterVec
	RouterMessages   *prometheus.CounterVec
	RouterPanics     prometheus.Counter
	LedgerPending    prometheus.Gauge
	LedgerExpired    prometheus.Counter
	TransportUp      prometheus.Gauge
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to avoid clashing with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DecisionOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accesscore_decisions_total",
			Help: "Access decisions by outcome (granted, pin_required, denied)",
		}, []string{"outcome"}),

		ValidateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "accesscore_validate_duration_seconds",
			Help:    "Duration of access validation including repository calls",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		GatewayPublishes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accesscore_gateway_publishes_total",
			Help: "Outbound device messages by kind and result",
		}, []string{"kind", "result"}), // kind: response, command, broadcast, lockdown

		RouterMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accesscore_router_messages_total",
			Help: "Inbound device messages by route",
		}, []string{"route"}),

		RouterPanics: factory.NewCounter(prometheus.CounterOpts{
			Name: "accesscore_router_panics_total",
			Help: "Message handlers that panicked and were recovered",
		}),

		LedgerPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "accesscore_ledger_pending_commands",
			Help: "Commands awaiting device acknowledgment",
		}),

		LedgerExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "accesscore_ledger_expired_total",
			Help: "Pending commands removed by the expiry sweep",
		}),

		TransportUp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "accesscore_transport_connected",
			Help: "1 while the broker connection is up",
		}),
	}
}

// ObserveDecision records one validation outcome and its latency.
func (m *Metrics) ObserveDecision(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.DecisionOutcome.WithLabelValues(outcome).Inc()
	m.ValidateLatency.Observe(d.Seconds())
}

// IncPublish records an outbound publish.
func (m *Metrics) IncPublish(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.GatewayPublishes.WithLabelValues(kind, result).Inc()
}

// IncRoute records an inbound message by route name.
func (m *Metrics) IncRoute(route string) {
	if m != nil {
		m.RouterMessages.WithLabelValues(route).Inc()
	}
}

// IncPanic records a recovered handler panic.
func (m *Metrics) IncPanic() {
	if m != nil {
		m.RouterPanics.Inc()
	}
}

// SetPending sets the pending command gauge.
func (m *Metrics) SetPending(n int) {
	if m != nil {
		m.LedgerPending.Set(float64(n))
	}
}

// AddExpired counts swept commands.
func (m *Metrics) AddExpired(n int) {
	if m != nil && n > 0 {
		m.LedgerExpired.Add(float64(n))
	}
}

// SetTransportUp records the broker connection state.
func (m *Metrics) SetTransportUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.TransportUp.Set(1)
		return
	}
	m.TransportUp.Set(0)
}
