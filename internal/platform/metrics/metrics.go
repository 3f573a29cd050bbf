// Package metrics owns the Prometheus registry of the check services. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the engine counters.
const (
	OutcomeApplied  = "applied"
	OutcomeNoOp     = "noop"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics holds every collector exported by the API and the relay.
type Metrics struct {
	// Registry is private to this instance so tests can build as many as they like.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	intents         *prometheus.CounterVec
	fxLookups       *prometheus.CounterVec
	outboxBatch     prometheus.Gauge
}

// New creates a registry with Go runtime collectors and the check metrics.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests by route and status.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "check_transitions_total",
				Help:      "Status transitions requested, by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
		settlements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "check_settlements_total",
				Help:      "Settle and unsettle requests, by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		intents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_intents_total",
				Help:      "Ledger intents by kind and delivery result.",
			},
			[]string{"kind", "result"},
		),
		fxLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fx_rate_lookups_total",
				Help:      "Exchange rate captures by source.",
			},
			[]string{"source"},
		),
		outboxBatch: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "outbox_last_batch_size",
				Help:      "Number of outbox messages fetched by the last poll.",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// IncTransition counts one transition request.
func (m *Metrics) IncTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, outcome).Inc()
}

// IncSettlement counts one settle or unsettle request.
func (m *Metrics) IncSettlement(operation, outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(operation, outcome).Inc()
}

// IncIntent counts an intent at a delivery stage (queued, published, dead_lettered, failed).
func (m *Metrics) IncIntent(kind, result string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(kind, result).Inc()
}

// IncFXLookup counts a captured rate by its source.
func (m *Metrics) IncFXLookup(source string) {
	if m == nil {
		return
	}
	m.fxLookups.WithLabelValues(source).Inc()
}

// SetOutboxBatch records the size of the last outbox poll.
func (m *Metrics) SetOutboxBatch(n int) {
	if m == nil {
		return
	}
	m.outboxBatch.Set(float64(n))
}
