// Package metrics exposes trafficwatch's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trafficwatch"

type Metrics struct {
	gatherer prometheus.Gatherer

	events           *prometheus.CounterVec
	suspicious       *prometheus.CounterVec
	milestones       prometheus.Counter
	ingestRejected   *prometheus.CounterVec
	broadcast        *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	sessions         prometheus.Gauge
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWith(reg, reg)
}

func NewWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Traffic events recorded, by feed.",
		}, []string{"feed"}),
		suspicious: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suspicious_events_total",
			Help:      "Suspicious traffic events recorded, by feed.",
		}, []string{"feed"}),
		milestones: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "milestones_total",
			Help:      "Statistics snapshots published at milestone counts.",
		}),
		ingestRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rejected_total",
			Help:      "Ingestion submissions rejected by validation, by reason.",
		}, []string{"reason"}),
		broadcast: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_messages_total",
			Help:      "Messages fanned out to subscribers, by type.",
		}, []string{"type"}),
		deliveryFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Per-session delivery failures, by reason.",
		}, []string{"reason"}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Currently registered subscriber sessions.",
		}),
	}
}

func (m *Metrics) ObserveEvent(feed string, suspicious bool) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(feed).Inc()
	if suspicious {
		m.suspicious.WithLabelValues(feed).Inc()
	}
}

func (m *Metrics) ObserveMilestone() {
	if m == nil {
		return
	}
	m.milestones.Inc()
}

func (m *Metrics) ObserveRejected(reason string) {
	if m == nil {
		return
	}
	m.ingestRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveBroadcast(msgType string) {
	if m == nil {
		return
	}
	m.broadcast.WithLabelValues(msgType).Inc()
}

func (m *Metrics) ObserveDeliveryFailure(reason string) {
	if m == nil {
		return
	}
	m.deliveryFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
