package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "recordcache"

// Metrics contains the record cache metrics shared by every component.
// All Record* methods are safe to call on a nil *Metrics.
type Metrics struct {
	Ingestions       *prometheus.CounterVec
	MergeOutcomes    *prometheus.CounterVec
	RefetchIntents   prometheus.Counter
	Refetches        *prometheus.CounterVec
	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	ErrorsTotal      *prometheus.CounterVec
	MirrorConnected  prometheus.Gauge
	GatewayRequests  *prometheus.CounterVec
	GatewayDuration  *prometheus.HistogramVec
}

// NewMetrics creates the core metric set
func NewMetrics() *Metrics {
	return &Metrics{
		Ingestions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "ingestions_total",
				Help:      "Total number of entities ingested into the store",
			},
			[]string{"kind"},
		),

		MergeOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "merge",
				Name:      "outcomes_total",
				Help:      "Record merge outcomes (inserted, union, superset, unsupported, pending)",
			},
			[]string{"outcome"},
		),

		RefetchIntents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "merge",
				Name:      "refetch_intents_total",
				Help:      "Total number of background refetch intents produced by merges",
			},
		),

		Refetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "refetch",
				Name:      "completed_total",
				Help:      "Background refetches by result",
			},
			[]string{"status"},
		),

		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Upstream REST requests by endpoint and status class",
			},
			[]string{"endpoint", "status"},
		),

		UpstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "request_duration_seconds",
				Help:      "Upstream REST request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by component and class",
			},
			[]string{"component", "class"},
		),

		MirrorConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "mirror",
				Name:      "connected",
				Help:      "Persistence mirror connection status (0=disconnected, 1=connected)",
			},
		),

		GatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Gateway HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),

		GatewayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Gateway HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

func (m *Metrics) mustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.Ingestions,
		m.MergeOutcomes,
		m.RefetchIntents,
		m.Refetches,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.ErrorsTotal,
		m.MirrorConnected,
		m.GatewayRequests,
		m.GatewayDuration,
	)
}

// RecordIngestion increments the ingestion counter for an entity kind
func (m *Metrics) RecordIngestion(kind string) {
	if m == nil {
		return
	}
	m.Ingestions.WithLabelValues(kind).Inc()
}

// RecordMerge records a merge outcome
func (m *Metrics) RecordMerge(outcome string) {
	if m == nil {
		return
	}
	m.MergeOutcomes.WithLabelValues(outcome).Inc()
}

// RecordRefetchIntents adds n produced refetch intents
func (m *Metrics) RecordRefetchIntents(n int) {
	if m == nil {
		return
	}
	m.RefetchIntents.Add(float64(n))
}

// RecordRefetch records a completed background refetch
func (m *Metrics) RecordRefetch(status string) {
	if m == nil {
		return
	}
	m.Refetches.WithLabelValues(status).Inc()
}

// RecordUpstream records an upstream request and its duration
func (m *Metrics) RecordUpstream(endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(endpoint, status).Inc()
	m.UpstreamDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordError records an error for a component
func (m *Metrics) RecordError(component, class string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, class).Inc()
}

// SetMirrorConnected updates the mirror connection gauge
func (m *Metrics) SetMirrorConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.MirrorConnected.Set(1)
		return
	}
	m.MirrorConnected.Set(0)
}

// RecordRequest records a served gateway request
func (m *Metrics) RecordRequest(route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.GatewayRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.GatewayDuration.WithLabelValues(route).Observe(duration.Seconds())
}
