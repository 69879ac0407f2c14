package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the router's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	tierCalls   *prometheus.CounterVec
	escalations *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	confidence  *prometheus.HistogramVec
}

// NewMetrics registers the router collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		tierCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "router",
			Name:      "tier_calls_total",
			Help:      "Model tier invocations by outcome",
		}, []string{"tier", "result"}),
		escalations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "router",
			Name:      "escalations_total",
			Help:      "Fast-to-deep escalations by reason",
		}, []string{"reason"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "router",
			Name:      "fallbacks_total",
			Help:      "Degraded answers by kind (rag_only, no_inference)",
		}, []string{"kind"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "triage",
			Subsystem: "router",
			Name:      "route_latency_seconds",
			Help:      "End-to-end routing latency by final tier",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"tier"}),
		confidence: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "triage",
			Subsystem: "router",
			Name:      "confidence",
			Help:      "Distribution of answer confidence by tier",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}, []string{"tier"}),
	}
}

func (m *Metrics) tierCall(tier, result string) {
	if m == nil {
		return
	}
	m.tierCalls.WithLabelValues(tier, result).Inc()
}

func (m *Metrics) escalation(reason Reason) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) fallback(kind string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(kind).Inc()
}

func (m *Metrics) observe(d Decision) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(string(d.TierUsed)).Observe(float64(d.LatencyMS) / 1000)
	m.confidence.WithLabelValues(string(d.TierUsed)).Observe(d.Confidence)
}
