package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the transport-level Prometheus metrics.
type Metrics struct {
	RequestLatency *prometheus.HistogramVec
	TriggerEvents  *prometheus.CounterVec
}

// New creates and registers transport metrics with reg. A nil registerer
// uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyc_http_request_duration_seconds",
			Help:    "Latency of API requests by route and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "method", "status"}),
		TriggerEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_trigger_events_total",
			Help: "Trigger events handled by topic and outcome",
		}, []string{"topic", "outcome"}), // outcome: "ok", "retried", "dropped", "exhausted"
	}
}

// ObserveRequest records one served API request.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m != nil {
		m.RequestLatency.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
	}
}

// IncTrigger counts one trigger delivery outcome.
func (m *Metrics) IncTrigger(topic, outcome string) {
	if m != nil {
		m.TriggerEvents.WithLabelValues(topic, outcome).Inc()
	}
}
