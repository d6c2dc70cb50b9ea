package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification pipeline.
type Metrics struct {
	SessionsCreated prometheus.Counter

	// Collaborator call latencies by collaborator and outcome
	CollaboratorLatency *prometheus.HistogramVec

	// Extraction outcomes by extraction status ("FAILED" included)
	ExtractionOutcome *prometheus.CounterVec

	// Decision outcomes by final status
	DecisionOutcome *prometheus.CounterVec

	// Evaluations that ended without a Result, by reason
	DecisionDeferred *prometheus.CounterVec

	// Triggers for sessions that already had a Result
	DuplicatesSuppressed prometheus.Counter

	// Overall evaluation latency including face comparison
	EvaluateLatency prometheus.Histogram

	Notifications *prometheus.CounterVec
}

// New creates the pipeline metrics and registers them with reg. A nil
// registerer uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "kyc_sessions_created_total",
			Help: "Total verification sessions created",
		}),

		CollaboratorLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyc_collaborator_duration_seconds",
			Help:    "Duration of OCR, face detection and face comparison calls",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"collaborator", "outcome"}), // collaborator: "ocr", "face_detect", "face_compare"

		ExtractionOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_extraction_outcomes_total",
			Help: "Total extraction records written by status",
		}, []string{"status"}),

		DecisionOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_decision_outcomes_total",
			Help: "Total results written by final status",
		}, []string{"status"}),

		DecisionDeferred: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_decision_deferred_total",
			Help: "Evaluations that produced no result, by reason",
		}, []string{"reason"}), // reason: "no_session", "no_extraction", "awaiting_liveness", "notification_in_flight"

		DuplicatesSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "kyc_decision_duplicates_suppressed_total",
			Help: "Change triggers that found an existing result and wrote nothing",
		}),

		EvaluateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kyc_decision_evaluate_duration_seconds",
			Help:    "Duration of full decision evaluation including face comparison",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_notifications_total",
			Help: "Result notifications by outcome",
		}, []string{"outcome"}), // outcome: "published", "failed"
	}
}

func (m *Metrics) IncSessionCreated() {
	if m != nil {
		m.SessionsCreated.Inc()
	}
}

// ObserveCollaborator records the duration of one collaborator call.
func (m *Metrics) ObserveCollaborator(collaborator string, err error, d time.Duration) {
	if m != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.CollaboratorLatency.WithLabelValues(collaborator, outcome).Observe(d.Seconds())
	}
}

func (m *Metrics) IncExtraction(status string) {
	if m != nil {
		m.ExtractionOutcome.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncDecision(status string) {
	if m != nil {
		m.DecisionOutcome.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncDeferred(reason string) {
	if m != nil {
		m.DecisionDeferred.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncDuplicateSuppressed() {
	if m != nil {
		m.DuplicatesSuppressed.Inc()
	}
}

func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncNotification(outcome string) {
	if m != nil {
		m.Notifications.WithLabelValues(outcome).Inc()
	}
}
