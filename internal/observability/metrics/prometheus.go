// Package metrics provides Prometheus metrics for the dispensing service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	PrescriptionsCreated  prometheus.Counter
	PrescriptionsServed   prometheus.Counter
	PrescriptionsVoided   prometheus.Counter
	ServeFailures         prometheus.Counter
	ServeDuration         prometheus.Histogram
	LineItemOutcomes      *prometheus.CounterVec
	StockDebitsSubmitted  prometheus.Counter
	PatientsRegistered    prometheus.Counter
	VersionConflicts      prometheus.Counter
	KafkaMessagesProduced prometheus.Counter
	KafkaMessagesConsumed prometheus.Counter
	OutboxPending         prometheus.Gauge
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		PrescriptionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescriptions_created_total",
			Help: "Total prescriptions created",
		}),
		PrescriptionsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescriptions_served_total",
			Help: "Total prescription serve passes completed",
		}),
		PrescriptionsVoided: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescriptions_voided_total",
			Help: "Total prescriptions voided",
		}),
		ServeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescription_serve_failures_total",
			Help: "Total serve passes aborted by an error",
		}),
		ServeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prescription_serve_duration_seconds",
			Help:    "Serve pass duration including remote calls",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		LineItemOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prescription_line_item_outcomes_total",
			Help: "Line item serve outcomes by resulting status",
		}, []string{"status"}),
		StockDebitsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stock_debits_submitted_total",
			Help: "Total stock debit events submitted to stock management",
		}),
		PatientsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "patients_registered_total",
			Help: "Total patients registered",
		}),
		VersionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescription_version_conflicts_total",
			Help: "Total saves rejected by optimistic concurrency",
		}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		KafkaMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.PrescriptionsCreated,
		m.PrescriptionsServed,
		m.PrescriptionsVoided,
		m.ServeFailures,
		m.ServeDuration,
		m.LineItemOutcomes,
		m.StockDebitsSubmitted,
		m.PatientsRegistered,
		m.VersionConflicts,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
