package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure stages
const (
	StageDecode  = "decode"
	StageEnrich  = "enrich"
	StageScore   = "score"
	StageEmit    = "emit"
	StagePersist = "persist"
)

// Metrics holds the Prometheus metrics for the scoring operator
type Metrics struct {
	EventsReceived  prometheus.Counter
	EventsFiltered  prometheus.Counter
	EventsScored    *prometheus.CounterVec
	EventsFailed    *prometheus.CounterVec
	Acks            *prometheus.CounterVec
	AuditsPersisted prometheus.Counter
	ProcessDuration prometheus.Histogram
}

// New registers all metrics with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		EventsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "scorer_events_received_total",
			Help: "Total number of events handed to the scoring operator",
		}),
		EventsFiltered: f.NewCounter(prometheus.CounterOpts{
			Name: "scorer_events_filtered_total",
			Help: "Total number of events dropped because their type is not scored",
		}),
		EventsScored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scorer_events_scored_total",
			Help: "Total number of events scored, by predicted label",
		}, []string{"label"}),
		EventsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scorer_events_failed_total",
			Help: "Total number of processing failures, by stage",
		}, []string{"stage"}),
		Acks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scorer_acks_total",
			Help: "Total number of transport acknowledgements, by outcome",
		}, []string{"outcome"}),
		AuditsPersisted: f.NewCounter(prometheus.CounterOpts{
			Name: "scorer_audits_persisted_total",
			Help: "Total number of violation audit records written",
		}),
		ProcessDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scorer_process_duration_seconds",
			Help:    "Time spent processing one scored event",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncrementReceived increments the received counter
func (m *Metrics) IncrementReceived() {
	m.EventsReceived.Inc()
}

// IncrementFiltered increments the filtered counter
func (m *Metrics) IncrementFiltered() {
	m.EventsFiltered.Inc()
}

// IncrementScored increments the scored counter for label
func (m *Metrics) IncrementScored(label string) {
	m.EventsScored.WithLabelValues(label).Inc()
}

// IncrementFailed increments the failure counter for stage
func (m *Metrics) IncrementFailed(stage string) {
	m.EventsFailed.WithLabelValues(stage).Inc()
}

// IncrementAck counts an ack ("ack") or negative ack ("nak")
func (m *Metrics) IncrementAck(outcome string) {
	m.Acks.WithLabelValues(outcome).Inc()
}

// IncrementPersisted increments the persisted audit counter
func (m *Metrics) IncrementPersisted() {
	m.AuditsPersisted.Inc()
}

// ObserveDuration records the processing time of one event in seconds
func (m *Metrics) ObserveDuration(seconds float64) {
	m.ProcessDuration.Observe(seconds)
}
