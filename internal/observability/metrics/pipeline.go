package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/muffakir/legal-assistant/internal/core/domain"
)

// PipelineMetrics records answer pipeline outcomes. It satisfies
// ports.PipelineObserver.
type PipelineMetrics struct {
	service string

	classifications *prometheus.CounterVec
	runs            *prometheus.CounterVec
	escalations     *prometheus.CounterVec
	retrieved       *prometheus.HistogramVec
}

func NewPipelineMetrics(registerer prometheus.Registerer, service string) *PipelineMetrics {
	classifications := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "classifications_total",
			Help:      "Query classifications by category.",
		},
		[]string{"service", "category"},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Finished pipeline runs by final state and escalation.",
		},
		[]string{"service", "state", "escalated"},
	)
	escalations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "escalations_total",
			Help:      "Web search escalations by outcome.",
		},
		[]string{"service", "outcome"},
	)
	retrieved := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "retrieved_passages",
			Help:      "Passages returned by retrieval per corpus run.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "strategy"},
	)

	registerer.MustRegister(classifications, runs, escalations, retrieved)

	return &PipelineMetrics{
		service:         service,
		classifications: classifications,
		runs:            runs,
		escalations:     escalations,
		retrieved:       retrieved,
	}
}

func (m *PipelineMetrics) ObserveClassification(category domain.QueryClassification) {
	m.classifications.WithLabelValues(m.service, string(category)).Inc()
}

func (m *PipelineMetrics) ObserveRun(final domain.PipelineState, escalated bool) {
	label := "false"
	if escalated {
		label = "true"
	}
	m.runs.WithLabelValues(m.service, string(final), label).Inc()
}

func (m *PipelineMetrics) ObserveEscalation(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.escalations.WithLabelValues(m.service, outcome).Inc()
}

func (m *PipelineMetrics) ObserveRetrieval(strategy domain.RetrievalStrategy, count int) {
	m.retrieved.WithLabelValues(m.service, string(strategy)).Observe(float64(count))
}
