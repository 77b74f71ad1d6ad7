// Package metrics provides Prometheus metrics for resolution cycles.
package metrics

import (
	"fixture-edge/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// CycleMetrics collects cycle, resolution and assessment metrics on its own registry.
type CycleMetrics struct {
	registry *prometheus.Registry

	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	ExternalCalls prometheus.Gauge

	ResolutionsTotal *prometheus.CounterVec
	MatchScore       prometheus.Histogram

	AssessmentsTotal *prometheus.CounterVec
	FailuresTotal    *prometheus.CounterVec
}

func NewCycleMetrics() *CycleMetrics {
	registry := prometheus.NewRegistry()

	m := &CycleMetrics{
		registry: registry,

		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fixture_edge_cycles_total",
				Help: "Completed cycles by status",
			},
			[]string{"status"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fixture_edge_cycle_duration_seconds",
				Help:    "Wall time of a cycle",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
		),
		ExternalCalls: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fixture_edge_external_calls",
				Help: "External inference calls made by the last cycle",
			},
		),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fixture_edge_resolutions_total",
				Help: "Event resolutions by outcome (resolved or a no-match reason)",
			},
			[]string{"outcome"},
		),
		MatchScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fixture_edge_match_score",
				Help:    "Total score of resolved matches",
				Buckets: []float64{0.75, 0.8, 0.85, 0.9, 0.95, 1},
			},
		),
		AssessmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fixture_edge_assessments_total",
				Help: "EV assessments by tier",
			},
			[]string{"tier"},
		),
		FailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fixture_edge_event_failures_total",
				Help: "Per-event failures by kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.ExternalCalls,
		m.ResolutionsTotal,
		m.MatchScore,
		m.AssessmentsTotal,
		m.FailuresTotal,
	)
	return m
}

func (m *CycleMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *CycleMetrics) ObserveResolution(outcome string, score float64) {
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
	if outcome == "resolved" {
		m.MatchScore.Observe(score)
	}
}

func (m *CycleMetrics) ObserveAssessment(tier domain.Tier) {
	m.AssessmentsTotal.WithLabelValues(string(tier)).Inc()
}

func (m *CycleMetrics) ObserveFailure(kind domain.Kind) {
	m.FailuresTotal.WithLabelValues(string(kind)).Inc()
}

func (m *CycleMetrics) ObserveCycle(s domain.CycleSummary) {
	status := "complete"
	if s.Partial {
		status = "partial"
	}
	m.CyclesTotal.WithLabelValues(status).Inc()
	m.CycleDuration.Observe(s.Duration().Seconds())
	m.ExternalCalls.Set(float64(s.ExternalCalls))
}
