// Package metrics provides Prometheus metrics for the prediction pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Metrics collects and exposes pipeline Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Provider metrics
	ProviderCalls      *prometheus.CounterVec
	ProviderLatency    *prometheus.HistogramVec
	ProviderConfidence *prometheus.HistogramVec
	ProviderErrors     *prometheus.CounterVec

	// Consensus metrics
	ConsensusTotal     *prometheus.CounterVec
	ConsensusAgreement *prometheus.HistogramVec
	CacheRequests      *prometheus.CounterVec

	// Synthesis metrics
	PredictionsTotal     *prometheus.CounterVec
	PredictionConfidence *prometheus.HistogramVec
	TierDisagreement     *prometheus.HistogramVec

	// Anomaly metrics
	AnomaliesTotal  *prometheus.CounterVec
	UpsetScores     *prometheus.HistogramVec
	DivergenceFound *prometheus.HistogramVec

	// Planning metrics
	PlansTotal       *prometheus.CounterVec
	PlanCombinations *prometheus.HistogramVec
	PlanCost         *prometheus.HistogramVec
	SlateCoverage    *prometheus.HistogramVec

	// Engine metrics
	RunsTotal    *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	StageLatency *prometheus.HistogramVec
	SlateSize    *prometheus.GaugeVec
}

// New creates a metrics collector with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Provider metrics
		ProviderCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slatepick_provider_calls_total",
				Help: "Total number of provider analysis calls",
			},
			[]string{"provider", "status"},
		),
		ProviderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slatepick_provider_latency_seconds",
				Help:    "Provider call latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~100s
			},
			[]string{"provider"},
		),
		ProviderConfidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slatepick_provider_confidence",
				Help:    "Provider opinion confidence (0-100)",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
			[]string{"provider"},
		),
		ProviderErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slatepick_provider_errors_total",
				Help: "Total number of provider errors",
			},
			[]string{"provider", "error_type"},
		),

		// Consensus metrics
		ConsensusTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slatepick_consensus_total",
				Help: "Total number of consensus aggregations",
			},
			[]string{"tier"},
		),
		ConsensusAgreement: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slatepick_consensus_agreement",
				Help:    "Share of providers backing the consensus winner",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{},
		),
		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slatepick_cache_requests_total",
				Help: "Consensus cache lookups",
			},
			[]string{"result"},
		),

		// Synthesis metrics
		PredictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slatepick_predictions_total",
				Help: "Total number of hybrid predictions",
			},
			[]string{"winner"},
		),
		PredictionConfidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slatepick_prediction_confidence",
				Help:    "Hybrid prediction confidence (0-1)",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{},
		),
		TierDisagreement: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slatepick_tier_disagreement",
				Help:    "Cross-tier home probability spread (1 - consensus score)",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{},
		),

		// Anomaly metrics
		AnomaliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slatepick_anomalies_total",
				Help: "Total number of market anomalies flagged",
			},
			[]string{"kind", "risk"},
		),
		UpsetScores: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slatepick_upset_scores",
				Help:    "Structural upset scores (0-100)",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
			[]string{},
		),
		DivergenceFound: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slatepick_divergence_abs",
				Help:    "Absolute model-market divergence on flagged anomalies",
				Buckets: []float64{0.15, 0.2, 0.25, 0.3, 0.35, 0.4, 0.5},
			},
			[]string{},
		),

		// Planning metrics
		PlansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slatepick_plans_total",
				Help: "Total number of selection plans built",
			},
			[]string{},
		),
		PlanCombinations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slatepick_plan_combinations",
				Help:    "Combination count per plan after budget reduction",
				Buckets: []float64{1, 4, 16, 64, 256, 1024, 4096, 16384, 65536},
			},
			[]string{},
		),
		PlanCost: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slatepick_plan_cost",
				Help:    "Plan cost in currency units",
				Buckets: prometheus.ExponentialBuckets(1000, 2, 12),
			},
			[]string{},
		),
		SlateCoverage: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slatepick_plan_expected_probability",
				Help:    "Expected probability the plan covers the full slate",
				Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
			},
			[]string{},
		),

		// Engine metrics
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slatepick_runs_total",
				Help: "Total number of pipeline runs",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slatepick_run_duration_seconds",
				Help:    "Full pipeline run duration",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~400s
			},
			[]string{},
		),
		StageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slatepick_stage_latency_seconds",
				Help:    "Individual stage latency",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"stage", "status"},
		),
		SlateSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "slatepick_slate_size",
				Help: "Number of matches in the current slate",
			},
			[]string{},
		),
	}

	m.registerAll()
	return m
}

func (m *Metrics) registerAll() {
	m.registry.MustRegister(
		m.ProviderCalls,
		m.ProviderLatency,
		m.ProviderConfidence,
		m.ProviderErrors,
		m.ConsensusTotal,
		m.ConsensusAgreement,
		m.CacheRequests,
		m.PredictionsTotal,
		m.PredictionConfidence,
		m.TierDisagreement,
		m.AnomaliesTotal,
		m.UpsetScores,
		m.DivergenceFound,
		m.PlansTotal,
		m.PlanCombinations,
		m.PlanCost,
		m.SlateCoverage,
		m.RunsTotal,
		m.RunDuration,
		m.StageLatency,
		m.SlateSize,
	)
}

// Registry returns the prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// --- Helper methods for recording metrics ---

// RecordProviderCall records one provider analysis attempt.
func (m *Metrics) RecordProviderCall(provider, status string, latency time.Duration, confidence float64) {
	m.ProviderCalls.WithLabelValues(provider, status).Inc()
	if latency > 0 {
		m.ProviderLatency.WithLabelValues(provider).Observe(latency.Seconds())
	}
	if confidence >= 0 {
		m.ProviderConfidence.WithLabelValues(provider).Observe(confidence)
	}
}

// RecordProviderError records a provider failure by type.
func (m *Metrics) RecordProviderError(provider, errorType string) {
	m.ProviderErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordConsensus records a completed aggregation.
func (m *Metrics) RecordConsensus(tier string, agreement float64) {
	m.ConsensusTotal.WithLabelValues(tier).Inc()
	m.ConsensusAgreement.WithLabelValues().Observe(agreement)
}

// RecordCacheRequest records a cache hit or miss.
func (m *Metrics) RecordCacheRequest(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

// RecordPrediction records a hybrid prediction.
func (m *Metrics) RecordPrediction(winner string, confidence, consensusScore float64) {
	m.PredictionsTotal.WithLabelValues(winner).Inc()
	m.PredictionConfidence.WithLabelValues().Observe(confidence)
	m.TierDisagreement.WithLabelValues().Observe(1 - consensusScore)
}

// RecordAnomaly records a flagged market anomaly.
func (m *Metrics) RecordAnomaly(kind, risk string, absDivergence float64) {
	m.AnomaliesTotal.WithLabelValues(kind, risk).Inc()
	m.DivergenceFound.WithLabelValues().Observe(absDivergence)
}

// RecordUpsetScore records a structural upset score.
func (m *Metrics) RecordUpsetScore(score float64) {
	m.UpsetScores.WithLabelValues().Observe(score)
}

// RecordPlan records a completed selection plan.
func (m *Metrics) RecordPlan(combinations int, cost decimal.Decimal, expectedProb float64) {
	m.PlansTotal.WithLabelValues().Inc()
	m.PlanCombinations.WithLabelValues().Observe(float64(combinations))
	m.PlanCost.WithLabelValues().Observe(DecimalToFloat64(cost))
	if expectedProb > 0 {
		m.SlateCoverage.WithLabelValues().Observe(expectedProb)
	}
}

// ObserveStage records one pipeline stage execution.
func (m *Metrics) ObserveStage(stage string, d time.Duration, ok bool) {
	status := "error"
	if ok {
		status = "ok"
	}
	m.StageLatency.WithLabelValues(stage, status).Observe(d.Seconds())
}

// ObserveRun records a full pipeline run.
func (m *Metrics) ObserveRun(elapsed time.Duration, matches int) {
	m.RunsTotal.WithLabelValues("complete").Inc()
	m.RunDuration.WithLabelValues().Observe(elapsed.Seconds())
	m.SlateSize.WithLabelValues().Set(float64(matches))
}

// DecimalToFloat64 safely converts decimal.Decimal to float64 for metrics.
func DecimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Global instance for convenience
var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default returns the default global metrics instance.
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}
