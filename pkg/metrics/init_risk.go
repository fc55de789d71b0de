package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initRiskMetrics() {
	r.RiskEntitiesScored = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendnet_risk_entities_scored_total",
			Help: "Entities scored by kind",
		},
		[]string{"kind"},
	)

	r.RiskTierTotal = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "attendnet_risk_tier_total",
			Help: "Entities per risk tier on the last run",
		},
		[]string{"kind", "tier"},
	)

	r.RiskScoringDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attendnet_risk_scoring_duration_seconds",
			Help:    "Risk scoring duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)
}
