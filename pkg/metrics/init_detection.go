package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initDetectionMetrics() {
	r.DetectionStrategyRuns = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendnet_detection_strategy_runs_total",
			Help: "Total partition strategy executions by outcome",
		},
		[]string{"strategy", "status"},
	)

	r.DetectionStrategyDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attendnet_detection_strategy_duration_seconds",
			Help:    "Partition strategy duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1.0, 5.0, 15.0, 60.0},
		},
		[]string{"strategy"},
	)

	r.DetectionModularity = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "attendnet_detection_modularity",
			Help: "Modularity achieved by each strategy on the last run",
		},
		[]string{"strategy"},
	)

	r.DetectionCommunitiesTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "attendnet_detection_communities_total",
			Help: "Number of communities in the selected partition",
		},
	)

	r.DetectionDegradedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "attendnet_detection_degraded_total",
			Help: "Runs that fell back to the trivial single-community partition",
		},
	)
}
