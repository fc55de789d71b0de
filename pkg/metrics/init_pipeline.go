package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initPipelineMetrics() {
	r.PipelineRunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendnet_pipeline_runs_total",
			Help: "Pipeline runs by outcome",
		},
		[]string{"status"},
	)

	r.PipelineStageDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attendnet_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1.0, 5.0, 15.0, 60.0, 300.0},
		},
		[]string{"stage"},
	)

	r.PipelineLastRunTimestamp = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "attendnet_pipeline_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed pipeline run",
		},
	)
}
