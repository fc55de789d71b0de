package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initExportMetrics() {
	r.ExportsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendnet_exports_total",
			Help: "Snapshot exports by sink and outcome",
		},
		[]string{"sink", "status"},
	)

	r.ExportBytesWritten = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "attendnet_export_bytes_written_total",
			Help: "Bytes written across all snapshot exports",
		},
	)

	r.ExportDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attendnet_export_duration_seconds",
			Help:    "Snapshot export duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)
}
