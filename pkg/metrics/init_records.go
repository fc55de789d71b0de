package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initRecordMetrics() {
	r.RecordsProcessedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendnet_records_processed_total",
			Help: "Total number of appointment records processed",
		},
		[]string{"status"},
	)

	r.RecordRejectionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendnet_record_rejections_total",
			Help: "Total number of rejected records by reason",
		},
		[]string{"reason"},
	)

	r.RecordsDNATotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "attendnet_records_dna_total",
			Help: "Total number of records flagged as did-not-attend",
		},
	)
}
