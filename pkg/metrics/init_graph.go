package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initGraphMetrics() {
	r.GraphNodesTotal = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "attendnet_graph_nodes_total",
			Help: "Number of nodes in the graph by kind",
		},
		[]string{"kind"},
	)

	r.GraphEdgesTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "attendnet_graph_edges_total",
			Help: "Number of patient-site edges in the graph",
		},
	)

	r.GraphBuildDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attendnet_graph_build_duration_seconds",
			Help:    "Graph construction duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
	)

	r.BackboneEdgesRetained = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "attendnet_backbone_edges_retained",
			Help: "Edges retained by the disparity filter",
		},
	)

	r.BackboneEdgesPruned = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "attendnet_backbone_edges_pruned",
			Help: "Edges pruned by the disparity filter",
		},
	)

	r.BackboneDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attendnet_backbone_duration_seconds",
			Help:    "Backbone extraction duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)
}
