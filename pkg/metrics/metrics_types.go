package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the pipeline
type Registry struct {
	// Record Metrics
	RecordsProcessedTotal *prometheus.CounterVec
	RecordRejectionsTotal *prometheus.CounterVec
	RecordsDNATotal       prometheus.Counter

	// Graph Metrics
	GraphNodesTotal    *prometheus.GaugeVec
	GraphEdgesTotal    prometheus.Gauge
	GraphBuildDuration prometheus.Histogram

	// Backbone Metrics
	BackboneEdgesRetained prometheus.Gauge
	BackboneEdgesPruned   prometheus.Gauge
	BackboneDuration      prometheus.Histogram

	// Detection Metrics
	DetectionStrategyRuns     *prometheus.CounterVec
	DetectionStrategyDuration *prometheus.HistogramVec
	DetectionModularity       *prometheus.GaugeVec
	DetectionCommunitiesTotal prometheus.Gauge
	DetectionDegradedTotal    prometheus.Counter

	// Risk Metrics
	RiskEntitiesScored *prometheus.CounterVec
	RiskTierTotal      *prometheus.GaugeVec
	RiskScoringDuration prometheus.Histogram

	// Export Metrics
	ExportsTotal       *prometheus.CounterVec
	ExportBytesWritten prometheus.Counter
	ExportDuration     prometheus.Histogram

	// Pipeline Metrics
	PipelineRunsTotal        *prometheus.CounterVec
	PipelineStageDuration    *prometheus.HistogramVec
	PipelineLastRunTimestamp prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initRecordMetrics()
	r.initGraphMetrics()
	r.initDetectionMetrics()
	r.initRiskMetrics()
	r.initExportMetrics()
	r.initPipelineMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
