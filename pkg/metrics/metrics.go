// Package metrics exposes prometheus instrumentation for every pipeline
// stage. A single Registry is shared across a run; binaries that want
// scraping expose DefaultRegistry through their own handler.
package metrics

import (
	"time"
)

// RecordAccepted counts records that passed normalization
func (r *Registry) RecordAccepted(n int) {
	r.RecordsProcessedTotal.WithLabelValues("accepted").Add(float64(n))
}

// RecordRejected counts a rejected record with its reason
func (r *Registry) RecordRejected(reason string) {
	r.RecordsProcessedTotal.WithLabelValues("rejected").Inc()
	r.RecordRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordDNA counts did-not-attend records
func (r *Registry) RecordDNA(n int) {
	r.RecordsDNATotal.Add(float64(n))
}

// ObserveGraph records the size of the built graph
func (r *Registry) ObserveGraph(patients, sites, edges int, duration time.Duration) {
	r.GraphNodesTotal.WithLabelValues("patient").Set(float64(patients))
	r.GraphNodesTotal.WithLabelValues("site").Set(float64(sites))
	r.GraphEdgesTotal.Set(float64(edges))
	r.GraphBuildDuration.Observe(duration.Seconds())
}

// ObserveBackbone records the outcome of backbone extraction
func (r *Registry) ObserveBackbone(retained, pruned int, duration time.Duration) {
	r.BackboneEdgesRetained.Set(float64(retained))
	r.BackboneEdgesPruned.Set(float64(pruned))
	r.BackboneDuration.Observe(duration.Seconds())
}

// RecordStrategyRun records a partition strategy execution
func (r *Registry) RecordStrategyRun(strategy, status string, duration time.Duration) {
	r.DetectionStrategyRuns.WithLabelValues(strategy, status).Inc()
	r.DetectionStrategyDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordModularity records the modularity a strategy achieved
func (r *Registry) RecordModularity(strategy string, modularity float64) {
	r.DetectionModularity.WithLabelValues(strategy).Set(modularity)
}

// RecordDetectionResult records the selected partition
func (r *Registry) RecordDetectionResult(communities int, degraded bool) {
	r.DetectionCommunitiesTotal.Set(float64(communities))
	if degraded {
		r.DetectionDegradedTotal.Inc()
	}
}

// RecordEntityScored counts scored entities by kind
func (r *Registry) RecordEntityScored(kind string, n int) {
	r.RiskEntitiesScored.WithLabelValues(kind).Add(float64(n))
}

// SetTierCount records how many entities landed in a tier
func (r *Registry) SetTierCount(kind, tier string, n int) {
	r.RiskTierTotal.WithLabelValues(kind, tier).Set(float64(n))
}

// ObserveRiskScoring records the scoring stage duration
func (r *Registry) ObserveRiskScoring(duration time.Duration) {
	r.RiskScoringDuration.Observe(duration.Seconds())
}

// RecordExport records a snapshot export attempt
func (r *Registry) RecordExport(sink, status string, bytes int, duration time.Duration) {
	r.ExportsTotal.WithLabelValues(sink, status).Inc()
	if bytes > 0 {
		r.ExportBytesWritten.Add(float64(bytes))
	}
	r.ExportDuration.Observe(duration.Seconds())
}

// RecordStageDuration records a pipeline stage duration
func (r *Registry) RecordStageDuration(stage string, duration time.Duration) {
	r.PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordPipelineRun records a completed run and stamps the completion time
func (r *Registry) RecordPipelineRun(status string) {
	r.PipelineRunsTotal.WithLabelValues(status).Inc()
	r.PipelineLastRunTimestamp.Set(float64(time.Now().Unix()))
}
