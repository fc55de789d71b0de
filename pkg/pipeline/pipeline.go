package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/attendnet/pkg/algorithms"
	"github.com/dd0wney/attendnet/pkg/export"
	"github.com/dd0wney/attendnet/pkg/graph"
	"github.com/dd0wney/attendnet/pkg/logging"
	"github.com/dd0wney/attendnet/pkg/metrics"
	"github.com/dd0wney/attendnet/pkg/records"
	"github.com/dd0wney/attendnet/pkg/risk"
	"github.com/dd0wney/attendnet/pkg/source"
)

// Capacity guard sentinels. Runs that trip a limit fail during ingest,
// before any expensive stage starts.
var (
	ErrTooManyRecords = errors.New("record limit exceeded")
	ErrTooManyNodes   = errors.New("node limit exceeded")
)

// Options wires shared infrastructure into the pipeline. Nil fields fall
// back to package defaults.
type Options struct {
	Logger   logging.Logger
	Metrics  *metrics.Registry
	Registry *algorithms.StrategyRegistry

	// Progress, when set, receives stage state transitions as a run
	// advances: every stage pending up front, then running followed by
	// completed or failed. Called from the run goroutine.
	Progress func(stage, status string)
}

// Pipeline runs the full appointment network analysis.
type Pipeline struct {
	cfg      Config
	logger   logging.Logger
	metrics  *metrics.Registry
	registry *algorithms.StrategyRegistry
	progress func(stage, status string)
}

// New validates the configuration and builds a pipeline.
func New(cfg Config, opts Options) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultRegistry()
	}
	if opts.Registry == nil {
		opts.Registry = algorithms.DefaultStrategyRegistry()
	}
	return &Pipeline{
		cfg:      cfg,
		logger:   opts.Logger.With(logging.Component("pipeline")),
		metrics:  opts.Metrics,
		registry: opts.Registry,
		progress: opts.Progress,
	}, nil
}

// Config returns the validated configuration the pipeline runs with.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Run executes ingest, backbone, detection, risk and export in order and
// returns the run report. Explicit sinks override the configured export
// destinations. The report is returned alongside the error so failed runs
// still account for the stages that completed.
func (p *Pipeline) Run(ctx context.Context, src source.RecordSource, sinks ...export.Sink) (*Report, error) {
	runID := p.cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := p.logger.With(logging.RunID(runID))
	report := &Report{RunID: runID, StartedAt: time.Now().UTC()}
	for _, name := range stageOrder {
		p.notify(name, StagePending)
	}

	finish := func(err error) (*Report, error) {
		report.FinishedAt = time.Now().UTC()
		if err != nil {
			p.metrics.RecordPipelineRun("failure")
			return report, err
		}
		p.metrics.RecordPipelineRun("success")
		logger.Info("pipeline completed",
			logging.Records(report.Ingest.Accepted),
			logging.Communities(report.Detection.Communities),
			logging.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
		)
		return report, nil
	}

	g, err := p.ingest(ctx, src, logger, report)
	if err != nil {
		return finish(err)
	}

	backbone, err := p.extractBackbone(g, logger, report)
	if err != nil {
		return finish(err)
	}

	detection, err := p.detect(ctx, backbone.Graph, logger, report)
	if err != nil {
		return finish(err)
	}

	model, err := p.score(ctx, backbone.Graph, detection, logger, report)
	if err != nil {
		return finish(err)
	}

	if err := p.export(ctx, backbone.Graph, detection, model, runID, sinks, logger, report); err != nil {
		return finish(err)
	}
	return finish(nil)
}

func (p *Pipeline) notify(stage, status string) {
	if p.progress != nil {
		p.progress(stage, status)
	}
}

func (p *Pipeline) stageDone(report *Report, name string, start time.Time) {
	elapsed := time.Since(start)
	p.metrics.RecordStageDuration(name, elapsed)
	report.Stages = append(report.Stages, StageReport{Name: name, Status: StageCompleted, Duration: elapsed})
	p.notify(name, StageCompleted)
}

func (p *Pipeline) stageFailed(report *Report, name string, start time.Time, err error) {
	elapsed := time.Since(start)
	p.metrics.RecordStageDuration(name, elapsed)
	report.Stages = append(report.Stages, StageReport{Name: name, Status: StageFailed, Duration: elapsed, Err: err.Error()})
	p.notify(name, StageFailed)
}

func (p *Pipeline) newNormalizer() (*records.Normalizer, error) {
	if p.cfg.Privacy.PseudonymKey == "" {
		return records.NewNormalizer(), nil
	}
	pseudo, err := records.NewPseudonymizer([]byte(p.cfg.Privacy.PseudonymKey))
	if err != nil {
		return nil, err
	}
	return records.NewPseudonymizingNormalizer(pseudo), nil
}

// ingest streams rows from the source through the normalizer into the graph
// builder. Rejected rows are counted, never fatal; tripping a capacity
// limit is.
func (p *Pipeline) ingest(ctx context.Context, src source.RecordSource, logger logging.Logger, report *Report) (*graph.Bipartite, error) {
	timer := logging.StartStage(logger, StageIngest, logging.String("source", src.Name()))
	start := time.Now()
	p.notify(StageIngest, StageRunning)

	fail := func(err error) (*graph.Bipartite, error) {
		p.stageFailed(report, StageIngest, start, err)
		timer.Fail(err)
		return nil, err
	}

	normalizer, err := p.newNormalizer()
	if err != nil {
		return fail(err)
	}

	builder := graph.NewBuilder(graph.BuilderOptions{
		AgeBoundaries: p.cfg.Ages.Boundaries(),
		Logger:        logger,
		Metrics:       p.metrics,
	})

	ingest := IngestReport{
		RejectReasons: make(map[string]int),
		Warnings:      make(map[string]int),
	}
	err = src.Each(ctx, func(raw records.RawRecord) error {
		ingest.RowsRead++
		if p.cfg.Limits.MaxRecords > 0 && ingest.RowsRead > p.cfg.Limits.MaxRecords {
			return fmt.Errorf("%w: limit %d", ErrTooManyRecords, p.cfg.Limits.MaxRecords)
		}

		rec, warnings, err := normalizer.Normalize(raw)
		if err != nil {
			reason := records.RejectInvalidRecord
			var reject *records.RejectError
			if errors.As(err, &reject) {
				reason = reject.Reason
			}
			ingest.Rejected++
			ingest.RejectReasons[reason]++
			p.metrics.RecordRejected(reason)
			return nil
		}
		for _, w := range warnings {
			ingest.Warnings[w]++
		}

		if err := builder.Add(rec); err != nil {
			ingest.Rejected++
			ingest.RejectReasons["graph_rejected"]++
			p.metrics.RecordRejected("graph_rejected")
			return nil
		}
		ingest.Accepted++
		p.metrics.RecordAccepted(1)
		if rec.DNA() {
			ingest.DNACount++
			p.metrics.RecordDNA(1)
		}

		if p.cfg.Limits.MaxNodes > 0 && builder.NodeCount() > p.cfg.Limits.MaxNodes {
			return fmt.Errorf("%w: limit %d", ErrTooManyNodes, p.cfg.Limits.MaxNodes)
		}
		return nil
	})
	report.Ingest = ingest
	if err != nil {
		return fail(err)
	}

	g := builder.Finish()
	stats := g.Stats()
	report.Graph = GraphReport{
		Patients: int(stats.Patients),
		Sites:    int(stats.Sites),
		Edges:    int(stats.Edges),
	}

	p.stageDone(report, StageIngest, start)
	timer.Done(
		logging.Records(ingest.RowsRead),
		logging.Int("accepted", ingest.Accepted),
		logging.Int("rejected", ingest.Rejected),
		logging.Nodes(g.NodeCount()),
		logging.Edges(g.EdgeCount()),
	)
	return g, nil
}

func (p *Pipeline) extractBackbone(g *graph.Bipartite, logger logging.Logger, report *Report) (*algorithms.BackboneResult, error) {
	timer := logging.StartStage(logger, StageBackbone, logging.Float64("alpha", p.cfg.Backbone.Alpha))
	start := time.Now()
	p.notify(StageBackbone, StageRunning)

	result, err := algorithms.ExtractBackbone(g, algorithms.BackboneOptions{Alpha: p.cfg.Backbone.Alpha})
	if err != nil {
		p.stageFailed(report, StageBackbone, start, err)
		timer.Fail(err)
		return nil, err
	}

	report.Backbone = BackboneReport{
		Alpha:      result.Alpha,
		InputEdges: result.InputEdges,
		Retained:   result.Retained,
		Pruned:     result.Pruned,
	}
	p.metrics.ObserveBackbone(result.Retained, result.Pruned, time.Since(start))
	p.stageDone(report, StageBackbone, start)
	timer.Done(
		logging.Int("retained", result.Retained),
		logging.Int("pruned", result.Pruned),
	)
	return result, nil
}

func (p *Pipeline) detect(ctx context.Context, g *graph.Bipartite, logger logging.Logger, report *Report) (*algorithms.DetectionResult, error) {
	timer := logging.StartStage(logger, StageDetection)
	start := time.Now()
	p.notify(StageDetection, StageRunning)

	fail := func(err error) (*algorithms.DetectionResult, error) {
		p.stageFailed(report, StageDetection, start, err)
		timer.Fail(err)
		return nil, err
	}

	detector, err := algorithms.NewDetector(p.registry, algorithms.DetectorOptions{
		Strategies:       p.cfg.Detection.Strategies,
		Seed:             p.cfg.Detection.Seed,
		MaxIterations:    p.cfg.Detection.MaxIterations,
		StrategyTimeout:  time.Duration(p.cfg.Detection.StrategyTimeout),
		MinCommunitySize: p.cfg.Detection.MinCommunitySize,
		Workers:          p.cfg.Detection.Workers,
		Logger:           logger,
		Metrics:          p.metrics,
	})
	if err != nil {
		return fail(err)
	}

	result, err := detector.Detect(ctx, g)
	if err != nil {
		return fail(err)
	}

	report.Detection = DetectionReport{
		Strategy:    result.Strategy,
		Modularity:  result.Modularity,
		Communities: len(result.Communities),
		Degraded:    result.Degraded,
		Strategies:  result.Reports,
	}
	p.stageDone(report, StageDetection, start)
	timer.Done(
		logging.Strategy(result.Strategy),
		logging.Communities(len(result.Communities)),
		logging.Bool("degraded", result.Degraded),
	)
	return result, nil
}

func (p *Pipeline) score(ctx context.Context, g *graph.Bipartite, detection *algorithms.DetectionResult, logger logging.Logger, report *Report) (*risk.Model, error) {
	timer := logging.StartStage(logger, StageRisk)
	start := time.Now()
	p.notify(StageRisk, StageRunning)

	fail := func(err error) (*risk.Model, error) {
		p.stageFailed(report, StageRisk, start, err)
		timer.Fail(err)
		return nil, err
	}

	scorer, err := risk.NewScorer(risk.Options{
		Workers: p.cfg.Risk.Workers,
		Logger:  logger,
		Metrics: p.metrics,
	})
	if err != nil {
		return fail(err)
	}

	model, err := scorer.Score(ctx, g, detection)
	if err != nil {
		return fail(err)
	}

	var patients, sites int
	for _, entity := range model.Entities {
		switch entity.Kind {
		case graph.KindPatient:
			patients++
		case graph.KindSite:
			sites++
		}
	}
	report.Risk = RiskReport{
		PatientsScored:   patients,
		SitesScored:      sites,
		HighRiskPatients: model.PatientTierCounts()[risk.TierHigh],
		Thresholds:       model.Thresholds,
	}
	p.stageDone(report, StageRisk, start)
	timer.Done(
		logging.Int("patients", patients),
		logging.Int("sites", sites),
	)
	return model, nil
}

// export builds the document and writes it to the given sinks, or to the
// configured destinations when none are given.
func (p *Pipeline) export(ctx context.Context, g *graph.Bipartite, detection *algorithms.DetectionResult, model *risk.Model, runID string, sinks []export.Sink, logger logging.Logger, report *Report) error {
	timer := logging.StartStage(logger, StageExport)
	start := time.Now()
	p.notify(StageExport, StageRunning)

	fail := func(err error) error {
		p.stageFailed(report, StageExport, start, err)
		timer.Fail(err)
		return err
	}

	path := ""
	if len(sinks) == 0 {
		path = p.cfg.Export.Path
		sinks = append(sinks, &export.FileSink{Path: path, Compress: p.cfg.Export.Compress})
		if p.cfg.Export.S3.Bucket != "" {
			s3Sink, err := export.NewS3Sink(ctx, export.S3Options{
				Bucket:       p.cfg.Export.S3.Bucket,
				Key:          p.cfg.Export.S3.Key,
				Region:       p.cfg.Export.S3.Region,
				Endpoint:     p.cfg.Export.S3.Endpoint,
				AccessKey:    p.cfg.Export.S3.AccessKey,
				SecretKey:    p.cfg.Export.S3.SecretKey,
				UsePathStyle: p.cfg.Export.S3.UsePathStyle,
			})
			if err != nil {
				return fail(err)
			}
			sinks = append(sinks, s3Sink)
		}
	}

	doc := export.BuildDocument(g, detection, model, export.ProjectionOptions{RunID: runID})
	exporter := export.NewExporter(export.Options{Logger: logger, Metrics: p.metrics})
	if err := exporter.Export(ctx, doc, sinks...); err != nil {
		return fail(err)
	}

	names := make([]string, 0, len(sinks))
	for _, sink := range sinks {
		names = append(names, sink.Name())
	}
	report.Export = ExportReport{Sinks: names, Path: path}

	p.stageDone(report, StageExport, start)
	timer.Done(
		logging.Nodes(doc.Metadata.TotalNodes),
		logging.Edges(doc.Metadata.TotalEdges),
		logging.Communities(doc.Metadata.TotalCommunities),
	)
	return nil
}
