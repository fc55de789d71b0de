package graph

import (
	"time"

	"github.com/dd0wney/attendnet/pkg/logging"
	"github.com/dd0wney/attendnet/pkg/metrics"
	"github.com/dd0wney/attendnet/pkg/records"
)

// BuilderOptions configures graph construction.
type BuilderOptions struct {
	AgeBoundaries records.AgeBoundaries
	Logger        logging.Logger
	Metrics       *metrics.Registry
}

// DefaultBuilderOptions returns the standard builder configuration.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		AgeBoundaries: records.DefaultAgeBoundaries(),
		Logger:        logging.DefaultLogger(),
		Metrics:       metrics.DefaultRegistry(),
	}
}

// Builder accumulates normalized appointment records into a bipartite graph.
// Feed it records with Add, then call Finish exactly once to seal per-node
// counterparty counts and obtain the graph.
type Builder struct {
	graph   *Bipartite
	logger  logging.Logger
	metrics *metrics.Registry

	start    time.Time
	observed int
	dna      int
}

// NewBuilder creates a builder with an empty graph behind it.
func NewBuilder(opts BuilderOptions) *Builder {
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultRegistry()
	}
	boundaries := opts.AgeBoundaries
	if boundaries == (records.AgeBoundaries{}) {
		boundaries = records.DefaultAgeBoundaries()
	}
	return &Builder{
		graph:   NewBipartite(Options{AgeBoundaries: boundaries}),
		logger:  opts.Logger.With(logging.Component("graph")),
		metrics: opts.Metrics,
		start:   time.Now(),
	}
}

// Add folds one record into the graph.
func (b *Builder) Add(rec records.Record) error {
	if err := b.graph.Observe(rec); err != nil {
		return err
	}
	b.observed++
	if rec.DNA() {
		b.dna++
	}
	return nil
}

// AddAll folds a batch of records into the graph, stopping at the first
// failure.
func (b *Builder) AddAll(recs []records.Record) error {
	for _, rec := range recs {
		if err := b.Add(rec); err != nil {
			return err
		}
	}
	return nil
}

// Observed returns the number of records folded in so far.
func (b *Builder) Observed() int {
	return b.observed
}

// NodeCount returns the number of nodes in the graph so far.
func (b *Builder) NodeCount() int {
	return b.graph.NodeCount()
}

// Finish seals the graph and returns it. Unique counterparty counts are
// computed here so they reflect the complete record batch.
func (b *Builder) Finish() *Bipartite {
	b.graph.sealUniqueCounts()

	elapsed := time.Since(b.start)
	stats := b.graph.Stats()
	b.metrics.ObserveGraph(int(stats.Patients), int(stats.Sites), int(stats.Edges), elapsed)
	b.logger.Info("graph built",
		logging.Records(b.observed),
		logging.Int("dna", b.dna),
		logging.Int("patients", int(stats.Patients)),
		logging.Int("sites", int(stats.Sites)),
		logging.Edges(int(stats.Edges)),
		logging.Latency(elapsed),
	)
	return b.graph
}

// sealUniqueCounts copies each node's degree into its distinct counterparty
// field so the values survive backbone pruning.
func (g *Bipartite) sealUniqueCounts() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, node := range g.nodes {
		switch node.Kind {
		case KindPatient:
			node.UniqueSites = len(g.adjacency[id])
		case KindSite:
			node.UniquePatients = len(g.adjacency[id])
		}
	}
}
