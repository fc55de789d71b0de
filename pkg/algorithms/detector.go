package algorithms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dd0wney/attendnet/pkg/graph"
	"github.com/dd0wney/attendnet/pkg/logging"
	"github.com/dd0wney/attendnet/pkg/metrics"
	"github.com/dd0wney/attendnet/pkg/parallel"
	"github.com/dd0wney/attendnet/pkg/validation"
)

// FallbackStrategyName labels the trivial single-community partition used
// when every real strategy fails.
const FallbackStrategyName = "fallback_single"

// DetectorOptions configures a detection run.
type DetectorOptions struct {
	// Strategies selects registered strategies by name; empty runs them all.
	Strategies []string
	// Seed feeds every strategy's randomized choices.
	Seed int64
	// MaxIterations bounds iterative strategies' sweeps.
	MaxIterations int
	// StrategyTimeout is the per-strategy cancellation budget.
	StrategyTimeout time.Duration
	// MinCommunitySize dissolves smaller communities into one residual
	// community after selection.
	MinCommunitySize int
	// Workers bounds how many strategies run concurrently.
	Workers int

	Logger  logging.Logger
	Metrics *metrics.Registry
}

// DefaultDetectorOptions returns the standard detector configuration.
func DefaultDetectorOptions() DetectorOptions {
	return DetectorOptions{
		Seed:             42,
		MaxIterations:    100,
		StrategyTimeout:  30 * time.Second,
		MinCommunitySize: 10,
		Workers:          4,
	}
}

// Detector runs registered strategies concurrently, scores each surviving
// partition by modularity and keeps the best one.
type Detector struct {
	registry *StrategyRegistry
	opts     DetectorOptions
	logger   logging.Logger
	metrics  *metrics.Registry
}

// NewDetector validates the options and builds a detector. Configuration
// problems are reported here, before any run starts.
func NewDetector(registry *StrategyRegistry, opts DetectorOptions) (*Detector, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, fmt.Errorf("detector: no strategies registered")
	}

	v := validation.NewConfigValidator("detector")
	v.Positive("min_community_size", opts.MinCommunitySize)
	v.Positive("max_iterations", opts.MaxIterations)
	v.Positive("workers", opts.Workers)
	v.MinDuration("strategy_timeout", opts.StrategyTimeout, time.Millisecond)
	for _, name := range opts.Strategies {
		name := name
		v.Custom("strategies", func() error {
			if _, ok := registry.Get(name); !ok {
				return fmt.Errorf("unknown strategy %q", name)
			}
			return nil
		})
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultRegistry()
	}
	return &Detector{
		registry: registry,
		opts:     opts,
		logger:   opts.Logger.With(logging.Component("detector")),
		metrics:  opts.Metrics,
	}, nil
}

// Detect partitions the graph. Individual strategy failures, timeouts and
// panics are recorded and excluded; only an empty strategy list after
// selection degrades to the trivial single-community fallback.
func (d *Detector) Detect(ctx context.Context, g *graph.Bipartite) (*DetectionResult, error) {
	names := d.opts.Strategies
	if len(names) == 0 {
		names = d.registry.Names()
	}

	if g.NodeCount() == 0 {
		d.logger.Info("empty graph, nothing to partition")
		return &DetectionResult{NodeCommunity: map[string]int{}}, nil
	}

	reports, partitions := d.runStrategies(ctx, g, names)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	best := selectBest(reports, partitions)

	var result *DetectionResult
	if best == "" {
		d.logger.Warn("all strategies failed, using single-community fallback")
		result = d.fallbackResult(g)
	} else {
		result = &DetectionResult{
			Modularity: partitions[best].Modularity,
			Strategy:   best,
		}
		result.Communities, result.NodeCommunity = buildCommunities(g, partitions[best].Assignment)
	}
	result.Reports = reports

	dissolveUndersized(result, d.opts.MinCommunitySize)

	d.metrics.RecordDetectionResult(len(result.Communities), result.Degraded)
	d.logger.Info("partition selected",
		logging.Strategy(result.Strategy),
		logging.Float64("modularity", result.Modularity),
		logging.Communities(len(result.Communities)),
		logging.Bool("degraded", result.Degraded),
	)
	return result, nil
}

// strategyOutcome pairs a strategy's report with its partition when it
// produced one.
type strategyOutcome struct {
	report    StrategyReport
	partition *Partition
}

// runStrategies fans the named strategies out over a bounded worker pool and
// collects a report per strategy. Panics and timeouts are converted into
// failure reports rather than propagated.
func (d *Detector) runStrategies(ctx context.Context, g *graph.Bipartite, names []string) ([]StrategyReport, map[string]*Partition) {
	workers := d.opts.Workers
	if workers > len(names) {
		workers = len(names)
	}
	pool, err := parallel.NewWorkerPool(workers)
	if err != nil {
		// Options are validated at construction, so this only trips on an
		// absurd worker count; run sequentially instead.
		pool = nil
	}

	results := make(chan strategyOutcome, len(names))

	for _, name := range names {
		strategy, ok := d.registry.Get(name)
		if !ok {
			results <- strategyOutcome{report: StrategyReport{
				Name:   name,
				Status: StrategyFailed,
				Err:    "not registered",
			}}
			continue
		}

		task := func() {
			results <- d.runOne(ctx, g, strategy)
		}
		if pool == nil || !pool.Submit(task) {
			task()
		}
	}

	reports := make([]StrategyReport, 0, len(names))
	partitions := make(map[string]*Partition, len(names))
	for i := 0; i < len(names); i++ {
		out := <-results
		reports = append(reports, out.report)
		if out.partition != nil {
			partitions[out.report.Name] = out.partition
		}
	}
	if pool != nil {
		pool.Close()
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].Name < reports[j].Name })
	for _, rep := range reports {
		d.metrics.RecordStrategyRun(rep.Name, rep.Status, rep.Duration)
		if rep.Status == StrategySucceeded {
			d.metrics.RecordModularity(rep.Name, rep.Modularity)
			d.logger.Debug("strategy finished",
				logging.Strategy(rep.Name),
				logging.Float64("modularity", rep.Modularity),
				logging.Communities(rep.Communities),
				logging.Latency(rep.Duration),
			)
		} else {
			d.logger.Warn("strategy excluded",
				logging.Strategy(rep.Name),
				logging.String("status", rep.Status),
				logging.String("error", rep.Err),
			)
		}
	}
	return reports, partitions
}

// runOne executes a single strategy under its timeout budget and classifies
// the outcome.
func (d *Detector) runOne(ctx context.Context, g *graph.Bipartite, strategy Strategy) (out strategyOutcome) {
	out.report.Name = strategy.Name()
	start := time.Now()

	defer func() {
		out.report.Duration = time.Since(start)
		if r := recover(); r != nil {
			out.report.Status = StrategyPanicked
			out.report.Err = fmt.Sprint(r)
			out.partition = nil
		}
	}()

	tctx, cancel := context.WithTimeout(ctx, d.opts.StrategyTimeout)
	defer cancel()

	partition, err := strategy.Detect(tctx, g, StrategyOptions{
		Seed:          d.opts.Seed,
		MaxIterations: d.opts.MaxIterations,
	})
	switch {
	case err == nil:
		if verr := verifyCoverage(g, partition); verr != nil {
			out.report.Status = StrategyFailed
			out.report.Err = verr.Error()
			return out
		}
		out.report.Status = StrategySucceeded
		out.report.Modularity = partition.Modularity
		out.report.Communities = countCommunities(partition.Assignment)
		out.partition = partition
	case errors.Is(err, context.DeadlineExceeded):
		out.report.Status = StrategyTimedOut
		out.report.Err = err.Error()
	default:
		out.report.Status = StrategyFailed
		out.report.Err = err.Error()
	}
	return out
}

// verifyCoverage rejects partitions that miss nodes or invent them.
func verifyCoverage(g *graph.Bipartite, p *Partition) error {
	if p == nil || p.Assignment == nil {
		return fmt.Errorf("nil partition")
	}
	ids := g.NodeIDs()
	if len(p.Assignment) != len(ids) {
		return fmt.Errorf("partition covers %d of %d nodes", len(p.Assignment), len(ids))
	}
	for _, id := range ids {
		if _, ok := p.Assignment[id]; !ok {
			return fmt.Errorf("partition misses node %s", id)
		}
	}
	return nil
}

func countCommunities(assignment map[string]int) int {
	seen := make(map[int]struct{})
	for _, c := range assignment {
		seen[c] = struct{}{}
	}
	return len(seen)
}

// selectBest picks the succeeding strategy with the highest modularity,
// breaking ties toward the alphabetically first name.
func selectBest(reports []StrategyReport, partitions map[string]*Partition) string {
	best := ""
	bestScore := 0.0
	for _, rep := range reports {
		if rep.Status != StrategySucceeded {
			continue
		}
		if _, ok := partitions[rep.Name]; !ok {
			continue
		}
		if best == "" || rep.Modularity > bestScore {
			best = rep.Name
			bestScore = rep.Modularity
		}
	}
	return best
}

// fallbackResult puts every node into one community and flags the run
// degraded.
func (d *Detector) fallbackResult(g *graph.Bipartite) *DetectionResult {
	assignment := make(map[string]int)
	for _, id := range g.NodeIDs() {
		assignment[id] = 0
	}
	result := &DetectionResult{
		Modularity: Modularity(g.Adjacency(), assignment),
		Strategy:   FallbackStrategyName,
		Degraded:   true,
	}
	result.Communities, result.NodeCommunity = buildCommunities(g, assignment)
	return result
}

// buildCommunities turns a raw assignment into compact, deterministic
// communities: members sorted, communities ordered by their smallest member
// and renumbered from zero.
func buildCommunities(g *graph.Bipartite, assignment map[string]int) ([]*Community, map[string]int) {
	byLabel := make(map[int][]string)
	for id, label := range assignment {
		byLabel[label] = append(byLabel[label], id)
	}

	communities := make([]*Community, 0, len(byLabel))
	for _, members := range byLabel {
		sort.Strings(members)
		communities = append(communities, newCommunity(members))
	}
	sort.Slice(communities, func(i, j int) bool {
		return communities[i].Nodes[0] < communities[j].Nodes[0]
	})

	nodeCommunity := make(map[string]int, len(assignment))
	for i, community := range communities {
		community.ID = i
		for _, id := range community.Nodes {
			nodeCommunity[id] = i
		}
	}
	return communities, nodeCommunity
}

func newCommunity(members []string) *Community {
	c := &Community{Nodes: members, Size: len(members)}
	for _, id := range members {
		if kind, ok := graph.KindOf(id); ok && kind == graph.KindPatient {
			c.Patients++
		} else {
			c.Sites++
		}
	}
	return c
}

// dissolveUndersized folds communities below the minimum size into a single
// residual community appended after the surviving ones, preserving total
// node coverage.
func dissolveUndersized(result *DetectionResult, minSize int) {
	if minSize <= 1 || len(result.Communities) == 0 {
		return
	}

	kept := make([]*Community, 0, len(result.Communities))
	var residualNodes []string
	for _, community := range result.Communities {
		if community.Size >= minSize {
			kept = append(kept, community)
		} else {
			residualNodes = append(residualNodes, community.Nodes...)
		}
	}
	if len(residualNodes) == 0 {
		return
	}

	sort.Strings(residualNodes)
	residual := newCommunity(residualNodes)
	residual.Residual = true
	kept = append(kept, residual)

	nodeCommunity := make(map[string]int, len(result.NodeCommunity))
	for i, community := range kept {
		community.ID = i
		for _, id := range community.Nodes {
			nodeCommunity[id] = i
		}
	}
	result.Communities = kept
	result.NodeCommunity = nodeCommunity
}
