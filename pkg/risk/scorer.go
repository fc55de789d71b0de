package risk

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dd0wney/attendnet/pkg/algorithms"
	"github.com/dd0wney/attendnet/pkg/graph"
	"github.com/dd0wney/attendnet/pkg/logging"
	"github.com/dd0wney/attendnet/pkg/metrics"
	"github.com/dd0wney/attendnet/pkg/parallel"
	"github.com/dd0wney/attendnet/pkg/records"
	"github.com/dd0wney/attendnet/pkg/validation"
)

// Options configures a Scorer.
type Options struct {
	// Workers bounds how many goroutines score entities concurrently.
	Workers int

	Logger  logging.Logger
	Metrics *metrics.Registry
}

// DefaultOptions returns the standard scorer configuration.
func DefaultOptions() Options {
	return Options{Workers: 4}
}

// Scorer computes the risk model for a graph and its selected partition.
type Scorer struct {
	opts    Options
	logger  logging.Logger
	metrics *metrics.Registry
}

// NewScorer validates the options and builds a scorer.
func NewScorer(opts Options) (*Scorer, error) {
	v := validation.NewConfigValidator("risk")
	v.Positive("workers", opts.Workers)
	if err := v.Validate(); err != nil {
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultRegistry()
	}
	return &Scorer{
		opts:    opts,
		logger:  opts.Logger.With(logging.Component("risk")),
		metrics: opts.Metrics,
	}, nil
}

// Score smooths every node of g, tiers patients and sites by the fixed cut
// points, then scores the communities of detection and tiers them by this
// run's quartiles. The graph is read, never modified.
func (s *Scorer) Score(ctx context.Context, g *graph.Bipartite, detection *algorithms.DetectionResult) (*Model, error) {
	start := time.Now()

	entities := s.scoreEntities(ctx, g)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	communities, thresholds := scoreCommunities(detection, entities, patientAgeGroups(g))

	model := &Model{
		Entities:    entities,
		Communities: communities,
		Thresholds:  thresholds,
	}

	patientTiers := model.PatientTierCounts()
	communityTiers := model.CommunityTierCounts()
	for _, tier := range []Tier{TierHigh, TierMedium, TierLow} {
		s.metrics.SetTierCount("patient", string(tier), patientTiers[tier])
		s.metrics.SetTierCount("community", string(tier), communityTiers[tier])
	}
	s.metrics.RecordEntityScored("patient", g.PatientCount())
	s.metrics.RecordEntityScored("site", g.SiteCount())
	s.metrics.ObserveRiskScoring(time.Since(start))

	s.logger.Info("risk model built",
		logging.Int("patients", g.PatientCount()),
		logging.Int("sites", g.SiteCount()),
		logging.Communities(len(communities)),
		logging.Int("high_risk_patients", patientTiers[TierHigh]),
		logging.Float64("threshold_high", thresholds.High),
		logging.Float64("threshold_low", thresholds.Low),
		logging.Latency(time.Since(start)),
	)
	return model, nil
}

// scoreEntities fans the node list out over the worker pool in contiguous
// chunks. Each chunk writes disjoint slice indices, so no locking is needed
// on the result.
func (s *Scorer) scoreEntities(ctx context.Context, g *graph.Bipartite) map[string]EntityScore {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return map[string]EntityScore{}
	}

	workers := s.opts.Workers
	if workers > len(nodes) {
		workers = len(nodes)
	}
	pool, err := parallel.NewWorkerPool(workers)
	if err != nil {
		pool = nil
	}

	scores := make([]EntityScore, len(nodes))
	chunk := (len(nodes) + workers - 1) / workers

	var wg sync.WaitGroup
	for lo := 0; lo < len(nodes); lo += chunk {
		hi := lo + chunk
		if hi > len(nodes) {
			hi = len(nodes)
		}
		lo, hi := lo, hi
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			for i := lo; i < hi; i++ {
				node := nodes[i]
				rate := SmoothedRate(node.DNACount, node.Appointments)
				scores[i] = EntityScore{
					ID:           node.ID,
					Kind:         node.Kind,
					SmoothedRate: rate,
					Tier:         ClassifyRate(rate),
				}
			}
		}
		if pool == nil || !pool.Submit(task) {
			task()
		}
	}
	wg.Wait()
	if pool != nil {
		pool.Close()
	}

	out := make(map[string]EntityScore, len(scores))
	for _, score := range scores {
		if score.ID != "" {
			out[score.ID] = score
		}
	}
	return out
}

func patientAgeGroups(g *graph.Bipartite) map[string]records.AgeGroup {
	patients := g.Patients()
	ages := make(map[string]records.AgeGroup, len(patients))
	for _, p := range patients {
		if p.AgeGroup == "" {
			ages[p.ID] = records.AgeGroupUnknown
		} else {
			ages[p.ID] = p.AgeGroup
		}
	}
	return ages
}

// scoreCommunities computes composite scores for every community, then
// derives the run's quartile thresholds from the full score distribution
// and tiers each community against them. Communities without patient
// members score 0 and still participate in the distribution.
func scoreCommunities(detection *algorithms.DetectionResult, entities map[string]EntityScore, ages map[string]records.AgeGroup) ([]*CommunityRisk, Thresholds) {
	if detection == nil || len(detection.Communities) == 0 {
		return nil, Thresholds{}
	}

	out := make([]*CommunityRisk, 0, len(detection.Communities))
	for _, community := range detection.Communities {
		out = append(out, scoreCommunity(community, entities, ages))
	}

	scores := make([]float64, len(out))
	for i, c := range out {
		scores[i] = c.Score
	}
	thresholds := Thresholds{
		High: Quantile(scores, 0.75),
		Low:  Quantile(scores, 0.25),
	}
	for _, c := range out {
		c.Tier = ClassifyScore(c.Score, thresholds)
	}
	return out, thresholds
}

func scoreCommunity(community *algorithms.Community, entities map[string]EntityScore, ages map[string]records.AgeGroup) *CommunityRisk {
	risk := &CommunityRisk{
		ID:               community.ID,
		Patients:         community.Patients,
		Sites:            community.Sites,
		Residual:         community.Residual,
		DominantAgeGroup: records.AgeGroupUnknown,
	}

	var rates []float64
	ageCounts := make(map[records.AgeGroup]int)
	for _, id := range community.Nodes {
		score, ok := entities[id]
		if !ok || score.Kind != graph.KindPatient {
			continue
		}
		rates = append(rates, score.SmoothedRate)
		switch score.Tier {
		case TierHigh:
			risk.HighRiskPatients++
		case TierMedium:
			risk.MediumRiskPatients++
		default:
			risk.LowRiskPatients++
		}
		ageCounts[ages[id]]++
	}

	if len(rates) > 0 {
		risk.AvgMemberRate = Mean(rates)
		risk.HighRiskShare = float64(risk.HighRiskPatients) / float64(len(rates))
		risk.Score = 0.7*risk.AvgMemberRate + 0.3*risk.HighRiskShare
		risk.DominantAgeGroup = dominantAgeGroup(ageCounts)
	}
	return risk
}

// dominantAgeGroup picks the most common band, breaking ties toward the
// lexicographically smallest name so runs are reproducible.
func dominantAgeGroup(counts map[records.AgeGroup]int) records.AgeGroup {
	groups := make([]string, 0, len(counts))
	for g := range counts {
		groups = append(groups, string(g))
	}
	sort.Strings(groups)

	dominant := records.AgeGroupUnknown
	best := 0
	for _, g := range groups {
		if counts[records.AgeGroup(g)] > best {
			best = counts[records.AgeGroup(g)]
			dominant = records.AgeGroup(g)
		}
	}
	return dominant
}
