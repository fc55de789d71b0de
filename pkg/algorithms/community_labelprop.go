package algorithms

import (
	"context"
	"math/rand"
	"sort"

	"github.com/dd0wney/attendnet/pkg/graph"
)

// LabelPropagation implements weighted label propagation. Fast and scalable;
// every node repeatedly adopts the label carrying the most incident weight
// until labels stabilize.
type LabelPropagation struct{}

// NewLabelPropagation returns the strategy.
func NewLabelPropagation() *LabelPropagation {
	return &LabelPropagation{}
}

// Name implements Strategy.
func (*LabelPropagation) Name() string {
	return "label_propagation"
}

// Detect implements Strategy.
func (*LabelPropagation) Detect(ctx context.Context, g *graph.Bipartite, opts StrategyOptions) (*Partition, error) {
	adj := g.Adjacency()

	nodes := make([]string, 0, len(adj))
	for id := range adj {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	// Initialize: each node in its own community.
	labels := make(map[string]int, len(nodes))
	for i, id := range nodes {
		labels[id] = i
	}

	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 100
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	order := make([]string, len(nodes))
	copy(order, nodes)

	for iter := 0; iter < maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		changed := false
		for _, id := range order {
			best, ok := heaviestLabel(adj[id], labels)
			if ok && best != labels[id] {
				labels[id] = best
				changed = true
			}
		}
		if !changed {
			break // converged
		}
	}

	return &Partition{
		Assignment: labels,
		Modularity: Modularity(adj, labels),
	}, nil
}

// heaviestLabel returns the label with the most incident weight among the
// node's neighbours, breaking ties toward the smallest label so sweeps stay
// reproducible.
func heaviestLabel(neighbours map[string]float64, labels map[string]int) (int, bool) {
	if len(neighbours) == 0 {
		return 0, false
	}
	weightByLabel := make(map[int]float64, len(neighbours))
	for neighbour, w := range neighbours {
		weightByLabel[labels[neighbour]] += w
	}

	best := 0
	bestWeight := -1.0
	for label, w := range weightByLabel {
		if w > bestWeight || (w == bestWeight && label < best) {
			best = label
			bestWeight = w
		}
	}
	return best, true
}
