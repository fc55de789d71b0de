package algorithms

import (
	"context"
	"sort"

	"github.com/dd0wney/attendnet/pkg/graph"
)

// GreedyModularity implements agglomerative modularity maximization: starting
// from singleton communities it repeatedly merges the connected pair with the
// largest modularity gain until no merge improves the score.
type GreedyModularity struct{}

// NewGreedyModularity returns the strategy.
func NewGreedyModularity() *GreedyModularity {
	return &GreedyModularity{}
}

// Name implements Strategy.
func (*GreedyModularity) Name() string {
	return "greedy_modularity"
}

// Detect implements Strategy.
func (*GreedyModularity) Detect(ctx context.Context, g *graph.Bipartite, opts StrategyOptions) (*Partition, error) {
	adj := g.Adjacency()

	nodes := make([]string, 0, len(adj))
	for id := range adj {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	var m2 float64
	for _, neighbours := range adj {
		for _, w := range neighbours {
			m2 += w
		}
	}

	// Singleton start. members holds live communities only.
	members := make(map[int][]string, len(nodes))
	community := make(map[string]int, len(nodes))
	for i, id := range nodes {
		members[i] = []string{id}
		community[id] = i
	}

	if m2 == 0 {
		// Edgeless graph: every partition scores zero, keep singletons.
		return &Partition{Assignment: community, Modularity: 0}, nil
	}

	// between[i][j] is the one-direction weight fraction between communities
	// i and j; a[i] is community i's share of total edge ends.
	between := make(map[int]map[int]float64, len(nodes))
	a := make(map[int]float64, len(nodes))
	for u, neighbours := range adj {
		cu := community[u]
		for v, w := range neighbours {
			a[cu] += w / m2
			if u < v {
				cv := community[v]
				addBetween(between, cu, cv, w/m2)
				addBetween(between, cv, cu, w/m2)
			}
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bestGain := 0.0
		bestI, bestJ := -1, -1
		for _, i := range sortedRowKeys(between) {
			row := between[i]
			for _, j := range sortedIntKeys(row) {
				if j <= i {
					continue
				}
				gain := 2 * (row[j] - a[i]*a[j])
				if gain > bestGain+1e-12 {
					bestGain = gain
					bestI, bestJ = i, j
				}
			}
		}
		if bestI < 0 {
			break // no merge improves modularity
		}
		mergeCommunities(between, a, members, community, bestI, bestJ)
	}

	return &Partition{
		Assignment: community,
		Modularity: Modularity(adj, community),
	}, nil
}

func addBetween(between map[int]map[int]float64, i, j int, w float64) {
	row, ok := between[i]
	if !ok {
		row = make(map[int]float64)
		between[i] = row
	}
	row[j] += w
}

// mergeCommunities folds community j into community i, combining adjacency
// rows and reassigning members.
func mergeCommunities(between map[int]map[int]float64, a map[int]float64, members map[int][]string, community map[string]int, i, j int) {
	for k, w := range between[j] {
		if k == i {
			continue
		}
		addBetween(between, i, k, w)
		addBetween(between, k, i, w)
		delete(between[k], j)
	}
	delete(between[i], j)
	delete(between, j)

	a[i] += a[j]
	delete(a, j)

	for _, node := range members[j] {
		community[node] = i
	}
	members[i] = append(members[i], members[j]...)
	delete(members, j)
}

func sortedRowKeys(m map[int]map[int]float64) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func sortedIntKeys(m map[int]float64) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
