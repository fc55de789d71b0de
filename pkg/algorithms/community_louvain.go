package algorithms

import (
	"context"
	"math/rand"
	"sort"

	"github.com/dd0wney/attendnet/pkg/graph"
)

// Louvain implements multi-level modularity optimization: local node moves
// until no move improves the score, then communities collapse into
// supernodes and the process repeats on the condensed graph.
type Louvain struct{}

// NewLouvain returns the strategy.
func NewLouvain() *Louvain {
	return &Louvain{}
}

// Name implements Strategy.
func (*Louvain) Name() string {
	return "louvain"
}

// louvainLevel is one condensed graph. Edge weights are kept in ordered-pair
// form: neighbours[i][j] and neighbours[j][i] both hold the weight between i
// and j, and self[i] holds the full internal ordered-pair weight of the
// collapsed community, so strengths and modularity stay exact across levels.
type louvainLevel struct {
	neighbours []map[int]float64
	self       []float64
	strength   []float64
}

// Detect implements Strategy.
func (*Louvain) Detect(ctx context.Context, g *graph.Bipartite, opts StrategyOptions) (*Partition, error) {
	adj := g.Adjacency()

	nodes := make([]string, 0, len(adj))
	for id := range adj {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	index := make(map[string]int, len(nodes))
	for i, id := range nodes {
		index[id] = i
	}

	level := &louvainLevel{
		neighbours: make([]map[int]float64, len(nodes)),
		self:       make([]float64, len(nodes)),
		strength:   make([]float64, len(nodes)),
	}
	var m2 float64
	for i, id := range nodes {
		level.neighbours[i] = make(map[int]float64, len(adj[id]))
		for neighbour, w := range adj[id] {
			level.neighbours[i][index[neighbour]] = w
			level.strength[i] += w
			m2 += w
		}
	}

	// nodeComm maps each original node to its community in the current level.
	nodeComm := make([]int, len(nodes))
	for i := range nodeComm {
		nodeComm[i] = i
	}

	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 100
	}

	if m2 > 0 {
		rng := rand.New(rand.NewSource(opts.Seed))
		const maxLevels = 64
		for lvl := 0; lvl < maxLevels; lvl++ {
			comm, moved, err := localMoving(ctx, level, m2, rng, maxIterations)
			if err != nil {
				return nil, err
			}
			if !moved {
				break
			}
			var renumber []int
			level, renumber = condense(level, comm)
			for i := range nodeComm {
				nodeComm[i] = renumber[comm[nodeComm[i]]]
			}
			if len(level.strength) == 1 {
				break
			}
		}
	}

	assignment := make(map[string]int, len(nodes))
	for i, id := range nodes {
		assignment[id] = nodeComm[i]
	}
	return &Partition{
		Assignment: assignment,
		Modularity: Modularity(adj, assignment),
	}, nil
}

// localMoving sweeps nodes in shuffled order, moving each to the adjacent
// community with the best modularity gain, until a sweep changes nothing.
func localMoving(ctx context.Context, level *louvainLevel, m2 float64, rng *rand.Rand, maxSweeps int) ([]int, bool, error) {
	n := len(level.strength)
	comm := make([]int, n)
	commStrength := make([]float64, n)
	for i := 0; i < n; i++ {
		comm[i] = i
		commStrength[i] = level.strength[i]
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	anyMoved := false
	for sweep := 0; sweep < maxSweeps; sweep++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		rng.Shuffle(n, func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		movedThisSweep := false
		for _, i := range order {
			cur := comm[i]

			// Weight from i toward each adjacent community. The self
			// weight moves with the node and cancels out of every
			// candidate's score.
			links := make(map[int]float64, len(level.neighbours[i]))
			for j, w := range level.neighbours[i] {
				links[comm[j]] += w
			}

			commStrength[cur] -= level.strength[i]

			best := cur
			bestScore := links[cur] - commStrength[cur]*level.strength[i]/m2
			for _, candidate := range sortedIntKeys(links) {
				if candidate == cur {
					continue
				}
				score := links[candidate] - commStrength[candidate]*level.strength[i]/m2
				if score > bestScore+1e-12 {
					best = candidate
					bestScore = score
				}
			}

			comm[i] = best
			commStrength[best] += level.strength[i]
			if best != cur {
				movedThisSweep = true
				anyMoved = true
			}
		}
		if !movedThisSweep {
			break
		}
	}
	return comm, anyMoved, nil
}

// condense collapses each community into one supernode and returns the new
// level plus the community-to-supernode renumbering.
func condense(level *louvainLevel, comm []int) (*louvainLevel, []int) {
	renumber := make([]int, len(comm))
	for i := range renumber {
		renumber[i] = -1
	}
	next := 0
	for _, c := range sortedUnique(comm) {
		renumber[c] = next
		next++
	}

	condensed := &louvainLevel{
		neighbours: make([]map[int]float64, next),
		self:       make([]float64, next),
		strength:   make([]float64, next),
	}
	for i := range condensed.neighbours {
		condensed.neighbours[i] = make(map[int]float64)
	}

	for i := range comm {
		ci := renumber[comm[i]]
		condensed.self[ci] += level.self[i]
		condensed.strength[ci] += level.strength[i]
		for j, w := range level.neighbours[i] {
			cj := renumber[comm[j]]
			if cj == ci {
				condensed.self[ci] += w
			} else {
				condensed.neighbours[ci][cj] += w
			}
		}
	}
	return condensed, renumber
}

func sortedUnique(values []int) []int {
	seen := make(map[int]struct{}, len(values))
	out := make([]int, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; !dup {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
