package algorithms

import (
	"fmt"
	"math"

	"github.com/dd0wney/attendnet/pkg/graph"
)

// BackboneOptions configures the disparity filter.
type BackboneOptions struct {
	// Alpha is the significance level; an edge survives when its disparity
	// p-value falls below it from either endpoint's perspective.
	Alpha float64
}

// DefaultBackboneOptions returns the standard filter configuration.
func DefaultBackboneOptions() BackboneOptions {
	return BackboneOptions{Alpha: 0.05}
}

// BackboneResult holds the pruned graph and filter counters.
type BackboneResult struct {
	Graph      *graph.Bipartite
	InputEdges int
	Retained   int
	Pruned     int
	Alpha      float64
}

// ExtractBackbone prunes statistically incidental edges with a disparity
// filter. For an edge of weight w on an endpoint with degree k and strength
// s, the p-value under a uniform null model is (1 - w/s)^(k-1); the edge is
// kept when either endpoint yields p < alpha. Every node survives, so pruned
// entities stay visible downstream as isolated entries.
func ExtractBackbone(g *graph.Bipartite, opts BackboneOptions) (*BackboneResult, error) {
	if opts.Alpha <= 0 || opts.Alpha > 1 {
		return nil, fmt.Errorf("backbone: alpha must be in (0, 1], got %g", opts.Alpha)
	}

	adj := g.Adjacency()
	strength := make(map[string]float64, len(adj))
	for id, neighbours := range adj {
		for _, w := range neighbours {
			strength[id] += w
		}
	}

	edges := g.Edges()
	keep := make([]graph.EdgeKey, 0, len(edges))
	for _, edge := range edges {
		w := float64(edge.Weight)
		if disparityPValue(w, strength[edge.PatientID], len(adj[edge.PatientID])) < opts.Alpha ||
			disparityPValue(w, strength[edge.SiteID], len(adj[edge.SiteID])) < opts.Alpha {
			keep = append(keep, edge.Key())
		}
	}

	return &BackboneResult{
		Graph:      g.Subgraph(keep),
		InputEdges: len(edges),
		Retained:   len(keep),
		Pruned:     len(edges) - len(keep),
		Alpha:      opts.Alpha,
	}, nil
}

// disparityPValue returns the probability of an edge at least this strong
// under uniformly distributed weight. Degree-1 endpoints always yield 1: a
// sole edge carries the node's whole strength by definition, so it offers no
// evidence of significance on its own.
func disparityPValue(w, s float64, k int) float64 {
	if k <= 1 || s <= 0 {
		return 1
	}
	return math.Pow(1-w/s, float64(k-1))
}
