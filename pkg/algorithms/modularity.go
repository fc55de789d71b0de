package algorithms

// Modularity computes the weighted Newman modularity of a node assignment
// over an undirected weighted adjacency map. Nodes missing from the
// assignment contribute nothing; an empty or edgeless graph scores zero.
func Modularity(adj map[string]map[string]float64, assignment map[string]int) float64 {
	// m2 is twice the total edge weight (each edge appears in both
	// directions of the adjacency map).
	var m2 float64
	for _, neighbours := range adj {
		for _, w := range neighbours {
			m2 += w
		}
	}
	if m2 == 0 {
		return 0
	}

	// Per-community internal weight and total incident strength.
	internal := make(map[int]float64)
	strength := make(map[int]float64)
	for node, neighbours := range adj {
		community, ok := assignment[node]
		if !ok {
			continue
		}
		for neighbour, w := range neighbours {
			strength[community] += w
			if other, ok := assignment[neighbour]; ok && other == community {
				internal[community] += w
			}
		}
	}

	var q float64
	for community, s := range strength {
		frac := s / m2
		q += internal[community]/m2 - frac*frac
	}
	return q
}
