package algorithms

import (
	"container/list"
	"context"
	"sort"

	"github.com/dd0wney/attendnet/pkg/graph"
)

// ConnectedComponents treats each connected component as a community. It
// never beats a real partitioner on modularity but it cannot fail or
// misconverge, so it gives every run a cheap baseline partition.
type ConnectedComponents struct{}

// NewConnectedComponents returns the strategy.
func NewConnectedComponents() *ConnectedComponents {
	return &ConnectedComponents{}
}

// Name implements Strategy.
func (*ConnectedComponents) Name() string {
	return "connected_components"
}

// Detect implements Strategy.
func (*ConnectedComponents) Detect(ctx context.Context, g *graph.Bipartite, opts StrategyOptions) (*Partition, error) {
	adj := g.Adjacency()

	nodes := make([]string, 0, len(adj))
	for id := range adj {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	visited := make(map[string]bool, len(nodes))
	assignment := make(map[string]int, len(nodes))
	componentID := 0

	// BFS from each unvisited node.
	for _, start := range nodes {
		if visited[start] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		queue := list.New()
		queue.PushBack(start)
		visited[start] = true

		for queue.Len() > 0 {
			id, ok := queue.Remove(queue.Front()).(string)
			if !ok {
				continue
			}
			assignment[id] = componentID

			for neighbour := range adj[id] {
				if !visited[neighbour] {
					visited[neighbour] = true
					queue.PushBack(neighbour)
				}
			}
		}
		componentID++
	}

	return &Partition{
		Assignment: assignment,
		Modularity: Modularity(adj, assignment),
	}, nil
}
