package algorithms

import (
	"context"
	"time"

	"github.com/dd0wney/attendnet/pkg/graph"
)

// Community represents a detected community
type Community struct {
	ID       int
	Nodes    []string // sorted member node IDs
	Size     int
	Patients int
	Sites    int
	Residual bool // true for the merged remainder of undersized communities
}

// DetectionResult contains the selected partition after size filtering
type DetectionResult struct {
	Communities   []*Community
	Modularity    float64        // quality measure of the selected partition
	NodeCommunity map[string]int // node ID -> community ID
	Strategy      string         // winning strategy name
	Degraded      bool           // true when the trivial fallback was used
	Reports       []StrategyReport
}

// Partition is a strategy's raw output: a complete node assignment plus the
// modularity of that assignment.
type Partition struct {
	Assignment map[string]int
	Modularity float64
}

// Strategy statuses reported after a detection run.
const (
	StrategySucceeded = "success"
	StrategyFailed    = "error"
	StrategyTimedOut  = "timeout"
	StrategyPanicked  = "panic"
)

// StrategyReport records one strategy's outcome for the processing report.
type StrategyReport struct {
	Name        string
	Status      string
	Modularity  float64
	Communities int
	Duration    time.Duration
	Err         string
}

// StrategyOptions carries the tunables every strategy must honor.
type StrategyOptions struct {
	Seed          int64
	MaxIterations int
}

// Strategy partitions a graph into communities. Implementations must honor
// ctx cancellation, accept the seed for any randomized choices, and return a
// partition covering every node exactly once.
type Strategy interface {
	Name() string
	Detect(ctx context.Context, g *graph.Bipartite, opts StrategyOptions) (*Partition, error)
}
