package algorithms

import (
	"fmt"
	"sort"
	"sync"
)

// StrategyRegistry manages the available partitioning strategies by name.
type StrategyRegistry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	order      []string
}

// NewStrategyRegistry creates an empty registry.
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{strategies: make(map[string]Strategy)}
}

// DefaultStrategyRegistry returns a registry holding every built-in strategy.
func DefaultStrategyRegistry() *StrategyRegistry {
	r := NewStrategyRegistry()
	// Built-ins cannot collide, ignore the duplicate errors.
	_ = r.Register(NewLabelPropagation())
	_ = r.Register(NewGreedyModularity())
	_ = r.Register(NewLouvain())
	_ = r.Register(NewConnectedComponents())
	return r
}

// Register adds a strategy. Registering a duplicate name is an error.
func (r *StrategyRegistry) Register(s Strategy) error {
	if s == nil || s.Name() == "" {
		return fmt.Errorf("register strategy: missing name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.strategies[s.Name()]; exists {
		return fmt.Errorf("register strategy: %q already registered", s.Name())
	}
	r.strategies[s.Name()] = s
	r.order = append(r.order, s.Name())
	return nil
}

// Get returns the strategy registered under name.
func (r *StrategyRegistry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[name]
	return s, ok
}

// Names returns all registered strategy names sorted alphabetically.
func (r *StrategyRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered strategies.
func (r *StrategyRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strategies)
}
