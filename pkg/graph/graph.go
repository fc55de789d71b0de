// Package graph holds the bipartite patient-site appointment graph.
//
// Nodes live in a single ID space namespaced by kind (P_ for patients, S_
// for sites) and every edge connects exactly one patient to one site. Edge
// weights count appointments between the pair and never decrease; the DNA
// count on an edge never exceeds its weight.
package graph

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dd0wney/attendnet/pkg/records"
)

// Options configures a Bipartite graph.
type Options struct {
	// AgeBoundaries classifies patient ages into cohort groups.
	AgeBoundaries records.AgeBoundaries
}

// DefaultOptions returns the standard graph configuration.
func DefaultOptions() Options {
	return Options{AgeBoundaries: records.DefaultAgeBoundaries()}
}

// Bipartite is an in-memory patient-site graph with concurrent read access.
// All accessors return clones so callers can never mutate internal state.
type Bipartite struct {
	mu sync.RWMutex

	opts      Options
	nodes     map[string]*Node
	edges     map[EdgeKey]*Edge
	adjacency map[string]map[string]struct{} // node ID -> neighbour IDs

	stats Stats
}

// NewBipartite creates an empty graph.
func NewBipartite(opts Options) *Bipartite {
	return &Bipartite{
		opts:      opts,
		nodes:     make(map[string]*Node),
		edges:     make(map[EdgeKey]*Edge),
		adjacency: make(map[string]map[string]struct{}),
	}
}

// Observe folds one normalized appointment record into the graph: both
// endpoint nodes are created on first sight, the pair's edge weight grows by
// one and DNA counts propagate to the edge and both endpoints.
func (g *Bipartite) Observe(rec records.Record) error {
	if rec.PatientKey == "" {
		return NewError("Observe").Patient("").Cause(ErrEmptyKey).Err()
	}
	if rec.SiteCode == "" {
		return NewError("Observe").Site("").Cause(ErrEmptyKey).Err()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	patient := g.upsertPatient(rec)
	site := g.upsertSite(rec)
	g.upsertEdge(patient.ID, site.ID)

	key := EdgeKey{PatientID: patient.ID, SiteID: site.ID}
	edge := g.edges[key]
	if edge.FirstDate.IsZero() {
		edge.FirstDate = rec.Date
	}
	if edge.TreatmentFunction == "" {
		edge.TreatmentFunction = rec.TreatmentFunction
	}

	dna := rec.DNA()
	g.accumulate(patient, site, key, 1, boolToInt(dna))

	atomic.AddUint64(&g.stats.Appointments, 1)
	if dna {
		atomic.AddUint64(&g.stats.DNATotal, 1)
	}
	return nil
}

// AddPatient creates a patient node if it does not already exist and returns
// a clone of it.
func (g *Bipartite) AddPatient(key string) (*Node, error) {
	if key == "" {
		return nil, NewError("AddPatient").Patient("").Cause(ErrEmptyKey).Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	id := PatientID(key)
	node, exists := g.nodes[id]
	if !exists {
		node = g.createNode(id, KindPatient, key)
	}
	return node.Clone(), nil
}

// AddSite creates a site node if it does not already exist and returns a
// clone of it.
func (g *Bipartite) AddSite(code string) (*Node, error) {
	if code == "" {
		return nil, NewError("AddSite").Site("").Cause(ErrEmptyKey).Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	id := SiteID(code)
	node, exists := g.nodes[id]
	if !exists {
		node = g.createNode(id, KindSite, code)
	}
	return node.Clone(), nil
}

// AddEdge adds appointment counts between two existing nodes. The from node
// must be a patient and the to node a site; anything else breaks the
// partition and is rejected. Counts accumulate onto an existing edge.
func (g *Bipartite) AddEdge(fromID, toID string, weight, dna int) error {
	if weight < 1 {
		return NewError("AddEdge").Edge(fromID, toID).Cause(ErrInvalidWeight).Err()
	}
	if dna < 0 || dna > weight {
		return NewError("AddEdge").Edge(fromID, toID).Cause(ErrInvalidWeight).Err()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	from, ok := g.nodes[fromID]
	if !ok {
		return NodeNotFoundError("AddEdge", fromID)
	}
	to, ok := g.nodes[toID]
	if !ok {
		return NodeNotFoundError("AddEdge", toID)
	}
	if from.Kind != KindPatient || to.Kind != KindSite {
		return NotBipartiteError("AddEdge", fromID, toID)
	}

	g.upsertEdge(fromID, toID)
	g.accumulate(from, to, EdgeKey{PatientID: fromID, SiteID: toID}, weight, dna)

	atomic.AddUint64(&g.stats.Appointments, uint64(weight))
	atomic.AddUint64(&g.stats.DNATotal, uint64(dna))
	return nil
}

// Node retrieves a node by its namespaced ID.
func (g *Bipartite) Node(id string) (*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.nodes[id]
	if !exists {
		return nil, NodeNotFoundError("Node", id)
	}
	return node.Clone(), nil
}

// Patient retrieves a patient node by raw key.
func (g *Bipartite) Patient(key string) (*Node, error) {
	return g.Node(PatientID(key))
}

// Site retrieves a site node by raw code.
func (g *Bipartite) Site(code string) (*Node, error) {
	return g.Node(SiteID(code))
}

// Edge retrieves the edge between a patient and a site.
func (g *Bipartite) Edge(patientID, siteID string) (*Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edge, exists := g.edges[EdgeKey{PatientID: patientID, SiteID: siteID}]
	if !exists {
		return nil, EdgeNotFoundError("Edge", patientID, siteID)
	}
	return edge.Clone(), nil
}

// HasEdge reports whether the patient-site pair has an edge.
func (g *Bipartite) HasEdge(patientID, siteID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, exists := g.edges[EdgeKey{PatientID: patientID, SiteID: siteID}]
	return exists
}

// Nodes returns clones of all nodes sorted by ID.
func (g *Bipartite) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Node, 0, len(g.nodes))
	for _, node := range g.nodes {
		out = append(out, node.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NodeIDs returns all node IDs sorted.
func (g *Bipartite) NodeIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Patients returns clones of all patient nodes sorted by ID.
func (g *Bipartite) Patients() []*Node {
	return g.nodesOfKind(KindPatient)
}

// Sites returns clones of all site nodes sorted by ID.
func (g *Bipartite) Sites() []*Node {
	return g.nodesOfKind(KindSite)
}

func (g *Bipartite) nodesOfKind(kind NodeKind) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*Node
	for _, node := range g.nodes {
		if node.Kind == kind {
			out = append(out, node.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns clones of all edges sorted by patient then site ID.
func (g *Bipartite) Edges() []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Edge, 0, len(g.edges))
	for _, edge := range g.edges {
		out = append(out, edge.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PatientID != out[j].PatientID {
			return out[i].PatientID < out[j].PatientID
		}
		return out[i].SiteID < out[j].SiteID
	})
	return out
}

// IncidentEdges returns clones of every edge touching the node, sorted.
func (g *Bipartite) IncidentEdges(id string) ([]*Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	neighbours, exists := g.adjacency[id]
	if !exists {
		if _, ok := g.nodes[id]; !ok {
			return nil, NodeNotFoundError("IncidentEdges", id)
		}
		return nil, nil
	}

	out := make([]*Edge, 0, len(neighbours))
	for neighbour := range neighbours {
		key := g.orientKey(id, neighbour)
		if edge, ok := g.edges[key]; ok {
			out = append(out, edge.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PatientID != out[j].PatientID {
			return out[i].PatientID < out[j].PatientID
		}
		return out[i].SiteID < out[j].SiteID
	})
	return out, nil
}

// Neighbors returns the sorted IDs of nodes adjacent to the given node.
func (g *Bipartite) Neighbors(id string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return nil, NodeNotFoundError("Neighbors", id)
	}
	out := make([]string, 0, len(g.adjacency[id]))
	for neighbour := range g.adjacency[id] {
		out = append(out, neighbour)
	}
	sort.Strings(out)
	return out, nil
}

// Degree returns the number of distinct counterparties for the node.
func (g *Bipartite) Degree(id string) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return 0, NodeNotFoundError("Degree", id)
	}
	return len(g.adjacency[id]), nil
}

// Strength returns the sum of edge weights incident to the node.
func (g *Bipartite) Strength(id string) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return 0, NodeNotFoundError("Strength", id)
	}
	var sum float64
	for neighbour := range g.adjacency[id] {
		if edge, ok := g.edges[g.orientKey(id, neighbour)]; ok {
			sum += float64(edge.Weight)
		}
	}
	return sum, nil
}

// Adjacency returns a weighted adjacency snapshot keyed by node ID. The map
// is a copy; algorithms can read it without further locking.
func (g *Bipartite) Adjacency() map[string]map[string]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]map[string]float64, len(g.nodes))
	for id := range g.nodes {
		out[id] = make(map[string]float64, len(g.adjacency[id]))
	}
	for key, edge := range g.edges {
		w := float64(edge.Weight)
		out[key.PatientID][key.SiteID] = w
		out[key.SiteID][key.PatientID] = w
	}
	return out
}

// PatientCount returns the number of patient nodes.
func (g *Bipartite) PatientCount() int {
	return int(atomic.LoadUint64(&g.stats.Patients))
}

// SiteCount returns the number of site nodes.
func (g *Bipartite) SiteCount() int {
	return int(atomic.LoadUint64(&g.stats.Sites))
}

// NodeCount returns the total number of nodes.
func (g *Bipartite) NodeCount() int {
	return g.PatientCount() + g.SiteCount()
}

// EdgeCount returns the number of edges.
func (g *Bipartite) EdgeCount() int {
	return int(atomic.LoadUint64(&g.stats.Edges))
}

// Stats returns a snapshot of graph-wide totals.
func (g *Bipartite) Stats() Stats {
	return Stats{
		Patients:     atomic.LoadUint64(&g.stats.Patients),
		Sites:        atomic.LoadUint64(&g.stats.Sites),
		Edges:        atomic.LoadUint64(&g.stats.Edges),
		Appointments: atomic.LoadUint64(&g.stats.Appointments),
		DNATotal:     atomic.LoadUint64(&g.stats.DNATotal),
	}
}

// Options returns the configuration the graph was built with.
func (g *Bipartite) Options() Options {
	return g.opts
}

// Subgraph builds a new graph containing every node of this one but only the
// listed edges. Node aggregates and graph totals are preserved, so nodes left
// isolated by pruning keep their appointment history.
func (g *Bipartite) Subgraph(keep []EdgeKey) *Bipartite {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sub := NewBipartite(g.opts)
	for id, node := range g.nodes {
		sub.nodes[id] = node.Clone()
		sub.adjacency[id] = make(map[string]struct{})
	}
	for _, key := range keep {
		edge, ok := g.edges[key]
		if !ok {
			continue
		}
		if _, dup := sub.edges[key]; dup {
			continue
		}
		sub.edges[key] = edge.Clone()
		sub.adjacency[key.PatientID][key.SiteID] = struct{}{}
		sub.adjacency[key.SiteID][key.PatientID] = struct{}{}
	}

	sub.stats.Patients = atomic.LoadUint64(&g.stats.Patients)
	sub.stats.Sites = atomic.LoadUint64(&g.stats.Sites)
	sub.stats.Edges = uint64(len(sub.edges))
	sub.stats.Appointments = atomic.LoadUint64(&g.stats.Appointments)
	sub.stats.DNATotal = atomic.LoadUint64(&g.stats.DNATotal)
	return sub
}

// Validate walks the edge set and reports the first partition violation or
// dangling endpoint.
func (g *Bipartite) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for key, edge := range g.edges {
		patient, ok := g.nodes[key.PatientID]
		if !ok {
			return NodeNotFoundError("Validate", key.PatientID)
		}
		site, ok := g.nodes[key.SiteID]
		if !ok {
			return NodeNotFoundError("Validate", key.SiteID)
		}
		if patient.Kind != KindPatient || site.Kind != KindSite {
			return NotBipartiteError("Validate", key.PatientID, key.SiteID)
		}
		if edge.Weight < 1 || edge.DNACount < 0 || edge.DNACount > edge.Weight {
			return NewError("Validate").Edge(key.PatientID, key.SiteID).Cause(ErrInvalidWeight).Err()
		}
	}
	return nil
}

// upsertPatient returns the live patient node for the record, creating it on
// first sight and backfilling attributes that earlier records left empty.
// Caller must hold the write lock.
func (g *Bipartite) upsertPatient(rec records.Record) *Node {
	id := PatientID(rec.PatientKey)
	node, exists := g.nodes[id]
	if !exists {
		node = g.createNode(id, KindPatient, rec.PatientKey)
		node.AgeGroup = records.AgeGroupUnknown
	}
	if node.Age == nil && rec.Age != nil {
		age := *rec.Age
		node.Age = &age
	}
	if node.AgeGroup == records.AgeGroupUnknown || node.AgeGroup == "" {
		node.AgeGroup = g.opts.AgeBoundaries.Classify(rec.Age)
	}
	if node.PostcodeSector == "" {
		node.PostcodeSector = rec.PostcodeSector
	}
	if node.OrgCode == "" {
		node.OrgCode = rec.OrgCode
	}
	return node
}

// upsertSite returns the live site node for the record. Caller must hold the
// write lock.
func (g *Bipartite) upsertSite(rec records.Record) *Node {
	id := SiteID(rec.SiteCode)
	node, exists := g.nodes[id]
	if !exists {
		node = g.createNode(id, KindSite, rec.SiteCode)
	}
	if node.ProviderLocation == "" {
		node.ProviderLocation = rec.ProviderLocation
	}
	if node.TreatmentFunction == "" {
		node.TreatmentFunction = rec.TreatmentFunction
	}
	if node.OrgCode == "" {
		node.OrgCode = rec.OrgCode
	}
	return node
}

func (g *Bipartite) createNode(id string, kind NodeKind, key string) *Node {
	node := &Node{ID: id, Kind: kind, Key: key}
	g.nodes[id] = node
	g.adjacency[id] = make(map[string]struct{})
	switch kind {
	case KindPatient:
		atomic.AddUint64(&g.stats.Patients, 1)
	case KindSite:
		atomic.AddUint64(&g.stats.Sites, 1)
	}
	return node
}

func (g *Bipartite) upsertEdge(patientID, siteID string) {
	key := EdgeKey{PatientID: patientID, SiteID: siteID}
	if _, exists := g.edges[key]; exists {
		return
	}
	g.edges[key] = &Edge{PatientID: patientID, SiteID: siteID}
	g.adjacency[patientID][siteID] = struct{}{}
	g.adjacency[siteID][patientID] = struct{}{}
	atomic.AddUint64(&g.stats.Edges, 1)
}

// accumulate applies appointment counts to an edge and both endpoints.
// Caller must hold the write lock and have upserted the edge.
func (g *Bipartite) accumulate(patient, site *Node, key EdgeKey, weight, dna int) {
	edge := g.edges[key]
	edge.Weight += weight
	edge.DNACount += dna
	patient.Appointments += weight
	patient.DNACount += dna
	site.Appointments += weight
	site.DNACount += dna
}

// orientKey maps an (endpoint, neighbour) pair onto the canonical
// patient-to-site edge key.
func (g *Bipartite) orientKey(id, neighbour string) EdgeKey {
	if node, ok := g.nodes[id]; ok && node.Kind == KindSite {
		return EdgeKey{PatientID: neighbour, SiteID: id}
	}
	return EdgeKey{PatientID: id, SiteID: neighbour}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
