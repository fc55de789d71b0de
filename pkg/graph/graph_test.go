package graph

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dd0wney/attendnet/pkg/logging"
	"github.com/dd0wney/attendnet/pkg/metrics"
	"github.com/dd0wney/attendnet/pkg/records"
)

func testRecord(patient, site, outcome string) records.Record {
	return records.Record{
		PatientKey: patient,
		SiteCode:   site,
		Outcome:    outcome,
		Date:       time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func observeAll(t *testing.T, g *Bipartite, recs ...records.Record) {
	t.Helper()
	for _, rec := range recs {
		if err := g.Observe(rec); err != nil {
			t.Fatalf("Observe(%s->%s) failed: %v", rec.PatientKey, rec.SiteCode, err)
		}
	}
}

func TestObserve_BuildsBipartiteGraph(t *testing.T) {
	g := NewBipartite(DefaultOptions())
	observeAll(t, g,
		testRecord("p1", "RGT01", records.OutcomeSeen),
		testRecord("p1", "RGT02", records.OutcomeDidNotAttend),
		testRecord("p2", "RGT01", records.OutcomeSeen),
	)

	if got := g.PatientCount(); got != 2 {
		t.Errorf("PatientCount = %d, want 2", got)
	}
	if got := g.SiteCount(); got != 2 {
		t.Errorf("SiteCount = %d, want 2", got)
	}
	if got := g.EdgeCount(); got != 3 {
		t.Errorf("EdgeCount = %d, want 3", got)
	}

	patient, err := g.Patient("p1")
	if err != nil {
		t.Fatalf("Patient(p1) failed: %v", err)
	}
	if patient.ID != "P_p1" || patient.Kind != KindPatient {
		t.Errorf("patient node = %q kind %q, want P_p1 patient", patient.ID, patient.Kind)
	}
	if patient.Appointments != 2 || patient.DNACount != 1 {
		t.Errorf("patient aggregates = %d/%d, want 2 appointments 1 DNA", patient.Appointments, patient.DNACount)
	}

	site, err := g.Site("RGT01")
	if err != nil {
		t.Fatalf("Site(RGT01) failed: %v", err)
	}
	if site.ID != "S_RGT01" || site.Kind != KindSite {
		t.Errorf("site node = %q kind %q, want S_RGT01 site", site.ID, site.Kind)
	}
	if site.Appointments != 2 || site.DNACount != 0 {
		t.Errorf("site aggregates = %d/%d, want 2 appointments 0 DNA", site.Appointments, site.DNACount)
	}

	if err := g.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestObserve_AccumulatesRepeatVisits(t *testing.T) {
	// One patient, one site, outcomes 3 (DNA), 5 (seen), 3 (DNA).
	g := NewBipartite(DefaultOptions())
	observeAll(t, g,
		testRecord("p1", "RGT01", records.OutcomeDidNotAttend),
		testRecord("p1", "RGT01", records.OutcomeSeen),
		testRecord("p1", "RGT01", records.OutcomeDidNotAttend),
	)

	if got := g.EdgeCount(); got != 1 {
		t.Fatalf("EdgeCount = %d, want 1 accumulated edge", got)
	}
	edge, err := g.Edge("P_p1", "S_RGT01")
	if err != nil {
		t.Fatalf("Edge lookup failed: %v", err)
	}
	if edge.Weight != 3 || edge.DNACount != 2 {
		t.Errorf("edge = weight %d dna %d, want 3/2", edge.Weight, edge.DNACount)
	}
	if rate := edge.DNARate(); rate < 0.66 || rate > 0.67 {
		t.Errorf("edge DNARate = %f, want ~0.667", rate)
	}

	stats := g.Stats()
	if stats.Appointments != 3 || stats.DNATotal != 2 {
		t.Errorf("stats = %d appointments %d DNA, want 3/2", stats.Appointments, stats.DNATotal)
	}
}

func TestObserve_RejectsEmptyIdentifiers(t *testing.T) {
	g := NewBipartite(DefaultOptions())

	err := g.Observe(testRecord("", "RGT01", records.OutcomeSeen))
	if !errors.Is(err, ErrEmptyKey) {
		t.Errorf("empty patient key error = %v, want ErrEmptyKey", err)
	}
	err = g.Observe(testRecord("p1", "", records.OutcomeSeen))
	if !errors.Is(err, ErrEmptyKey) {
		t.Errorf("empty site code error = %v, want ErrEmptyKey", err)
	}
	if g.NodeCount() != 0 {
		t.Errorf("rejected records must not create nodes, got %d", g.NodeCount())
	}
}

func TestAddEdge_EnforcesPartition(t *testing.T) {
	g := NewBipartite(DefaultOptions())
	if _, err := g.AddPatient("p1"); err != nil {
		t.Fatalf("AddPatient failed: %v", err)
	}
	if _, err := g.AddPatient("p2"); err != nil {
		t.Fatalf("AddPatient failed: %v", err)
	}
	if _, err := g.AddSite("RGT01"); err != nil {
		t.Fatalf("AddSite failed: %v", err)
	}

	if err := g.AddEdge(PatientID("p1"), SiteID("RGT01"), 2, 1); err != nil {
		t.Fatalf("valid AddEdge failed: %v", err)
	}

	tests := []struct {
		name    string
		from    string
		to      string
		weight  int
		dna     int
		wantErr error
	}{
		{"patient to patient", PatientID("p1"), PatientID("p2"), 1, 0, ErrNotBipartite},
		{"site to patient", SiteID("RGT01"), PatientID("p1"), 1, 0, ErrNotBipartite},
		{"missing endpoint", PatientID("p1"), SiteID("missing"), 1, 0, ErrNodeNotFound},
		{"zero weight", PatientID("p1"), SiteID("RGT01"), 0, 0, ErrInvalidWeight},
		{"dna above weight", PatientID("p1"), SiteID("RGT01"), 2, 3, ErrInvalidWeight},
		{"negative dna", PatientID("p1"), SiteID("RGT01"), 2, -1, ErrInvalidWeight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.AddEdge(tt.from, tt.to, tt.weight, tt.dna)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AddEdge error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Accumulation onto an existing edge.
	if err := g.AddEdge(PatientID("p1"), SiteID("RGT01"), 3, 1); err != nil {
		t.Fatalf("accumulating AddEdge failed: %v", err)
	}
	edge, err := g.Edge(PatientID("p1"), SiteID("RGT01"))
	if err != nil {
		t.Fatalf("Edge lookup failed: %v", err)
	}
	if edge.Weight != 5 || edge.DNACount != 2 {
		t.Errorf("accumulated edge = %d/%d, want 5/2", edge.Weight, edge.DNACount)
	}
}

func TestObserve_NodeAttributesFirstSeenWins(t *testing.T) {
	age := 40
	first := testRecord("p1", "RGT01", records.OutcomeSeen)
	first.PostcodeSector = "CB1 2"
	first.ProviderLocation = "CAMBRIDGE"
	second := testRecord("p1", "RGT01", records.OutcomeSeen)
	second.Age = &age
	second.Date = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	second.PostcodeSector = "CB9 9"
	second.OrgCode = "RGT"
	second.TreatmentFunction = "CARDIOLOGY"

	g := NewBipartite(DefaultOptions())
	observeAll(t, g, first, second)

	patient, err := g.Patient("p1")
	if err != nil {
		t.Fatalf("Patient failed: %v", err)
	}
	if patient.PostcodeSector != "CB1 2" {
		t.Errorf("PostcodeSector = %q, want first-seen CB1 2", patient.PostcodeSector)
	}
	if patient.OrgCode != "RGT" {
		t.Errorf("OrgCode = %q, want backfilled RGT", patient.OrgCode)
	}
	if patient.AgeGroup != records.AgeGroupAdult {
		t.Errorf("AgeGroup = %q, want Adult once an age appears", patient.AgeGroup)
	}

	site, err := g.Site("RGT01")
	if err != nil {
		t.Fatalf("Site failed: %v", err)
	}
	if site.ProviderLocation != "CAMBRIDGE" || site.TreatmentFunction != "CARDIOLOGY" {
		t.Errorf("site attrs = %q/%q, want CAMBRIDGE/CARDIOLOGY", site.ProviderLocation, site.TreatmentFunction)
	}

	edge, err := g.Edge("P_p1", "S_RGT01")
	if err != nil {
		t.Fatalf("Edge failed: %v", err)
	}
	if !edge.FirstDate.Equal(first.Date) {
		t.Errorf("edge FirstDate = %v, want first-seen %v", edge.FirstDate, first.Date)
	}
	if edge.TreatmentFunction != "CARDIOLOGY" {
		t.Errorf("edge TreatmentFunction = %q, want backfilled CARDIOLOGY", edge.TreatmentFunction)
	}
}

func TestNeighborsDegreeStrength(t *testing.T) {
	g := NewBipartite(DefaultOptions())
	observeAll(t, g,
		testRecord("p1", "RGT01", records.OutcomeSeen),
		testRecord("p1", "RGT01", records.OutcomeSeen),
		testRecord("p1", "RGT02", records.OutcomeDidNotAttend),
		testRecord("p2", "RGT01", records.OutcomeSeen),
	)

	neighbours, err := g.Neighbors("P_p1")
	if err != nil {
		t.Fatalf("Neighbors failed: %v", err)
	}
	if len(neighbours) != 2 || neighbours[0] != "S_RGT01" || neighbours[1] != "S_RGT02" {
		t.Errorf("Neighbors = %v, want sorted [S_RGT01 S_RGT02]", neighbours)
	}

	degree, err := g.Degree("S_RGT01")
	if err != nil {
		t.Fatalf("Degree failed: %v", err)
	}
	if degree != 2 {
		t.Errorf("Degree(S_RGT01) = %d, want 2", degree)
	}

	strength, err := g.Strength("P_p1")
	if err != nil {
		t.Fatalf("Strength failed: %v", err)
	}
	if strength != 3 {
		t.Errorf("Strength(P_p1) = %f, want 3", strength)
	}

	if _, err := g.Degree("P_missing"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Degree on missing node = %v, want ErrNodeNotFound", err)
	}

	incident, err := g.IncidentEdges("P_p1")
	if err != nil {
		t.Fatalf("IncidentEdges failed: %v", err)
	}
	if len(incident) != 2 || incident[0].SiteID != "S_RGT01" || incident[1].SiteID != "S_RGT02" {
		t.Errorf("IncidentEdges order unexpected: %+v", incident)
	}
}

func TestSubgraph_KeepsIsolatedNodes(t *testing.T) {
	g := NewBipartite(DefaultOptions())
	observeAll(t, g,
		testRecord("p1", "RGT01", records.OutcomeSeen),
		testRecord("p1", "RGT02", records.OutcomeDidNotAttend),
		testRecord("p2", "RGT02", records.OutcomeSeen),
	)
	g.sealUniqueCounts()

	sub := g.Subgraph([]EdgeKey{{PatientID: "P_p1", SiteID: "S_RGT01"}})

	if sub.NodeCount() != g.NodeCount() {
		t.Errorf("subgraph nodes = %d, want all %d retained", sub.NodeCount(), g.NodeCount())
	}
	if sub.EdgeCount() != 1 {
		t.Errorf("subgraph edges = %d, want 1", sub.EdgeCount())
	}

	// p2 is isolated in the subgraph but keeps its history.
	p2, err := sub.Patient("p2")
	if err != nil {
		t.Fatalf("isolated patient lost: %v", err)
	}
	if p2.Appointments != 1 {
		t.Errorf("isolated patient appointments = %d, want 1", p2.Appointments)
	}
	if degree, _ := sub.Degree("P_p2"); degree != 0 {
		t.Errorf("isolated patient degree = %d, want 0", degree)
	}
	if p2.UniqueSites != 1 {
		t.Errorf("isolated patient UniqueSites = %d, want full-graph value 1", p2.UniqueSites)
	}

	// Graph-wide totals reflect the full record batch, not the pruned edges.
	if sub.Stats().Appointments != g.Stats().Appointments {
		t.Errorf("subgraph appointment total = %d, want %d", sub.Stats().Appointments, g.Stats().Appointments)
	}
	if err := sub.Validate(); err != nil {
		t.Errorf("subgraph Validate failed: %v", err)
	}
}

func TestAccessors_ReturnClones(t *testing.T) {
	g := NewBipartite(DefaultOptions())
	observeAll(t, g, testRecord("p1", "RGT01", records.OutcomeDidNotAttend))

	node, _ := g.Patient("p1")
	node.Appointments = 999
	fresh, _ := g.Patient("p1")
	if fresh.Appointments != 1 {
		t.Errorf("mutating returned node leaked into graph: %d", fresh.Appointments)
	}

	edge, _ := g.Edge("P_p1", "S_RGT01")
	edge.Weight = 999
	freshEdge, _ := g.Edge("P_p1", "S_RGT01")
	if freshEdge.Weight != 1 {
		t.Errorf("mutating returned edge leaked into graph: %d", freshEdge.Weight)
	}

	adj := g.Adjacency()
	delete(adj, "P_p1")
	if _, err := g.Patient("p1"); err != nil {
		t.Errorf("mutating adjacency snapshot leaked into graph: %v", err)
	}
}

func TestAdjacency_Weights(t *testing.T) {
	g := NewBipartite(DefaultOptions())
	observeAll(t, g,
		testRecord("p1", "RGT01", records.OutcomeSeen),
		testRecord("p1", "RGT01", records.OutcomeSeen),
		testRecord("p2", "RGT01", records.OutcomeSeen),
	)

	adj := g.Adjacency()
	if len(adj) != 3 {
		t.Fatalf("adjacency size = %d, want 3 nodes", len(adj))
	}
	if w := adj["P_p1"]["S_RGT01"]; w != 2 {
		t.Errorf("adj[P_p1][S_RGT01] = %f, want 2", w)
	}
	if w := adj["S_RGT01"]["P_p1"]; w != 2 {
		t.Errorf("adjacency must be symmetric, got %f", w)
	}
	if len(adj["S_RGT01"]) != 2 {
		t.Errorf("site neighbourhood size = %d, want 2", len(adj["S_RGT01"]))
	}
}

func TestBuilder_FinishSealsCounts(t *testing.T) {
	b := NewBuilder(BuilderOptions{
		Logger:  logging.NewNopLogger(),
		Metrics: metrics.NewRegistry(),
	})
	recs := []records.Record{
		testRecord("p1", "RGT01", records.OutcomeSeen),
		testRecord("p1", "RGT02", records.OutcomeDidNotAttend),
		testRecord("p2", "RGT01", records.OutcomeLateNotSeen),
	}
	if err := b.AddAll(recs); err != nil {
		t.Fatalf("AddAll failed: %v", err)
	}
	if b.Observed() != 3 {
		t.Errorf("Observed = %d, want 3", b.Observed())
	}

	g := b.Finish()
	p1, err := g.Patient("p1")
	if err != nil {
		t.Fatalf("Patient failed: %v", err)
	}
	if p1.UniqueSites != 2 {
		t.Errorf("UniqueSites = %d, want 2", p1.UniqueSites)
	}
	site, err := g.Site("RGT01")
	if err != nil {
		t.Fatalf("Site failed: %v", err)
	}
	if site.UniquePatients != 2 {
		t.Errorf("UniquePatients = %d, want 2", site.UniquePatients)
	}
	if g.Stats().DNATotal != 2 {
		t.Errorf("DNATotal = %d, want 2 (outcomes 3 and 7)", g.Stats().DNATotal)
	}
}

func TestKindOf(t *testing.T) {
	if kind, ok := KindOf("P_abc"); !ok || kind != KindPatient {
		t.Errorf("KindOf(P_abc) = %q/%v", kind, ok)
	}
	if kind, ok := KindOf("S_RGT01"); !ok || kind != KindSite {
		t.Errorf("KindOf(S_RGT01) = %q/%v", kind, ok)
	}
	if _, ok := KindOf("X_unknown"); ok {
		t.Error("KindOf should reject unknown namespaces")
	}
}

func TestGraphError_Format(t *testing.T) {
	tests := []struct {
		name     string
		err      *GraphError
		expected string
	}{
		{
			name:     "with ID",
			err:      &GraphError{Op: "Observe", Entity: "patient", ID: "P_p1", Cause: fmt.Errorf("boom")},
			expected: "Observe patient P_p1: boom",
		},
		{
			name:     "edge endpoints",
			err:      NewError("AddEdge").Edge("P_p1", "S_RGT01").Cause(ErrNotBipartite).Build(),
			expected: "AddEdge edge P_p1->S_RGT01: edge must connect a patient to a site",
		},
		{
			name:     "with context",
			err:      &GraphError{Op: "Validate", Entity: "edge", Context: "during backbone", Cause: fmt.Errorf("bad")},
			expected: "Validate edge (during backbone): bad",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}

	wrapped := NodeNotFoundError("Degree", "P_missing")
	if !errors.Is(wrapped, ErrNodeNotFound) {
		t.Error("errors.Is must see through GraphError")
	}
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound must recognise node lookups")
	}
	var ge *GraphError
	if !errors.As(wrapped, &ge) || ge.Op != "Degree" {
		t.Errorf("errors.As failed or wrong op: %+v", ge)
	}
}
