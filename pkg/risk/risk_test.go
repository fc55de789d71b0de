package risk

import (
	"context"
	"testing"

	"github.com/dd0wney/attendnet/pkg/algorithms"
	"github.com/dd0wney/attendnet/pkg/graph"
	"github.com/dd0wney/attendnet/pkg/logging"
	"github.com/dd0wney/attendnet/pkg/metrics"
	"github.com/dd0wney/attendnet/pkg/records"
)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	opts := DefaultOptions()
	opts.Workers = 2
	opts.Logger = logging.NewNopLogger()
	opts.Metrics = metrics.NewRegistry()
	s, err := NewScorer(opts)
	if err != nil {
		t.Fatalf("NewScorer failed: %v", err)
	}
	return s
}

func addAttendance(t *testing.T, g *graph.Bipartite, patient, site string, appointments, dna int) {
	t.Helper()
	if _, err := g.AddPatient(patient); err != nil {
		t.Fatalf("AddPatient(%s) failed: %v", patient, err)
	}
	if _, err := g.AddSite(site); err != nil {
		t.Fatalf("AddSite(%s) failed: %v", site, err)
	}
	if err := g.AddEdge(graph.PatientID(patient), graph.SiteID(site), appointments, dna); err != nil {
		t.Fatalf("AddEdge(%s, %s) failed: %v", patient, site, err)
	}
}

func community(id int, residual bool, nodes ...string) *algorithms.Community {
	c := &algorithms.Community{ID: id, Nodes: nodes, Size: len(nodes), Residual: residual}
	for _, nodeID := range nodes {
		if kind, ok := graph.KindOf(nodeID); ok && kind == graph.KindPatient {
			c.Patients++
		} else {
			c.Sites++
		}
	}
	return c
}

func detectionOf(communities ...*algorithms.Community) *algorithms.DetectionResult {
	result := &algorithms.DetectionResult{
		Communities:   communities,
		NodeCommunity: map[string]int{},
	}
	for _, c := range communities {
		for _, id := range c.Nodes {
			result.NodeCommunity[id] = c.ID
		}
	}
	return result
}

func TestSmoothedRate_KnownValues(t *testing.T) {
	tests := []struct {
		dna, appointments int
		want              float64
	}{
		{0, 1, 1.0 / 6.0},
		{2, 3, 0.375},
		{0, 0, 0.2},
		{10, 10, 11.0 / 15.0},
	}
	for _, tt := range tests {
		if got := SmoothedRate(tt.dna, tt.appointments); !almostEqual(got, tt.want) {
			t.Errorf("SmoothedRate(%d, %d) = %f, want %f", tt.dna, tt.appointments, got, tt.want)
		}
	}
}

func TestClassifyRate_FixedCutPoints(t *testing.T) {
	tests := []struct {
		rate float64
		want Tier
	}{
		{0.375, TierHigh},
		{0.31, TierHigh},
		{0.30, TierMedium}, // cut point itself is not High
		{1.0 / 6.0, TierMedium},
		{0.10, TierLow},
		{0.05, TierLow},
	}
	for _, tt := range tests {
		if got := ClassifyRate(tt.rate); got != tt.want {
			t.Errorf("ClassifyRate(%g) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}

func TestClassifyScore_RunThresholds(t *testing.T) {
	thresholds := Thresholds{High: 0.5, Low: 0.2}
	tests := []struct {
		score float64
		want  Tier
	}{
		{0.6, TierHigh},
		{0.5, TierHigh}, // inclusive
		{0.35, TierMedium},
		{0.2, TierLow}, // inclusive
		{0.1, TierLow},
	}
	for _, tt := range tests {
		if got := ClassifyScore(tt.score, thresholds); got != tt.want {
			t.Errorf("ClassifyScore(%g) = %s, want %s", tt.score, got, tt.want)
		}
	}

	// Degenerate distribution: both cut points coincide, High wins.
	flat := Thresholds{High: 0.3, Low: 0.3}
	if got := ClassifyScore(0.3, flat); got != TierHigh {
		t.Errorf("degenerate ClassifyScore = %s, want High", got)
	}
}

func TestScorer_EntityAndCommunityScores(t *testing.T) {
	g := graph.NewBipartite(graph.DefaultOptions())
	addAttendance(t, g, "p1", "s1", 3, 2) // two missed of three
	addAttendance(t, g, "p2", "s1", 1, 0)

	detection := detectionOf(community(0, false, "P_p1", "P_p2", "S_s1"))

	model, err := newTestScorer(t).Score(context.Background(), g, detection)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	p1, ok := model.Entity("P_p1")
	if !ok {
		t.Fatal("P_p1 missing from model")
	}
	if !almostEqual(p1.SmoothedRate, 0.375) || p1.Tier != TierHigh {
		t.Errorf("P_p1 = %f/%s, want 0.375/High", p1.SmoothedRate, p1.Tier)
	}

	p2, _ := model.Entity("P_p2")
	if !almostEqual(p2.SmoothedRate, 1.0/6.0) || p2.Tier != TierMedium {
		t.Errorf("P_p2 = %f/%s, want 0.1667/Medium", p2.SmoothedRate, p2.Tier)
	}

	s1, ok := model.Entity("S_s1")
	if !ok {
		t.Fatal("S_s1 missing from model, sites must be scored too")
	}
	if !almostEqual(s1.SmoothedRate, 3.0/9.0) || s1.Tier != TierHigh {
		t.Errorf("S_s1 = %f/%s, want 0.3333/High", s1.SmoothedRate, s1.Tier)
	}

	if len(model.Communities) != 1 {
		t.Fatalf("communities = %d, want 1", len(model.Communities))
	}
	c := model.Communities[0]
	wantAvg := (0.375 + 1.0/6.0) / 2
	if !almostEqual(c.AvgMemberRate, wantAvg) {
		t.Errorf("AvgMemberRate = %f, want %f", c.AvgMemberRate, wantAvg)
	}
	if c.HighRiskPatients != 1 || c.MediumRiskPatients != 1 || c.LowRiskPatients != 0 {
		t.Errorf("tier counts = %d/%d/%d, want 1/1/0", c.HighRiskPatients, c.MediumRiskPatients, c.LowRiskPatients)
	}
	if !almostEqual(c.HighRiskShare, 0.5) {
		t.Errorf("HighRiskShare = %f, want 0.5", c.HighRiskShare)
	}
	wantScore := 0.7*wantAvg + 0.3*0.5
	if !almostEqual(c.Score, wantScore) {
		t.Errorf("Score = %f, want %f", c.Score, wantScore)
	}

	// A single community pins both thresholds to its own score; the
	// inclusive High comparison wins.
	if !almostEqual(model.Thresholds.High, wantScore) || !almostEqual(model.Thresholds.Low, wantScore) {
		t.Errorf("thresholds = %+v, want both %f", model.Thresholds, wantScore)
	}
	if c.Tier != TierHigh {
		t.Errorf("sole community tier = %s, want High", c.Tier)
	}
}

func TestScorer_QuartileSplitByConstruction(t *testing.T) {
	g := graph.NewBipartite(graph.DefaultOptions())
	// Four communities with strictly increasing scores: two patients each,
	// fifteen appointments, DNA counts stepping 0/3/6/9.
	for i, dna := range []int{0, 3, 6, 9} {
		site := string(rune('a'+i)) + "site"
		addAttendance(t, g, site+"_p1", site, 15, dna)
		addAttendance(t, g, site+"_p2", site, 15, dna)
	}

	detection := detectionOf(
		community(0, false, "P_asite_p1", "P_asite_p2", "S_asite"),
		community(1, false, "P_bsite_p1", "P_bsite_p2", "S_bsite"),
		community(2, false, "P_csite_p1", "P_csite_p2", "S_csite"),
		community(3, false, "P_dsite_p1", "P_dsite_p2", "S_dsite"),
	)

	model, err := newTestScorer(t).Score(context.Background(), g, detection)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	// Smoothed rates 0.05/0.2/0.35/0.5 give composite scores
	// 0.035/0.14/0.545/0.65.
	wantScores := []float64{0.035, 0.14, 0.545, 0.65}
	for i, c := range model.Communities {
		if !almostEqual(c.Score, wantScores[i]) {
			t.Errorf("community %d score = %f, want %f", i, c.Score, wantScores[i])
		}
	}

	if !almostEqual(model.Thresholds.Low, 0.11375) {
		t.Errorf("low threshold = %f, want 0.11375", model.Thresholds.Low)
	}
	if !almostEqual(model.Thresholds.High, 0.57125) {
		t.Errorf("high threshold = %f, want 0.57125", model.Thresholds.High)
	}

	wantTiers := []Tier{TierLow, TierMedium, TierMedium, TierHigh}
	for i, c := range model.Communities {
		if c.Tier != wantTiers[i] {
			t.Errorf("community %d tier = %s, want %s", i, c.Tier, wantTiers[i])
		}
	}

	counts := model.CommunityTierCounts()
	if counts[TierHigh] != 1 || counts[TierMedium] != 2 || counts[TierLow] != 1 {
		t.Errorf("tier distribution = %v, want 1 High, 2 Medium, 1 Low", counts)
	}
}

func TestScorer_PatientlessCommunityParticipates(t *testing.T) {
	g := graph.NewBipartite(graph.DefaultOptions())
	addAttendance(t, g, "p1", "busy", 15, 9)
	addAttendance(t, g, "p2", "busy", 15, 9)
	if _, err := g.AddSite("idle"); err != nil {
		t.Fatalf("AddSite failed: %v", err)
	}

	detection := detectionOf(
		community(0, false, "P_p1", "P_p2", "S_busy"),
		community(1, false, "S_idle"),
	)

	model, err := newTestScorer(t).Score(context.Background(), g, detection)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	idle := model.Community(1)
	if idle == nil {
		t.Fatal("patient-less community missing from model")
	}
	if idle.Score != 0 || idle.AvgMemberRate != 0 {
		t.Errorf("patient-less community scored %f/%f, want zeros", idle.Score, idle.AvgMemberRate)
	}
	if idle.DominantAgeGroup != records.AgeGroupUnknown {
		t.Errorf("patient-less dominant age = %s, want Unknown", idle.DominantAgeGroup)
	}
	if idle.Tier != TierLow {
		t.Errorf("patient-less tier = %s, want Low against [0, 0.65]", idle.Tier)
	}
	if busy := model.Community(0); busy.Tier != TierHigh {
		t.Errorf("patient community tier = %s, want High", busy.Tier)
	}
}

func TestScorer_DominantAgeGroup(t *testing.T) {
	intPtr := func(v int) *int { return &v }
	g := graph.NewBipartite(graph.DefaultOptions())
	visits := []records.Record{
		{PatientKey: "p1", SiteCode: "s1", Age: intPtr(10), Outcome: records.OutcomeSeen},
		{PatientKey: "p2", SiteCode: "s1", Age: intPtr(12), Outcome: records.OutcomeSeen},
		{PatientKey: "p3", SiteCode: "s1", Age: intPtr(70), Outcome: records.OutcomeSeen},
	}
	for _, rec := range visits {
		if err := g.Observe(rec); err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
	}

	detection := detectionOf(community(0, false, "P_p1", "P_p2", "P_p3", "S_s1"))
	model, err := newTestScorer(t).Score(context.Background(), g, detection)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if got := model.Communities[0].DominantAgeGroup; got != records.AgeGroupChild {
		t.Errorf("dominant age group = %s, want Child", got)
	}

	// Equal counts break toward the lexicographically smallest band.
	g2 := graph.NewBipartite(graph.DefaultOptions())
	ties := []records.Record{
		{PatientKey: "q1", SiteCode: "s1", Age: intPtr(40), Outcome: records.OutcomeSeen},
		{PatientKey: "q2", SiteCode: "s1", Age: intPtr(10), Outcome: records.OutcomeSeen},
	}
	for _, rec := range ties {
		if err := g2.Observe(rec); err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
	}
	model2, err := newTestScorer(t).Score(context.Background(), g2, detectionOf(community(0, false, "P_q1", "P_q2", "S_s1")))
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if got := model2.Communities[0].DominantAgeGroup; got != records.AgeGroupAdult {
		t.Errorf("tied dominant age group = %s, want Adult", got)
	}
}

func TestScorer_EmptyGraph(t *testing.T) {
	g := graph.NewBipartite(graph.DefaultOptions())
	detection := &algorithms.DetectionResult{NodeCommunity: map[string]int{}}

	model, err := newTestScorer(t).Score(context.Background(), g, detection)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if len(model.Entities) != 0 || len(model.Communities) != 0 {
		t.Errorf("empty graph produced %d entities, %d communities", len(model.Entities), len(model.Communities))
	}
	if model.Thresholds != (Thresholds{}) {
		t.Errorf("empty graph thresholds = %+v, want zeros", model.Thresholds)
	}
}

func TestScorer_CancelledContext(t *testing.T) {
	g := graph.NewBipartite(graph.DefaultOptions())
	addAttendance(t, g, "p1", "s1", 3, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestScorer(t).Score(ctx, g, detectionOf()); err == nil {
		t.Error("cancelled context should abort scoring")
	}
}

func TestNewScorer_RejectsBadWorkers(t *testing.T) {
	for _, workers := range []int{0, -4} {
		opts := DefaultOptions()
		opts.Workers = workers
		if _, err := NewScorer(opts); err == nil {
			t.Errorf("workers=%d should be rejected", workers)
		}
	}
}
