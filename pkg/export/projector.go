package export

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/attendnet/pkg/algorithms"
	"github.com/dd0wney/attendnet/pkg/graph"
	"github.com/dd0wney/attendnet/pkg/records"
	"github.com/dd0wney/attendnet/pkg/risk"
)

// ProjectionOptions pins the run identity for reproducible documents. Zero
// values generate a fresh run ID and stamp the current time.
type ProjectionOptions struct {
	RunID       string
	GeneratedAt time.Time
}

// BuildDocument assembles the wire document from the graph, the selected
// partition and the risk model. Nothing is recomputed; unassigned nodes get
// community -1, which Validate will reject before anything is written.
func BuildDocument(g *graph.Bipartite, detection *algorithms.DetectionResult, model *risk.Model, opts ProjectionOptions) *Document {
	if detection == nil {
		detection = &algorithms.DetectionResult{NodeCommunity: map[string]int{}}
	}
	if model == nil {
		model = &risk.Model{Entities: map[string]risk.EntityScore{}}
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	generatedAt := opts.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now().UTC()
	}

	communityTier := make(map[int]risk.Tier, len(model.Communities))
	for _, c := range model.Communities {
		communityTier[c.ID] = c.Tier
	}

	var (
		rates            []float64
		patients, sites  int
		highRiskPatients int
	)
	ageGroups := make(map[string]int)

	nodes := make([]NodeRecord, 0, g.NodeCount())
	for _, node := range g.Nodes() {
		communityID := -1
		if id, ok := detection.NodeCommunity[node.ID]; ok {
			communityID = id
		}
		riskLevel := string(risk.TierMedium)
		if tier, ok := communityTier[communityID]; ok {
			riskLevel = string(tier)
		}

		score, scored := model.Entity(node.ID)
		if !scored {
			score.Tier = risk.TierMedium
		}

		record := NodeRecord{
			ID:           node.ID,
			Type:         string(node.Kind),
			Community:    communityID,
			RiskLevel:    riskLevel,
			DNARate:      score.SmoothedRate,
			Appointments: node.Appointments,
			DNACount:     node.DNACount,
			RiskCategory: string(score.Tier),
		}
		rates = append(rates, score.SmoothedRate)

		switch node.Kind {
		case graph.KindPatient:
			patients++
			group := string(node.AgeGroup)
			if group == "" {
				group = string(records.AgeGroupUnknown)
			}
			record.AgeGroup = group
			record.Age = node.Age
			record.UniqueSites = node.UniqueSites
			record.Postcode = node.PostcodeSector
			ageGroups[group]++
			if score.Tier == risk.TierHigh {
				highRiskPatients++
			}
		case graph.KindSite:
			sites++
			record.Location = node.ProviderLocation
			record.UniquePatients = node.UniquePatients
			record.TreatmentFunction = node.TreatmentFunction
			record.OrgCode = node.OrgCode
		}
		nodes = append(nodes, record)
	}

	links := make([]LinkRecord, 0, g.EdgeCount())
	for _, edge := range g.Edges() {
		links = append(links, LinkRecord{
			Source:   edge.PatientID,
			Target:   edge.SiteID,
			Weight:   edge.Weight,
			DNACount: edge.DNACount,
			DNARate:  edge.DNARate(),
			Strength: math.Min(float64(edge.Weight)/10.0, 1.0),
		})
	}

	communities := make([]CommunityRecord, 0, len(model.Communities))
	for _, c := range model.Communities {
		communities = append(communities, CommunityRecord{
			ID:                 c.ID,
			Patients:           c.Patients,
			Sites:              c.Sites,
			AvgDNARate:         c.AvgMemberRate,
			RiskScore:          c.Score,
			DominantAge:        string(c.DominantAgeGroup),
			HighRiskPatients:   c.HighRiskPatients,
			MediumRiskPatients: c.MediumRiskPatients,
			LowRiskPatients:    c.LowRiskPatients,
			RiskLevel:          string(c.Tier),
			Residual:           c.Residual,
		})
	}

	highRiskShare := 0.0
	if patients > 0 {
		highRiskShare = float64(highRiskPatients) / float64(patients)
	}
	tierCounts := model.CommunityTierCounts()

	return &Document{
		Metadata: Metadata{
			RunID:                 runID,
			TotalNodes:            len(nodes),
			TotalEdges:            len(links),
			TotalCommunities:      len(communities),
			HighRiskCommunities:   tierCounts[risk.TierHigh],
			MediumRiskCommunities: tierCounts[risk.TierMedium],
			LowRiskCommunities:    tierCounts[risk.TierLow],
			Thresholds:            model.Thresholds,
			GeneratedAt:           generatedAt,
			Algorithm:             detection.Strategy,
			Degraded:              detection.Degraded,
		},
		Nodes:       nodes,
		Links:       links,
		Communities: communities,
		Summary: Summary{
			TotalPatients:        patients,
			TotalSites:           sites,
			OverallDNARate:       risk.Mean(rates),
			HighRiskPatients:     highRiskPatients,
			HighRiskPatientShare: highRiskShare,
			AgeGroups:            ageGroups,
			RiskDistribution: map[string]int{
				string(risk.TierHigh):   tierCounts[risk.TierHigh],
				string(risk.TierMedium): tierCounts[risk.TierMedium],
				string(risk.TierLow):    tierCounts[risk.TierLow],
			},
		},
	}
}
