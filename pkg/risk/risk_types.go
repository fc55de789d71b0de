package risk

import (
	"github.com/dd0wney/attendnet/pkg/graph"
	"github.com/dd0wney/attendnet/pkg/records"
)

// EntityScore is one patient's or site's smoothed rate and fixed tier.
type EntityScore struct {
	ID           string
	Kind         graph.NodeKind
	SmoothedRate float64
	Tier         Tier
}

// CommunityRisk aggregates one community's attendance profile. The
// composite score weights the observed outcome over the forward-looking
// individual signal, 0.7 average member rate plus 0.3 high-risk share.
type CommunityRisk struct {
	ID       int
	Patients int
	Sites    int
	Residual bool

	// AvgMemberRate is the mean smoothed rate over patient members, 0 when
	// the community has none.
	AvgMemberRate      float64
	HighRiskPatients   int
	MediumRiskPatients int
	LowRiskPatients    int
	// HighRiskShare is the fraction of patient members tiered High.
	HighRiskShare    float64
	Score            float64
	DominantAgeGroup records.AgeGroup
	Tier             Tier
}

// Model is the complete scoring result for one run. Entities covers every
// node of the scored graph; Communities mirrors the selected partition in
// community-ID order.
type Model struct {
	Entities    map[string]EntityScore
	Communities []*CommunityRisk
	Thresholds  Thresholds
}

// Entity returns the score for a node ID.
func (m *Model) Entity(id string) (EntityScore, bool) {
	s, ok := m.Entities[id]
	return s, ok
}

// Community returns the scored community with the given ID, nil when absent.
func (m *Model) Community(id int) *CommunityRisk {
	for _, c := range m.Communities {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// CommunityTierCounts tallies communities per tier.
func (m *Model) CommunityTierCounts() map[Tier]int {
	counts := make(map[Tier]int, 3)
	for _, c := range m.Communities {
		counts[c.Tier]++
	}
	return counts
}

// PatientTierCounts tallies patient entities per tier.
func (m *Model) PatientTierCounts() map[Tier]int {
	counts := make(map[Tier]int, 3)
	for _, s := range m.Entities {
		if s.Kind == graph.KindPatient {
			counts[s.Tier]++
		}
	}
	return counts
}
