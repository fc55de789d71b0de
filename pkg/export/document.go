// Package export projects a scored graph, its partition and its risk model
// into the JSON document consumed by the network dashboard, and writes it
// to one or more sinks. Every statistic in the document is computed
// upstream; this package only arranges and serializes.
package export

import (
	"fmt"
	"time"

	"github.com/dd0wney/attendnet/pkg/risk"
)

// Document is the complete wire artifact of one pipeline run.
type Document struct {
	Metadata    Metadata          `json:"metadata"`
	Nodes       []NodeRecord      `json:"nodes"`
	Links       []LinkRecord      `json:"links"`
	Communities []CommunityRecord `json:"communities"`
	Summary     Summary           `json:"summary"`
}

// Metadata describes the run that produced the document.
type Metadata struct {
	RunID                 string          `json:"run_id"`
	TotalNodes            int             `json:"total_nodes"`
	TotalEdges            int             `json:"total_edges"`
	TotalCommunities      int             `json:"total_communities"`
	HighRiskCommunities   int             `json:"high_risk_communities"`
	MediumRiskCommunities int             `json:"medium_risk_communities"`
	LowRiskCommunities    int             `json:"low_risk_communities"`
	Thresholds            risk.Thresholds `json:"thresholds"`
	GeneratedAt           time.Time       `json:"generated_at"`
	Algorithm             string          `json:"algorithm"`
	Degraded              bool            `json:"degraded,omitempty"`
}

// NodeRecord is one entity in the exported network. Common fields are
// always present; the remainder depend on the node type.
type NodeRecord struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Community    int     `json:"community"`
	RiskLevel    string  `json:"risk_level"` // the community's tier
	DNARate      float64 `json:"dna_rate"`   // smoothed
	Appointments int     `json:"appointments"`
	DNACount     int     `json:"dna_count"`
	RiskCategory string  `json:"risk_category"` // the entity's own tier

	// Patient fields.
	AgeGroup    string `json:"age_group,omitempty"`
	Age         *int   `json:"age,omitempty"`
	UniqueSites int    `json:"unique_sites,omitempty"`
	Postcode    string `json:"postcode,omitempty"`

	// Site fields.
	Location          string `json:"location,omitempty"`
	UniquePatients    int    `json:"unique_patients,omitempty"`
	TreatmentFunction string `json:"treatment_function,omitempty"`
	OrgCode           string `json:"org_code,omitempty"`
}

// LinkRecord is one patient-site edge. Strength is the weight normalized
// for force-directed rendering, capped at 1.
type LinkRecord struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Weight   int     `json:"weight"`
	DNACount int     `json:"dna_count"`
	DNARate  float64 `json:"dna_rate"` // raw, per edge
	Strength float64 `json:"strength"`
}

// CommunityRecord is one community's aggregate profile.
type CommunityRecord struct {
	ID                 int     `json:"id"`
	Patients           int     `json:"patients"`
	Sites              int     `json:"sites"`
	AvgDNARate         float64 `json:"avg_dna_rate"`
	RiskScore          float64 `json:"risk_score"`
	DominantAge        string  `json:"dominant_age"`
	HighRiskPatients   int     `json:"high_risk_patients"`
	MediumRiskPatients int     `json:"medium_risk_patients"`
	LowRiskPatients    int     `json:"low_risk_patients"`
	RiskLevel          string  `json:"risk_level"`
	Residual           bool    `json:"residual,omitempty"`
}

// Summary gives headline figures for dashboards that do not walk the full
// node list.
type Summary struct {
	TotalPatients        int            `json:"total_patients"`
	TotalSites           int            `json:"total_sites"`
	OverallDNARate       float64        `json:"overall_dna_rate"`
	HighRiskPatients     int            `json:"high_risk_patients"`
	HighRiskPatientShare float64        `json:"high_risk_patient_share"`
	AgeGroups            map[string]int `json:"age_groups"`
	RiskDistribution     map[string]int `json:"risk_distribution"`
}

// Validate checks the document's referential integrity: every link endpoint
// must be a listed node, every node's community must be a listed community,
// and the metadata totals must match the lists.
func (d *Document) Validate() error {
	nodes := make(map[string]struct{}, len(d.Nodes))
	for _, node := range d.Nodes {
		if node.ID == "" {
			return fmt.Errorf("export: node with empty id")
		}
		if _, dup := nodes[node.ID]; dup {
			return fmt.Errorf("export: duplicate node %s", node.ID)
		}
		nodes[node.ID] = struct{}{}
	}

	communities := make(map[int]struct{}, len(d.Communities))
	for _, community := range d.Communities {
		communities[community.ID] = struct{}{}
	}

	for _, link := range d.Links {
		if _, ok := nodes[link.Source]; !ok {
			return fmt.Errorf("export: link source %s is not a node", link.Source)
		}
		if _, ok := nodes[link.Target]; !ok {
			return fmt.Errorf("export: link target %s is not a node", link.Target)
		}
	}

	for _, node := range d.Nodes {
		if _, ok := communities[node.Community]; !ok {
			return fmt.Errorf("export: node %s references unknown community %d", node.ID, node.Community)
		}
	}

	if d.Metadata.TotalNodes != len(d.Nodes) {
		return fmt.Errorf("export: metadata counts %d nodes, document has %d", d.Metadata.TotalNodes, len(d.Nodes))
	}
	if d.Metadata.TotalEdges != len(d.Links) {
		return fmt.Errorf("export: metadata counts %d edges, document has %d", d.Metadata.TotalEdges, len(d.Links))
	}
	if d.Metadata.TotalCommunities != len(d.Communities) {
		return fmt.Errorf("export: metadata counts %d communities, document has %d", d.Metadata.TotalCommunities, len(d.Communities))
	}
	return nil
}
