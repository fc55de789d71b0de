package graph

import (
	"strings"
	"time"

	"github.com/dd0wney/attendnet/pkg/records"
)

// NodeKind identifies which side of the bipartite partition a node belongs to.
type NodeKind string

const (
	KindPatient NodeKind = "patient"
	KindSite    NodeKind = "site"
)

// ID namespace prefixes keep patient keys and site codes from colliding in a
// single node ID space.
const (
	patientPrefix = "P_"
	sitePrefix    = "S_"
)

// PatientID returns the namespaced node ID for a patient key.
func PatientID(key string) string {
	return patientPrefix + key
}

// SiteID returns the namespaced node ID for a site code.
func SiteID(code string) string {
	return sitePrefix + code
}

// KindOf derives the node kind from a namespaced ID.
func KindOf(id string) (NodeKind, bool) {
	switch {
	case strings.HasPrefix(id, patientPrefix):
		return KindPatient, true
	case strings.HasPrefix(id, sitePrefix):
		return KindSite, true
	default:
		return "", false
	}
}

// Node is a patient or site vertex with appointment aggregates accumulated
// across every record that touched it.
type Node struct {
	ID   string
	Kind NodeKind
	Key  string // raw patient key or site code, without the namespace prefix

	Appointments int
	DNACount     int

	// Patient attributes, taken from the first record that carried them.
	Age            *int
	AgeGroup       records.AgeGroup
	PostcodeSector string

	// Site attributes, taken from the first record that carried them.
	ProviderLocation  string
	TreatmentFunction string

	// OrgCode is filled for either kind from the first record that carried it.
	OrgCode string

	// Distinct counterparties in the full graph, filled in when building
	// completes so they survive backbone pruning.
	UniqueSites    int // patients: distinct sites attended
	UniquePatients int // sites: distinct patients seen
}

// DNARate returns the raw missed-appointment rate for the node.
func (n *Node) DNARate() float64 {
	if n.Appointments == 0 {
		return 0
	}
	return float64(n.DNACount) / float64(n.Appointments)
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	clone := *n
	if n.Age != nil {
		age := *n.Age
		clone.Age = &age
	}
	return &clone
}

// EdgeKey identifies a patient-site edge.
type EdgeKey struct {
	PatientID string
	SiteID    string
}

// Edge aggregates every appointment between one patient and one site.
type Edge struct {
	PatientID string
	SiteID    string
	Weight    int // total appointments
	DNACount  int // missed appointments

	// First-appointment context, kept from the first record seen for the
	// pair.
	FirstDate         time.Time
	TreatmentFunction string
}

// Key returns the edge's map key.
func (e *Edge) Key() EdgeKey {
	return EdgeKey{PatientID: e.PatientID, SiteID: e.SiteID}
}

// DNARate returns the fraction of this pair's appointments that were missed.
func (e *Edge) DNARate() float64 {
	if e.Weight == 0 {
		return 0
	}
	return float64(e.DNACount) / float64(e.Weight)
}

// Clone returns a copy of the edge.
func (e *Edge) Clone() *Edge {
	clone := *e
	return &clone
}

// Stats tracks graph-wide totals.
type Stats struct {
	Patients     uint64
	Sites        uint64
	Edges        uint64
	Appointments uint64
	DNATotal     uint64
}
