package pipeline

import (
	"time"

	"github.com/dd0wney/attendnet/pkg/algorithms"
	"github.com/dd0wney/attendnet/pkg/risk"
)

// Stage names, in run order.
const (
	StageIngest    = "ingest"
	StageBackbone  = "backbone"
	StageDetection = "detection"
	StageRisk      = "risk"
	StageExport    = "export"
)

// Stage states. Pending and running are only ever seen through the
// progress callback; the report records the terminal states.
const (
	StagePending   = "pending"
	StageRunning   = "running"
	StageCompleted = "completed"
	StageFailed    = "failed"
	StageSkipped   = "skipped"
)

var stageOrder = []string{StageIngest, StageBackbone, StageDetection, StageRisk, StageExport}

// StageReport records one stage's outcome.
type StageReport struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// IngestReport counts what happened to the incoming rows.
type IngestReport struct {
	RowsRead      int            `json:"rows_read"`
	Accepted      int            `json:"accepted"`
	Rejected      int            `json:"rejected"`
	DNACount      int            `json:"dna_count"`
	RejectReasons map[string]int `json:"reject_reasons,omitempty"`
	Warnings      map[string]int `json:"warnings,omitempty"`
}

// GraphReport sizes the built graph.
type GraphReport struct {
	Patients int `json:"patients"`
	Sites    int `json:"sites"`
	Edges    int `json:"edges"`
}

// BackboneReport records the disparity filter outcome.
type BackboneReport struct {
	Alpha      float64 `json:"alpha"`
	InputEdges int     `json:"input_edges"`
	Retained   int     `json:"retained"`
	Pruned     int     `json:"pruned"`
}

// DetectionReport records the winning partition and every strategy's fate.
type DetectionReport struct {
	Strategy    string                      `json:"strategy"`
	Modularity  float64                     `json:"modularity"`
	Communities int                         `json:"communities"`
	Degraded    bool                        `json:"degraded"`
	Strategies  []algorithms.StrategyReport `json:"strategies"`
}

// RiskReport summarizes scoring.
type RiskReport struct {
	PatientsScored   int             `json:"patients_scored"`
	SitesScored      int             `json:"sites_scored"`
	HighRiskPatients int             `json:"high_risk_patients"`
	Thresholds       risk.Thresholds `json:"thresholds"`
}

// ExportReport names what was written where.
type ExportReport struct {
	Sinks []string `json:"sinks"`
	Path  string   `json:"path,omitempty"`
}

// Report is the full account of one pipeline run.
type Report struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Stages     []StageReport `json:"stages"`

	Ingest    IngestReport    `json:"ingest"`
	Graph     GraphReport     `json:"graph"`
	Backbone  BackboneReport  `json:"backbone"`
	Detection DetectionReport `json:"detection"`
	Risk      RiskReport      `json:"risk"`
	Export    ExportReport    `json:"export"`
}

// Stage returns the report for a named stage, if it ran.
func (r *Report) Stage(name string) (StageReport, bool) {
	for _, stage := range r.Stages {
		if stage.Name == name {
			return stage, true
		}
	}
	return StageReport{}, false
}

// Failed reports whether any stage failed.
func (r *Report) Failed() bool {
	for _, stage := range r.Stages {
		if stage.Status == StageFailed {
			return true
		}
	}
	return false
}
