// Package records defines the canonical appointment record and the
// normalizer that produces it from raw extract rows.
package records

import (
	"time"

	"github.com/dd0wney/attendnet/pkg/validation"
)

// Attendance outcome codes, as delivered in source extracts.
const (
	OutcomeUnknown           = "0" // missing or unrecognized in the extract
	OutcomePatientCancelled  = "2"
	OutcomeDidNotAttend      = "3"
	OutcomeProviderCancelled = "4"
	OutcomeSeen              = "5"
	OutcomeLateSeen          = "6"
	OutcomeLateNotSeen       = "7"
)

// IsDNA reports whether an outcome code counts as a failure to attend.
// Only "did not attend" and "arrived too late to be seen" qualify;
// cancellations in either direction do not.
func IsDNA(code string) bool {
	return code == OutcomeDidNotAttend || code == OutcomeLateNotSeen
}

// RawRecord is one row as delivered by an ingestion source, every field
// still a string. The normalizer owns all trimming, casing and coercion.
type RawRecord struct {
	PatientKey        string
	SiteCode          string
	Age               string
	Outcome           string
	Date              string
	PostcodeSector    string
	ProviderLocation  string
	OrgCode           string
	TreatmentFunction string
}

// Record is the canonical post-normalization appointment record.
type Record struct {
	PatientKey        string `validate:"required,max=64"`
	SiteCode          string `validate:"required,max=32"`
	Age               *int   `validate:"omitempty,gte=0,lte=130"`
	Outcome           string `validate:"oneof=0 2 3 4 5 6 7"`
	Date              time.Time
	PostcodeSector    string
	ProviderLocation  string
	OrgCode           string
	TreatmentFunction string
}

// DNA reports whether this record counts as a failure to attend.
func (r Record) DNA() bool {
	return IsDNA(r.Outcome)
}

// Validate checks the canonical invariants via struct tags.
func (r Record) Validate() error {
	return validation.Struct(r)
}
