package records

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rejection reasons. Rejected rows are counted in the processing report,
// never fatal.
const (
	RejectMissingPatientKey = "missing_patient_key"
	RejectMissingSiteCode   = "missing_site_code"
	RejectInvalidRecord     = "invalid_record"
)

// Warning reasons. The row is kept with the offending field coerced.
const (
	WarnUnknownOutcome = "unknown_outcome"
	WarnBadAge         = "bad_age"
	WarnBadDate        = "bad_date"
)

// RejectError marks a row dropped during normalization.
type RejectError struct {
	Reason string
	Detail string
}

func (e *RejectError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("record rejected: %s", e.Reason)
	}
	return fmt.Sprintf("record rejected: %s (%s)", e.Reason, e.Detail)
}

// Date layouts accepted in extracts, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	time.RFC3339,
}

// Normalizer coerces raw extract rows into canonical records.
// A nil Pseudonymizer passes patient keys through unchanged.
type Normalizer struct {
	pseudo *Pseudonymizer
}

// NewNormalizer creates a normalizer without pseudonymization.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NewPseudonymizingNormalizer creates a normalizer that replaces patient
// keys with keyed BLAKE2b tokens before they enter the graph.
func NewPseudonymizingNormalizer(p *Pseudonymizer) *Normalizer {
	return &Normalizer{pseudo: p}
}

// Normalize coerces one raw row. The returned warnings name fields that
// were coerced to a fallback; a non-nil error is always a *RejectError.
func (n *Normalizer) Normalize(raw RawRecord) (Record, []string, error) {
	var warnings []string

	// Patient keys are only trimmed; pseudonymized tokens are case-sensitive.
	// Everything else is trimmed and upper-cased.
	patientKey := strings.TrimSpace(raw.PatientKey)
	if patientKey == "" {
		return Record{}, nil, &RejectError{Reason: RejectMissingPatientKey}
	}
	if n.pseudo != nil {
		patientKey = n.pseudo.Token(patientKey)
	}

	siteCode := normString(raw.SiteCode)
	if siteCode == "" {
		return Record{}, nil, &RejectError{Reason: RejectMissingSiteCode}
	}

	outcome := normString(raw.Outcome)
	switch outcome {
	case "":
		outcome = OutcomeUnknown
	case OutcomeUnknown, OutcomePatientCancelled, OutcomeDidNotAttend,
		OutcomeProviderCancelled, OutcomeSeen, OutcomeLateSeen, OutcomeLateNotSeen:
		// recognized
	default:
		outcome = OutcomeUnknown
		warnings = append(warnings, WarnUnknownOutcome)
	}

	age, ok := parseAge(raw.Age)
	if !ok {
		warnings = append(warnings, WarnBadAge)
	}

	date, ok := parseDate(raw.Date)
	if !ok {
		warnings = append(warnings, WarnBadDate)
	}

	rec := Record{
		PatientKey:        patientKey,
		SiteCode:          siteCode,
		Age:               age,
		Outcome:           outcome,
		Date:              date,
		PostcodeSector:    normString(raw.PostcodeSector),
		ProviderLocation:  normString(raw.ProviderLocation),
		OrgCode:           normString(raw.OrgCode),
		TreatmentFunction: normString(raw.TreatmentFunction),
	}

	if err := rec.Validate(); err != nil {
		return Record{}, nil, &RejectError{Reason: RejectInvalidRecord, Detail: err.Error()}
	}

	return rec, warnings, nil
}

// normString applies the standard extract normalization: trim and upper-case.
func normString(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// parseAge returns (nil, true) for a blank age, (nil, false) for an
// unusable one, and the parsed value otherwise.
func parseAge(s string) (*int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 || v > 130 {
		return nil, false
	}
	return &v, true
}

// parseDate returns (zero, true) for a blank date and (zero, false) for an
// unparseable one. The date is carried as metadata only, so a bad value
// coerces rather than rejects.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
