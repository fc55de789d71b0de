package records

import (
	"testing"
)

// FuzzNormalize checks that the normalizer never panics and that every
// accepted record satisfies the canonical invariants.
//
// Run with: go test -fuzz=FuzzNormalize -fuzztime=30s
func FuzzNormalize(f *testing.F) {
	f.Add("P123", "RJ122", "42", "3", "2024-03-15")
	f.Add("", "", "", "", "")
	f.Add("   ", "rj1", "abc", "9", "not-a-date")
	f.Add("p\x00x", "S1", "-5", "", "15/03/2024")
	f.Add("P1", "S1", "200", "7", "2024-03-15 09:30:00")

	n := NewNormalizer()

	f.Fuzz(func(t *testing.T, patientKey, siteCode, age, outcome, date string) {
		rec, _, err := n.Normalize(RawRecord{
			PatientKey: patientKey,
			SiteCode:   siteCode,
			Age:        age,
			Outcome:    outcome,
			Date:       date,
		})
		if err != nil {
			if _, ok := err.(*RejectError); !ok {
				t.Errorf("Normalize returned non-reject error %T: %v", err, err)
			}
			return
		}

		if rec.PatientKey == "" {
			t.Error("Accepted record has empty patient key")
		}
		if rec.SiteCode == "" {
			t.Error("Accepted record has empty site code")
		}
		switch rec.Outcome {
		case OutcomeUnknown, OutcomePatientCancelled, OutcomeDidNotAttend,
			OutcomeProviderCancelled, OutcomeSeen, OutcomeLateSeen, OutcomeLateNotSeen:
		default:
			t.Errorf("Accepted record has outcome %q outside the vocabulary", rec.Outcome)
		}
		if rec.Age != nil && (*rec.Age < 0 || *rec.Age > 130) {
			t.Errorf("Accepted record has implausible age %d", *rec.Age)
		}
	})
}
