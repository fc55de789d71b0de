// Package risk converts raw attendance counts into smoothed rates and
// tiered classifications for patients, sites and communities.
//
// Entities are smoothed with fixed pseudo-counts and tiered by fixed
// clinical cut points. Communities get a composite score and are tiered
// relative to the other communities of the same run, so the High/Medium/Low
// split stays near 25/50/25 regardless of the dataset's absolute rates.
package risk

// Smoothing pseudo-counts. One prior DNA over five prior appointments
// encodes a 20% baseline rate and keeps single-visit entities away from
// 0% and 100%.
const (
	priorDNA          = 1
	priorAppointments = 5
)

// Fixed cut points for individual tiers. Community tiers use per-run
// quartiles instead, see Thresholds.
const (
	HighRateThreshold   = 0.30
	MediumRateThreshold = 0.10
)

// Tier is a three-level risk classification.
type Tier string

const (
	TierHigh   Tier = "High"
	TierMedium Tier = "Medium"
	TierLow    Tier = "Low"
)

// SmoothedRate returns the Bayesian point estimate (dna+1)/(appointments+5).
// For any non-negative counts with dna <= appointments the result is
// strictly inside (0, 1).
func SmoothedRate(dna, appointments int) float64 {
	return float64(dna+priorDNA) / float64(appointments+priorAppointments)
}

// ClassifyRate tiers an individual smoothed rate by the fixed cut points.
func ClassifyRate(rate float64) Tier {
	switch {
	case rate > HighRateThreshold:
		return TierHigh
	case rate > MediumRateThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

// Thresholds are the quartile cut points computed over one run's community
// scores. They are recorded in the exported snapshot so a reader can audit
// the classification.
type Thresholds struct {
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}

// ClassifyScore tiers a community composite score against the run's
// thresholds. Both comparisons are inclusive and High is checked first, so
// a degenerate distribution where the cut points coincide classifies High.
func ClassifyScore(score float64, t Thresholds) Tier {
	switch {
	case score >= t.High:
		return TierHigh
	case score <= t.Low:
		return TierLow
	default:
		return TierMedium
	}
}
