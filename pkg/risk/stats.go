package risk

import (
	"math"
	"sort"

	"golang.org/x/exp/constraints"
)

// Number covers the numeric types the aggregate helpers accept.
type Number interface {
	constraints.Integer | constraints.Float
}

// Sum adds the values as float64.
func Sum[T Number](values []T) float64 {
	var total float64
	for _, v := range values {
		total += float64(v)
	}
	return total
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean[T Number](values []T) float64 {
	if len(values) == 0 {
		return 0
	}
	return Sum(values) / float64(len(values))
}

// Quantile returns the q-th quantile of the values using linear
// interpolation between closest ranks. q is clamped to [0, 1]; an empty
// slice yields 0. The input is not modified.
func Quantile[T Number](values []T, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	for i, v := range values {
		sorted[i] = float64(v)
	}
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	frac := pos - float64(lower)
	if frac == 0 {
		return sorted[lower]
	}
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}
