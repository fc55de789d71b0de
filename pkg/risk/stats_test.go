package risk

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMean(t *testing.T) {
	if got := Mean([]float64{0.1, 0.2, 0.3}); !almostEqual(got, 0.2) {
		t.Errorf("Mean = %f, want 0.2", got)
	}
	if got := Mean([]int{2, 4, 9}); !almostEqual(got, 5.0) {
		t.Errorf("Mean of ints = %f, want 5", got)
	}
	if got := Mean([]float64(nil)); got != 0 {
		t.Errorf("Mean of empty = %f, want 0", got)
	}
}

func TestSum(t *testing.T) {
	if got := Sum([]int{1, 2, 3}); got != 6 {
		t.Errorf("Sum = %f, want 6", got)
	}
	if got := Sum([]float64(nil)); got != 0 {
		t.Errorf("Sum of empty = %f, want 0", got)
	}
}

func TestQuantile_LinearInterpolation(t *testing.T) {
	values := []float64{4, 1, 3, 2} // deliberately unsorted

	tests := []struct {
		q    float64
		want float64
	}{
		{0, 1},
		{0.25, 1.75},
		{0.5, 2.5},
		{0.75, 3.25},
		{1, 4},
	}
	for _, tt := range tests {
		if got := Quantile(values, tt.q); !almostEqual(got, tt.want) {
			t.Errorf("Quantile(%v, %g) = %f, want %f", values, tt.q, got, tt.want)
		}
	}

	if values[0] != 4 {
		t.Error("Quantile must not reorder its input")
	}
}

func TestQuantile_Degenerate(t *testing.T) {
	if got := Quantile([]float64{7}, 0.75); got != 7 {
		t.Errorf("single value quantile = %f, want 7", got)
	}
	if got := Quantile([]float64{}, 0.5); got != 0 {
		t.Errorf("empty quantile = %f, want 0", got)
	}
	if got := Quantile([]float64{1, 2}, -0.5); got != 1 {
		t.Errorf("clamped low quantile = %f, want 1", got)
	}
	if got := Quantile([]float64{1, 2}, 1.5); got != 2 {
		t.Errorf("clamped high quantile = %f, want 2", got)
	}
}

func TestQuantile_ExactRankNoInterpolation(t *testing.T) {
	values := []int{10, 20, 30, 40, 50}
	if got := Quantile(values, 0.25); !almostEqual(got, 20) {
		t.Errorf("Quantile at exact rank = %f, want 20", got)
	}
	if got := Quantile(values, 0.5); !almostEqual(got, 30) {
		t.Errorf("median = %f, want 30", got)
	}
}
