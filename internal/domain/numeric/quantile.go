package numeric

import (
	"math"
	"slices"
)

// Quantile returns the q-quantile of values with linear interpolation
// between closest ranks, position q*(n-1) in sorted order. It returns NaN for
// an empty input or q outside [0, 1].
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 || q < 0 || q > 1 || math.IsNaN(q) {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return SortedQuantile(sorted, q)
}

// SortedQuantile is Quantile for already sorted input.
func SortedQuantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 || q < 0 || q > 1 || math.IsNaN(q) {
		return math.NaN()
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
