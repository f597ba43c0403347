// Package segment ranks customers into equal-frequency value tiers.
package segment

import (
	"math"
	"slices"

	"github.com/okian/cltv/internal/domain/model"
	"github.com/okian/cltv/internal/domain/numeric"
)

// DefaultLabels are the tier names from lowest to highest value.
var DefaultLabels = []string{"D", "C", "B", "A"}

// MinMax rescales values linearly onto [0, 1]. A constant input maps to
// zeros.
func MinMax(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := slices.Min(values), slices.Max(values)
	span := hi - lo
	if span == 0 || math.IsInf(span, 0) {
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / span
	}
	return out
}

// Quantiles assigns each value the label of its equal-frequency bin. Bin
// edges sit at the k/len(labels) quantiles; bins are right-closed with the
// lowest edge included. Repeated edges make the bins ambiguous and are
// rejected.
func Quantiles(values []float64, labels []string) ([]string, error) {
	if len(labels) == 0 {
		return nil, model.Invalid("labels", "", "must not be empty", 0)
	}
	out := make([]string, len(values))
	if len(values) == 0 {
		return out, nil
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)
	n := len(labels)
	edges := make([]float64, n+1)
	for k := range edges {
		edges[k] = numeric.SortedQuantile(sorted, float64(k)/float64(n))
	}
	for k := 1; k < len(edges); k++ {
		if !(edges[k] > edges[k-1]) {
			return nil, model.Invalid("values", "", "produce duplicate bin edges", edges)
		}
	}

	for i, v := range values {
		// First edge >= v; values on an edge belong to the bin it closes.
		k, _ := slices.BinarySearch(edges[1:], v)
		if k >= n {
			k = n - 1
		}
		out[i] = labels[k]
	}
	return out, nil
}

// Counts returns how many values fall under each label.
func Counts(assigned []string, labels []string) map[string]int {
	counts := make(map[string]int, len(labels))
	for _, l := range labels {
		counts[l] = 0
	}
	for _, a := range assigned {
		counts[a]++
	}
	return counts
}
