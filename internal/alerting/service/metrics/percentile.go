package metrics

import (
	"math"
	"slices"
)

// Percentile returns the nearest-rank percentile of values: the element at
// ceil(p/100*n)-1 of the ascending sort, clamped to the valid index range.
// An empty input yields 0. values is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

// rate is count as a percentage of total, with total floored at 1.
func rate(count, total int) float64 {
	return float64(count) * 100 / float64(max(total, 1))
}
