package mot

import (
	"sort"
)

func maxFloat64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// median returns the middle value of values (mean of the two middle values for even length).
// Values are not modified.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2.0
}

// topByY returns the k points with smallest Y. Ties keep input order.
func topByY(points []Point, k int) []Point {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Y < sorted[j].Y
	})
	if k > len(sorted) {
		k = len(sorted)
	}
	return sorted[:k]
}

func copyPoints(points []Point) []Point {
	if points == nil {
		return nil
	}
	cp := make([]Point, len(points))
	copy(cp, points)
	return cp
}
