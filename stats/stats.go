// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package stats

import (
	"math"
	"sort"
)

// estimateScale is the ordered set of valid estimate values.
var estimateScale = []float64{0, 1, 1, 2, 3, 5, 8}

// Stats holds the aggregates for one issue's votes.
type Stats struct {
	Lowest  float64 `json:"lowest"`
	Highest float64 `json:"highest"`
	Median  float64 `json:"median"`
	Average float64 `json:"average"`
}

// CalculateStats computes aggregates over a vote list. Abstains (nil) are
// filtered out first. An empty or all-abstain input yields the zero Stats;
// that is a defined default, not an error. Average is never rounded here;
// callers round for display only.
func CalculateStats(votes []*float64) Stats {
	values := make([]float64, 0, len(votes))
	for _, v := range votes {
		if v != nil {
			values = append(values, *v)
		}
	}

	if len(values) == 0 {
		return Stats{}
	}

	sort.Float64s(values)

	return Stats{
		Lowest:  values[0],
		Highest: values[len(values)-1],
		Median:  median(values),
		Average: mean(values),
	}
}

// RoundToNearestFibonacci returns the member of the estimate scale closest
// to v by absolute difference. An exact tie resolves to the larger member.
// Values at or below zero return 0.
func RoundToNearestFibonacci(v float64) float64 {
	if v <= 0 {
		return 0
	}

	nearest := estimateScale[0]
	best := math.Abs(v - nearest)
	for _, candidate := range estimateScale[1:] {
		d := math.Abs(v - candidate)
		// <= keeps the later (larger) candidate on an exact tie.
		if d <= best {
			nearest = candidate
			best = d
		}
	}
	return nearest
}

// median returns the central value of sorted data, or the midpoint average
// of the two central values when the count is even.
func median(sorted []float64) float64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// mean calculates the arithmetic mean
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
