package stats

import (
	"math"
	"testing"
)

func fp(v float64) *float64 { return &v }

func TestCalculateStats(t *testing.T) {
	tests := []struct {
		name  string
		votes []*float64
		want  Stats
	}{
		{
			name:  "empty input",
			votes: []*float64{},
			want:  Stats{},
		},
		{
			name:  "all abstains",
			votes: []*float64{nil, nil},
			want:  Stats{},
		},
		{
			name:  "odd count",
			votes: []*float64{fp(1), fp(2), fp(3), fp(4), fp(5)},
			want:  Stats{Lowest: 1, Highest: 5, Median: 3, Average: 3},
		},
		{
			name:  "even count median is midpoint",
			votes: []*float64{fp(1), fp(2), fp(3), fp(8)},
			want:  Stats{Lowest: 1, Highest: 8, Median: 2.5, Average: 3.5},
		},
		{
			name:  "abstains are ignored",
			votes: []*float64{fp(5), nil, fp(3), nil, fp(1)},
			want:  Stats{Lowest: 1, Highest: 5, Median: 3, Average: 3},
		},
		{
			name:  "unsorted input",
			votes: []*float64{fp(8), fp(0), fp(5)},
			want:  Stats{Lowest: 0, Highest: 8, Median: 5, Average: 13.0 / 3.0},
		},
		{
			name:  "single vote",
			votes: []*float64{fp(2)},
			want:  Stats{Lowest: 2, Highest: 2, Median: 2, Average: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateStats(tt.votes)
			if got.Lowest != tt.want.Lowest {
				t.Errorf("Lowest = %v, want %v", got.Lowest, tt.want.Lowest)
			}
			if got.Highest != tt.want.Highest {
				t.Errorf("Highest = %v, want %v", got.Highest, tt.want.Highest)
			}
			if got.Median != tt.want.Median {
				t.Errorf("Median = %v, want %v", got.Median, tt.want.Median)
			}
			if math.Abs(got.Average-tt.want.Average) > 1e-9 {
				t.Errorf("Average = %v, want %v", got.Average, tt.want.Average)
			}
		})
	}
}

func TestCalculateStatsFractionalAverage(t *testing.T) {
	got := CalculateStats([]*float64{fp(1), fp(2), fp(4)})
	if math.Abs(got.Average-2.3333333333) > 1e-6 {
		t.Errorf("Average = %v, want ≈2.3333", got.Average)
	}
}

func TestRoundToNearestFibonacci(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-3, 0},
		{0, 0},
		{0.4, 0},
		{0.5, 1}, // tie between 0 and 1 resolves up
		{1, 1},
		{1.5, 2}, // tie between 1 and 2 resolves up
		{2, 2},
		{2.5, 3}, // tie between 2 and 3 resolves up
		{3, 3},
		{4, 5}, // tie between 3 and 5 resolves up
		{5, 5},
		{6, 5},
		{6.5, 8}, // tie between 5 and 8 resolves up
		{7, 8},
		{8, 8},
		{100, 8},
	}

	for _, tt := range tests {
		if got := RoundToNearestFibonacci(tt.in); got != tt.want {
			t.Errorf("RoundToNearestFibonacci(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// Every integer input 0..8 must land on the reference table exactly.
func TestRoundToNearestFibonacciReferenceTable(t *testing.T) {
	want := map[int]float64{0: 0, 1: 1, 2: 2, 3: 3, 4: 5, 5: 5, 6: 5, 7: 8, 8: 8}
	for in := 0; in <= 8; in++ {
		if got := RoundToNearestFibonacci(float64(in)); got != want[in] {
			t.Errorf("RoundToNearestFibonacci(%d) = %v, want %v", in, got, want[in])
		}
	}
}
