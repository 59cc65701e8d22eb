// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package stats computes vote aggregates for a round.

CalculateStats returns {lowest, highest, median, average} over a list of
votes, ignoring abstains (nil values):

	s := stats.CalculateStats(votes)

RoundToNearestFibonacci snaps an arbitrary aggregate to the nearest valid
estimate value (0, 1, 2, 3, 5, 8), resolving exact ties upward. It is used
by the coordinator before an estimate write-back and by the server as a
safety net on the write-back endpoint.

Both functions are pure and total: no I/O, no error returns, defined
outputs for empty and out-of-range inputs.
*/
package stats
