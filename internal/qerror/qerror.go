// Package qerror computes the signed q-error of a cardinality estimate.
//
// The q-error is positive when the optimizer overestimated and negative when it
// underestimated. Only the divisor is floored at 1, so zero row counts never
// fail and the magnitude is at least 1 whenever both counts are at least 1.
// Counts below 1 on both sides give a magnitude below 1.
//
// An exact estimate yields -1: equality falls into the underestimation branch.
package qerror

import "math"

// Of returns the signed q-error for an estimated and an actual row count.
func Of(estimated, actual float64) float64 {
	if estimated > actual {
		return estimated / math.Max(actual, 1)
	}
	return -1 * (actual / math.Max(estimated, 1))
}

// Magnitude returns the unsigned error factor.
func Magnitude(q float64) float64 {
	return math.Abs(q)
}

// Overestimated reports whether q describes an overestimation.
func Overestimated(q float64) bool {
	return q > 0
}
