package cpmm

import "math"

// Epsilon is the tolerance for monetary comparisons across the whole core.
// Every component treats near-zero the same way: a subsidy pool below
// Epsilon is empty, a redeemable position below Epsilon is closed.
const Epsilon = 1e-8

// FloatingEqual reports whether a and b are equal within Epsilon.
func FloatingEqual(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// FloatingLesserEqual reports whether a <= b within Epsilon.
func FloatingLesserEqual(a, b float64) bool {
	return a-Epsilon <= b
}

// Clamp restricts x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// IsFinite reports whether x is neither NaN nor infinite.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
