package domain

import "math"

// Epsilon is the tolerance used for near-equality comparisons on USD
// values. Per §4.4, epsilon is used only for near-equality checks, never
// to decide an ordering (a ≤ b / a ≥ b comparisons are exact).
const Epsilon = 1e-9

// NearlyEqual reports whether a and b are within Epsilon of each other.
func NearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= Epsilon
}

// Compare provides a total ordering over float64 that treats NaN as
// neither greater nor less than any value, replacing the source's
// partial_cmp().unwrap() panic pattern (§9 redesign note) with an explicit
// decision: NaN inputs are rejected by ValidateFinite at the boundary
// rather than compared.
func Compare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ValidateFinite rejects NaN/Inf inputs as a Validation error at the
// boundary, per §9's redesign note on partial_cmp panics.
func ValidateFinite(op string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NewError(ErrValidation, op, errNonFiniteValue)
	}
	return nil
}
