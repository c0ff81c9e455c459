package solver

import "math"

// Target is the value every puzzle must reach.
const Target = 24

// Epsilon absorbs float drift from intermediate divisions.
const Epsilon = 0.001

// Solvable reports whether some sequence of binary +, -, *, / over the
// given values can reach 24. Each step picks an ordered pair (subtraction
// and division are not commutative), replaces it with one candidate
// result and recurses on the reduced list. Short-circuits on the first
// hit; at four values the search space is small enough that no
// memoization is worth it.
func Solvable(vals []float64) bool {
	if len(vals) == 0 {
		return false
	}
	if len(vals) == 1 {
		return math.Abs(vals[0]-Target) < Epsilon
	}

	for i := range vals {
		for j := range vals {
			if i == j {
				continue
			}
			a, b := vals[i], vals[j]

			rest := make([]float64, 0, len(vals)-1)
			for k := range vals {
				if k != i && k != j {
					rest = append(rest, vals[k])
				}
			}

			candidates := []float64{a + b, a - b, a * b}
			if b != 0 {
				candidates = append(candidates, a/b)
			}
			for _, c := range candidates {
				if Solvable(append(rest, c)) {
					return true
				}
			}
		}
	}
	return false
}
