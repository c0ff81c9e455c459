// Package fraction turns non-integer division results into exact reduced
// fractions so the board never shows truncated decimals.
package fraction

import (
	"fmt"
	"math"
)

// Tolerance bounds how far the reconstructed fraction may sit from the
// input before the expansion stops.
const Tolerance = 1e-6

// Split approximates x as a reduced fraction num/den using continued
// fraction convergents. It terminates once num/den is within Tolerance of
// x, which for the small rationals a 24 board produces means the exact
// fraction.
func Split(x float64) (num, den int64) {
	sign := int64(1)
	if x < 0 {
		sign = -1
		x = -x
	}

	// Convergents h/k, seeded with the standard (0/1, 1/0) pair.
	var h0, k0, h1, k1 int64 = 0, 1, 1, 0
	f := x
	for i := 0; i < 64; i++ {
		a := int64(math.Floor(f))
		h0, h1 = h1, a*h1+h0
		k0, k1 = k1, a*k1+k0
		if math.Abs(x-float64(h1)/float64(k1)) < Tolerance {
			break
		}
		frac := f - math.Floor(f)
		if frac == 0 {
			break
		}
		f = 1 / frac
	}
	return sign * h1, k1
}

// Display renders x the way the board shows it: a bare integer when x is
// whole, otherwise the exact fraction.
func Display(x float64) string {
	if x == math.Trunc(x) {
		return fmt.Sprintf("%d", int64(x))
	}
	num, den := Split(x)
	return fmt.Sprintf("%d/%d", num, den)
}
