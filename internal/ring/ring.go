// Package ring implements position arithmetic on a closed loop [0, L).
//
// Every value leaving this package is rounded to Precision fractional digits
// so positions produced by different code paths compare exactly.
package ring

import (
	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits kept for positions and speeds.
const Precision int32 = 2

// Round rounds x to Precision fractional digits (half away from zero).
func Round(x float64) float64 {
	return decimal.NewFromFloat(x).Round(Precision).InexactFloat64()
}

// Wrap maps x onto [0, length). length must be positive.
func Wrap(x, length float64) float64 {
	return wrap(decimal.NewFromFloat(x).Round(Precision), length)
}

// Advance moves pos forward by dist. The sum is rounded before the modulus
// is taken, matching the behaviour of the speed policies.
func Advance(pos, dist, length float64) float64 {
	sum := decimal.NewFromFloat(pos).Add(decimal.NewFromFloat(dist)).Round(Precision)
	return wrap(sum, length)
}

// ForwardDistance is the distance travelled going forward from "from" to "to".
// The result lies in [0, length).
func ForwardDistance(from, to, length float64) float64 {
	d := decimal.NewFromFloat(to).Sub(decimal.NewFromFloat(from)).Round(Precision)
	return wrap(d, length)
}

// Crossed reports the first stop lying in the half-open arc (from, to]
// travelling forward, accounting for wraparound when to < from.
// stops must be sorted ascending. The second value counts every stop
// in the arc so callers can detect a move that skips a stop.
func Crossed(stops []float64, from, to, length float64) (stop float64, n int) {
	if from == to {
		return 0, 0
	}
	arc := ForwardDistance(from, to, length)
	first := -1.0
	best := length
	for _, s := range stops {
		d := ForwardDistance(from, s, length)
		if d == 0 || d > arc {
			continue
		}
		n++
		if d < best {
			best = d
			first = s
		}
	}
	if n == 0 {
		return 0, 0
	}
	return first, n
}

func wrap(d decimal.Decimal, length float64) float64 {
	l := decimal.NewFromFloat(length)
	m := d.Mod(l)
	if m.IsNegative() {
		m = m.Add(l)
	}
	m = m.Round(Precision)
	if m.GreaterThanOrEqual(l) {
		return 0
	}
	return m.InexactFloat64()
}
