package metrics

import (
	"math"

	"github.com/san-kum/mpcsim/internal/sim"
)

const violationTol = 1e-6

// BoundViolation is the fraction of steps whose state or input left its box.
// Nil bounds are unchecked.
type BoundViolation struct {
	name       string
	xmin, xmax []float64
	umin, umax []float64
	violations int
	samples    int
	worst      float64
}

func NewBoundViolation(xmin, xmax, umin, umax []float64) *BoundViolation {
	return &BoundViolation{
		name: "bound_violation",
		xmin: xmin,
		xmax: xmax,
		umin: umin,
		umax: umax,
	}
}

func (b *BoundViolation) Name() string {
	return b.name
}

func (b *BoundViolation) Observe(x sim.State, u sim.Control, t int) {
	b.samples++
	excess := math.Max(outside(x, b.xmin, b.xmax), outside(u, b.umin, b.umax))
	b.worst = math.Max(b.worst, excess)
	if excess > violationTol {
		b.violations++
	}
}

func (b *BoundViolation) Value() float64 {
	if b.samples == 0 {
		return 0
	}
	return float64(b.violations) / float64(b.samples)
}

// Worst returns the largest excess over any bound seen so far.
func (b *BoundViolation) Worst() float64 { return b.worst }

func (b *BoundViolation) Reset() {
	b.violations = 0
	b.samples = 0
	b.worst = 0
}

func outside(v, lo, hi []float64) float64 {
	worst := 0.0
	for i, val := range v {
		if i < len(lo) {
			worst = math.Max(worst, lo[i]-val)
		}
		if i < len(hi) {
			worst = math.Max(worst, val-hi[i])
		}
	}
	return worst
}
