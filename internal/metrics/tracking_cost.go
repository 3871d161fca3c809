package metrics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcsim/internal/sim"
)

// TrackingCost accumulates the realised stage cost (x-r)ᵀQ(x-r) + uᵀRu,
// with r the reference sample for the step (the last one past the end, zero
// without a reference).
type TrackingCost struct {
	name    string
	q, r    mat.Matrix
	ref     []sim.State
	total   float64
	samples int
}

func NewTrackingCost(q, r mat.Matrix, ref []sim.State) *TrackingCost {
	return &TrackingCost{
		name: "tracking_cost",
		q:    q,
		r:    r,
		ref:  ref,
	}
}

func (c *TrackingCost) Name() string { return c.name }

func (c *TrackingCost) Observe(x sim.State, u sim.Control, t int) {
	dev := x.Clone()
	if len(c.ref) > 0 {
		dev = x.Sub(c.ref[min(t, len(c.ref)-1)])
	}
	dv := mat.NewVecDense(len(dev), dev)
	uv := mat.NewVecDense(len(u), u.Clone())
	c.total += mat.Inner(dv, c.q, dv) + mat.Inner(uv, c.r, uv)
	c.samples++
}

func (c *TrackingCost) Value() float64 { return c.total }

func (c *TrackingCost) Reset() {
	c.total = 0
	c.samples = 0
}

// TrackingError is the mean Euclidean distance between state and reference.
// Unlike TrackingCost it does not depend on the weights, so it can compare
// runs with different tunings.
type TrackingError struct {
	name    string
	ref     []sim.State
	sum     float64
	samples int
}

func NewTrackingError(ref []sim.State) *TrackingError {
	return &TrackingError{name: "tracking_error", ref: ref}
}

func (e *TrackingError) Name() string { return e.name }

func (e *TrackingError) Observe(x sim.State, u sim.Control, t int) {
	if len(e.ref) > 0 {
		e.sum += x.Sub(e.ref[min(t, len(e.ref)-1)]).Norm()
	} else {
		e.sum += x.Norm()
	}
	e.samples++
}

func (e *TrackingError) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.sum / float64(e.samples)
}

func (e *TrackingError) Reset() {
	e.sum = 0
	e.samples = 0
}
