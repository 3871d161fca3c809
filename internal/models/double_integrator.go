package models

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcsim/internal/sim"
)

// DoubleIntegrator is a point mass driven by a force: state [pos, vel].
type DoubleIntegrator struct {
	Mass float64
}

func NewDoubleIntegrator() *DoubleIntegrator {
	return &DoubleIntegrator{Mass: 1.0}
}

func (d *DoubleIntegrator) StateDim() int   { return 2 }
func (d *DoubleIntegrator) ControlDim() int { return 1 }

func (d *DoubleIntegrator) Derivative(x sim.State, u sim.Control) sim.State {
	force := 0.0
	if len(u) > 0 {
		force = u[0]
	}
	return sim.State{x[1], force / d.Mass}
}

func (d *DoubleIntegrator) Continuous() (a, b *mat.Dense) {
	a = mat.NewDense(2, 2, []float64{
		0, 1,
		0, 0,
	})
	b = mat.NewDense(2, 1, []float64{0, 1 / d.Mass})
	return a, b
}
