package models

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcsim/internal/sim"
)

const (
	DefaultMass      = 1.0
	DefaultStiffness = 10.0
	DefaultDamping   = 0.5
)

// SpringMass is a damped oscillator forced at the mass: state [pos, vel].
type SpringMass struct {
	Mass      float64
	Stiffness float64
	Damping   float64
}

func NewSpringMass() *SpringMass {
	return &SpringMass{
		Mass:      DefaultMass,
		Stiffness: DefaultStiffness,
		Damping:   DefaultDamping,
	}
}

func (s *SpringMass) StateDim() int   { return 2 }
func (s *SpringMass) ControlDim() int { return 1 }

func (s *SpringMass) Derivative(x sim.State, u sim.Control) sim.State {
	force := 0.0
	if len(u) > 0 {
		force = u[0]
	}
	acc := (-s.Stiffness*x[0] - s.Damping*x[1] + force) / s.Mass
	return sim.State{x[1], acc}
}

func (s *SpringMass) Continuous() (a, b *mat.Dense) {
	a = mat.NewDense(2, 2, []float64{
		0, 1,
		-s.Stiffness / s.Mass, -s.Damping / s.Mass,
	})
	b = mat.NewDense(2, 1, []float64{0, 1 / s.Mass})
	return a, b
}
