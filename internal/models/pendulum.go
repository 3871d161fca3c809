package models

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcsim/internal/sim"
)

// Pendulum is a torque-driven damped pendulum, state [theta, omega] with
// theta measured from the hanging position.
type Pendulum struct {
	Mass    float64
	Length  float64
	Damping float64
	Gravity float64
}

func NewPendulum() *Pendulum {
	return &Pendulum{
		Mass:    1.0,
		Length:  1.0,
		Damping: 0.1,
		Gravity: 9.81,
	}
}

func (p *Pendulum) StateDim() int {
	return 2
}

func (p *Pendulum) ControlDim() int {
	return 1
}

func (p *Pendulum) Derivative(x sim.State, u sim.Control) sim.State {
	theta := x[0]
	omega := x[1]

	torque := 0.0
	if len(u) > 0 {
		torque = u[0]
	}
	alpha := (-p.Damping*omega - p.Mass*p.Gravity*p.Length*math.Sin(theta) + torque) / p.inertia()

	return sim.State{omega, alpha}
}

// Continuous linearises about the hanging equilibrium.
func (p *Pendulum) Continuous() (a, b *mat.Dense) {
	j := p.inertia()
	a = mat.NewDense(2, 2, []float64{
		0, 1,
		-p.Mass * p.Gravity * p.Length / j, -p.Damping / j,
	})
	b = mat.NewDense(2, 1, []float64{0, 1 / j})
	return a, b
}

func (p *Pendulum) inertia() float64 { return p.Mass * p.Length * p.Length }
