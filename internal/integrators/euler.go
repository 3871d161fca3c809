package integrators

import "github.com/san-kum/mpcsim/internal/sim"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn Dynamics, x sim.State, u sim.Control, dt float64) sim.State {
	dx := dyn.Derivative(x, u)
	result := make(sim.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
