// Package integrators advances continuous-time dynamics over one sample
// interval with the input held constant.
package integrators

import "github.com/san-kum/mpcsim/internal/sim"

// Dynamics is a continuous-time system ẋ = f(x, u).
type Dynamics interface {
	Derivative(x sim.State, u sim.Control) sim.State
}

type Integrator interface {
	Step(dyn Dynamics, x sim.State, u sim.Control, dt float64) sim.State
}

// Get returns the integrator registered under name, or nil.
func Get(name string) Integrator {
	switch name {
	case "euler":
		return NewEuler()
	case "rk4", "":
		return NewRK4()
	default:
		return nil
	}
}
