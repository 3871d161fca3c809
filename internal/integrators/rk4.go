package integrators

import "github.com/san-kum/mpcsim/internal/sim"

// RK4 is the classic fourth-order Runge-Kutta step. Stages are allocated per
// call so one RK4 may be shared by concurrent plants.
type RK4 struct{}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Step(dyn Dynamics, x sim.State, u sim.Control, dt float64) sim.State {
	n := len(x)
	scratch := make(sim.State, n)

	k1 := dyn.Derivative(x, u)

	for i := 0; i < n; i++ {
		scratch[i] = x[i] + dt*0.5*k1[i]
	}
	k2 := dyn.Derivative(scratch, u)

	for i := 0; i < n; i++ {
		scratch[i] = x[i] + dt*0.5*k2[i]
	}
	k3 := dyn.Derivative(scratch, u)

	for i := 0; i < n; i++ {
		scratch[i] = x[i] + dt*k3[i]
	}
	k4 := dyn.Derivative(scratch, u)

	result := make(sim.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}

	return result
}
