package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/mpcsim/internal/sim"
)

type simpleDynamics struct{}

func (s *simpleDynamics) Derivative(x sim.State, u sim.Control) sim.State {
	return sim.State{x[1], -x[0]}
}

// ẋ = u
type drivenDynamics struct{}

func (d *drivenDynamics) Derivative(x sim.State, u sim.Control) sim.State {
	return sim.State{u[0]}
}

func TestRK4Accuracy(t *testing.T) {
	dyn := &simpleDynamics{}
	integ := NewRK4()

	x0 := sim.State{1.0, 0.0}
	u := sim.Control{}
	dt := 0.01
	steps := 100

	x := x0
	for i := 0; i < steps; i++ {
		x = integ.Step(dyn, x, u, dt)
	}

	expectedX := math.Cos(float64(steps) * dt)
	expectedV := -math.Sin(float64(steps) * dt)

	if math.Abs(x[0]-expectedX) > 1e-4 {
		t.Errorf("position error too large: got %.6f, expected %.6f", x[0], expectedX)
	}

	if math.Abs(x[1]-expectedV) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", x[1], expectedV)
	}
}

func TestHeldInput(t *testing.T) {
	for _, name := range []string{"euler", "rk4"} {
		integ := Get(name)
		x := integ.Step(&drivenDynamics{}, sim.State{1}, sim.Control{2}, 0.5)
		if math.Abs(x[0]-2) > 1e-12 {
			t.Errorf("%s: got %f, want 2", name, x[0])
		}
	}
	if Get("verlet") != nil {
		t.Error("unknown integrator should be nil")
	}
}

func TestEulerOrder(t *testing.T) {
	dyn := &simpleDynamics{}
	euler, rk4 := NewEuler(), NewRK4()

	xe, xr := sim.State{1, 0}, sim.State{1, 0}
	for i := 0; i < 100; i++ {
		xe = euler.Step(dyn, xe, nil, 0.01)
		xr = rk4.Step(dyn, xr, nil, 0.01)
	}
	exact := math.Cos(1.0)
	if math.Abs(xe[0]-exact) <= math.Abs(xr[0]-exact) {
		t.Error("rk4 should be more accurate than euler")
	}
}
