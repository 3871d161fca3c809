package models

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcsim/internal/sim"
)

// CartPole is a pole balanced on a force-driven cart, state
// [pos, vel, theta, omega] with theta measured from upright. PoleLength is
// the distance from the pivot to the pole's centre of mass.
type CartPole struct {
	CartMass   float64
	PoleMass   float64
	PoleLength float64
	Gravity    float64
}

func NewCartPole() *CartPole {
	return &CartPole{
		CartMass:   1.0,
		PoleMass:   0.1,
		PoleLength: 1.0,
		Gravity:    9.81,
	}
}

func (c *CartPole) StateDim() int {
	return 4
}

func (c *CartPole) ControlDim() int {
	return 1
}

func (c *CartPole) Derivative(x sim.State, u sim.Control) sim.State {
	vel := x[1]
	theta := x[2]
	omega := x[3]

	force := 0.0
	if len(u) > 0 {
		force = u[0]
	}

	mt := c.CartMass + c.PoleMass
	mp := c.PoleMass
	l := c.PoleLength
	g := c.Gravity

	sint := math.Sin(theta)
	cost := math.Cos(theta)

	temp := (force + mp*l*omega*omega*sint) / mt
	thetaacc := (g*sint - cost*temp) / (l * (4.0/3.0 - mp*cost*cost/mt))
	xacc := temp - mp*l*thetaacc*cost/mt

	return sim.State{vel, xacc, omega, thetaacc}
}

// Continuous linearises about the upright equilibrium.
func (c *CartPole) Continuous() (a, b *mat.Dense) {
	mt := c.CartMass + c.PoleMass
	mp := c.PoleMass
	l := c.PoleLength
	g := c.Gravity
	denom := l * (4.0/3.0 - mp/mt)

	// thetaacc = g/denom·theta - force/(mt·denom)
	tTheta, tForce := g/denom, -1/(mt*denom)
	// xacc = force/mt - mp·l/mt·thetaacc
	xTheta, xForce := -mp*l/mt*tTheta, 1/mt-mp*l/mt*tForce

	a = mat.NewDense(4, 4, []float64{
		0, 1, 0, 0,
		0, 0, xTheta, 0,
		0, 0, 0, 1,
		0, 0, tTheta, 0,
	})
	b = mat.NewDense(4, 1, []float64{0, xForce, 0, tForce})
	return a, b
}
