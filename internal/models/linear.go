package models

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcsim/internal/integrators"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/sim"
)

var ErrInvalidParams = errors.New("models: invalid parameters")

// Model is a continuous-time plant ẋ = f(x, u) together with its Jacobians
// at the operating point.
type Model interface {
	integrators.Dynamics
	StateDim() int
	ControlDim() int
	Continuous() (a, b *mat.Dense)
}

// Linear is the discrete-time plant x[k+1] = A·x[k] + B·u[k].
type Linear struct {
	A *mat.Dense
	B *mat.Dense
}

func NewLinear(a, b mat.Matrix) (*Linear, error) {
	ar, ac := a.Dims()
	br, _ := b.Dims()
	if ar != ac || br != ar {
		return nil, fmt.Errorf("%w: A is %d×%d, B has %d rows", ErrInvalidParams, ar, ac, br)
	}
	return &Linear{A: mat.DenseCopyOf(a), B: mat.DenseCopyOf(b)}, nil
}

// Discretize applies a zero-order hold of length dt to the linearisation of
// m: the exponential of [[A B] [0 0]]·dt holds Ad and Bd in its top rows.
func Discretize(m Model, dt float64) (*Linear, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("%w: dt must be positive, got %g", ErrInvalidParams, dt)
	}
	a, b := m.Continuous()
	n, k := b.Dims()

	aug := mat.NewDense(n+k, n+k, nil)
	aug.Slice(0, n, 0, n).(*mat.Dense).Scale(dt, a)
	aug.Slice(0, n, n, n+k).(*mat.Dense).Scale(dt, b)

	var e mat.Dense
	e.Exp(aug)

	return &Linear{
		A: mat.DenseCopyOf(e.Slice(0, n, 0, n)),
		B: mat.DenseCopyOf(e.Slice(0, n, n, n+k)),
	}, nil
}

// System returns the plant in the form the horizon solver takes.
func (l *Linear) System() mpc.LinearSystem {
	return mpc.LinearSystem{A: l.A, B: l.B}
}

func (l *Linear) Step(x sim.State, u sim.Control) sim.State {
	return sim.State(l.System().Step(x, u))
}

func (l *Linear) StateDim() int {
	n, _ := l.A.Dims()
	return n
}

func (l *Linear) ControlDim() int {
	_, m := l.B.Dims()
	return m
}
