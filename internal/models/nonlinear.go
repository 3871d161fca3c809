package models

import (
	"github.com/san-kum/mpcsim/internal/integrators"
	"github.com/san-kum/mpcsim/internal/sim"
)

// Nonlinear steps the full dynamics of a model with the input held over the
// sample interval, split into substeps integrator steps.
type Nonlinear struct {
	model    Model
	integ    integrators.Integrator
	dt       float64
	substeps int
}

func NewNonlinear(m Model, integ integrators.Integrator, dt float64, substeps int) *Nonlinear {
	if substeps < 1 {
		substeps = 1
	}
	if integ == nil {
		integ = integrators.NewRK4()
	}
	return &Nonlinear{model: m, integ: integ, dt: dt, substeps: substeps}
}

func (p *Nonlinear) Step(x sim.State, u sim.Control) sim.State {
	h := p.dt / float64(p.substeps)
	next := x.Clone()
	for i := 0; i < p.substeps; i++ {
		next = p.integ.Step(p.model, next, u, h)
	}
	return next
}

func (p *Nonlinear) StateDim() int   { return p.model.StateDim() }
func (p *Nonlinear) ControlDim() int { return p.model.ControlDim() }
