package experiment

import (
	"math"

	"github.com/san-kum/mpcsim/internal/analysis"
	"github.com/san-kum/mpcsim/internal/control"
	"github.com/san-kum/mpcsim/internal/sim"
)

// Properties describes the discrete-time model the controllers are built on.
type Properties struct {
	States              int
	Inputs              int
	OpenLoopRadius      float64
	ControllabilityRank int
	// LQRRadius is the spectral radius of A - BK for the infinite-horizon
	// LQR gain with the experiment's weights, NaN if the Riccati iteration
	// does not converge.
	LQRRadius float64
}

func (p Properties) Controllable() bool { return p.ControllabilityRank == p.States }

// Properties analyses the linear model.
func (e *Experiment) Properties() Properties {
	a, b := e.system.A, e.system.B
	n, m := b.Dims()
	p := Properties{
		States:              n,
		Inputs:              m,
		OpenLoopRadius:      analysis.SpectralRadius(a),
		ControllabilityRank: analysis.ControllabilityRank(a, b),
		LQRRadius:           math.NaN(),
	}
	if lqr, err := control.NewInfiniteLQR(a, b, e.cost.Q, e.cost.R); err == nil {
		p.LQRRadius = analysis.SpectralRadius(analysis.ClosedLoop(a, b, lqr.K))
	}
	return p
}

// Responses returns the step response of every state component of tr against
// the experiment's reference, with the given settling band.
func (e *Experiment) Responses(tr *sim.Trajectory, band float64) []analysis.Response {
	out := make([]analysis.Response, e.plant.StateDim())
	for i := range out {
		out[i] = analysis.StepResponse(tr, e.ref, i, band)
	}
	return out
}
