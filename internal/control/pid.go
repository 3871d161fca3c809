package control

import (
	"fmt"

	"github.com/san-kum/mpcsim/internal/sim"
)

// PID drives state component Index towards the first reference sample (or
// Target when there is none). The plant must have a single input.
type PID struct {
	Kp     float64
	Ki     float64
	Kd     float64
	Dt     float64
	Index  int
	Target float64

	UMin, UMax float64
	Clipped    bool

	integral float64
	prevErr  float64
	first    bool
}

func NewPID(kp, ki, kd, dt float64, index int) *PID {
	return &PID{
		Kp:    kp,
		Ki:    ki,
		Kd:    kd,
		Dt:    dt,
		Index: index,
		first: true,
	}
}

// Clip saturates the output to [umin, umax].
func (p *PID) Clip(umin, umax float64) *PID {
	p.UMin, p.UMax, p.Clipped = umin, umax, true
	return p
}

func (p *PID) Compute(x sim.State, window []sim.State) (sim.Control, error) {
	if p.Index < 0 || p.Index >= len(x) {
		return nil, fmt.Errorf("%w: pid index %d out of range for state of length %d", ErrDimensionMismatch, p.Index, len(x))
	}

	target := p.Target
	if len(window) > 0 {
		target = window[0][p.Index]
	}
	err := target - x[p.Index]

	u := p.Kp * err
	if !p.first && p.Dt > 0 {
		p.integral += err * p.Dt
		u += p.Ki*p.integral + p.Kd*(err-p.prevErr)/p.Dt
	}
	p.prevErr = err
	p.first = false

	if p.Clipped {
		u = min(max(u, p.UMin), p.UMax)
	}
	return sim.Control{u}, nil
}

func (p *PID) Horizon() int { return 0 }

// Reset clears integral and derivative state
func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.first = true
}
