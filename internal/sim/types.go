package sim

import (
	"fmt"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

type Control []float64

func (u Control) Clone() Control {
	c := make(Control, len(u))
	copy(c, u)
	return c
}

// Plant advances the true system by one discrete step.
type Plant interface {
	Step(x State, u Control) State
	StateDim() int
	ControlDim() int
}

// Controller computes the input to apply at the current state. window holds
// the Horizon()+1 reference samples starting at the current step, or nil when
// no reference was given.
type Controller interface {
	Compute(x State, window []State) (Control, error)
	Horizon() int
}

type Metric interface {
	Name() string
	Observe(x State, u Control, t int)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, u Control, t int)
}

// Trajectory is the realised closed-loop run: T+1 states and T inputs.
type Trajectory struct {
	States  []State
	Inputs  []Control
	Metrics map[string]float64
}

// Steps returns the number of applied inputs.
func (tr *Trajectory) Steps() int { return len(tr.Inputs) }

// Final returns the last recorded state.
func (tr *Trajectory) Final() State {
	if len(tr.States) == 0 {
		return nil
	}
	return tr.States[len(tr.States)-1]
}

// Phase is the simulator's position in Idle → Running → Completed|Failed.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}
