package analysis

import (
	"math"

	"github.com/san-kum/mpcsim/internal/sim"
)

// Response summarises how one state component followed its reference.
type Response struct {
	// SettlingStep is the first step from which the error stays within the
	// band, or -1 if it never does.
	SettlingStep int
	// Overshoot is the largest excursion past the final reference, relative
	// to the distance from the initial state (absolute if that is zero).
	Overshoot float64
	// FinalError is |x[T] - r[T]|.
	FinalError float64
}

// StepResponse analyses component index of tr against ref (nil for zero,
// padded with its last sample like the controller's windows).
func StepResponse(tr *sim.Trajectory, ref []sim.State, index int, band float64) Response {
	states := tr.States
	if len(states) == 0 {
		return Response{SettlingStep: -1}
	}

	target := func(t int) float64 {
		if len(ref) == 0 {
			return 0
		}
		return ref[min(t, len(ref)-1)][index]
	}

	last := len(states) - 1
	res := Response{
		SettlingStep: -1,
		FinalError:   math.Abs(states[last][index] - target(last)),
	}

	for t := last; t >= 0; t-- {
		if math.Abs(states[t][index]-target(t)) > band {
			break
		}
		res.SettlingStep = t
	}

	final := target(last)
	start := states[0][index]
	dir := 1.0
	if final < start {
		dir = -1
	}
	scale := math.Abs(final - start)
	if scale == 0 {
		scale = 1
	}
	for _, x := range states {
		res.Overshoot = math.Max(res.Overshoot, dir*(x[index]-final)/scale)
	}
	return res
}
