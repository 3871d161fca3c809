package qp

import "fmt"

// Status is the terminal state of a solve.
type Status int

const (
	// StatusOptimal the returned point is the unique minimiser.
	StatusOptimal Status = iota
	// StatusInfeasible the constraints admit no point.
	StatusInfeasible
	// StatusMaxIter the active set iteration did not settle within the limit.
	StatusMaxIter
	// StatusNumericalError a factorisation or least squares step broke down.
	StatusNumericalError
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusMaxIter:
		return "max_iter_reached"
	case StatusNumericalError:
		return "solver_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// OK reports whether s is StatusOptimal.
func (s Status) OK() bool { return s == StatusOptimal }
