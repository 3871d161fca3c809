package mpc

import (
	"errors"
	"fmt"

	"github.com/san-kum/mpcsim/internal/qp"
)

var (
	// ErrInvalidConfiguration indicates non-conforming matrix or vector
	// dimensions at construction time.
	ErrInvalidConfiguration = errors.New("mpc: invalid configuration")

	// ErrDimensionMismatch indicates an initial state or reference whose shape
	// does not match the controller.
	ErrDimensionMismatch = errors.New("mpc: dimension mismatch")

	// ErrOptimizationFailure is matched by every *OptimizationFailure.
	ErrOptimizationFailure = errors.New("mpc: optimization failure")
)

// OptimizationFailure reports a horizon solve that did not reach an optimal
// status. No input may be derived from the failed solve.
//
// Step is -1 for a standalone Solve; the closed-loop simulator sets it to the
// step that failed.
type OptimizationFailure struct {
	Status     qp.Status
	Step       int
	Iterations int
}

// SetStep records the closed-loop step of the failure.
func (e *OptimizationFailure) SetStep(step int) { e.Step = step }

func (e *OptimizationFailure) Error() string {
	return fmt.Sprintf("%s: solver status %s", ErrOptimizationFailure, e.Status)
}

func (e *OptimizationFailure) Is(target error) bool {
	return target == ErrOptimizationFailure
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
