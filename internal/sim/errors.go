package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSteps indicates a non-positive simulation length.
	ErrInvalidSteps = errors.New("sim: steps must be positive")

	// ErrDimensionMismatch indicates a state, input or reference whose length
	// does not match the plant.
	ErrDimensionMismatch = errors.New("sim: dimension mismatch between state and plant")

	// ErrEmptyReference indicates a non-nil reference with no samples.
	ErrEmptyReference = errors.New("sim: reference trajectory is empty")

	// ErrUnstable indicates the plant produced a NaN or Inf state.
	ErrUnstable = errors.New("sim: state diverged (NaN or Inf)")
)

// StepError aborts a run at the step whose control input could not be
// computed or applied.
type StepError struct {
	Step int
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
