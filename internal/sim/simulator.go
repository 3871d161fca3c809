package sim

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Simulator runs a controller against a plant in closed loop. At every step
// it hands the controller the current state and the reference window, applies
// the returned input and advances the plant. A Simulator is not safe for
// concurrent use; see Ensemble for parallel runs.
type Simulator struct {
	plant      Plant
	controller Controller
	metrics    []Metric
	observers  []Observer
	logger     *zap.Logger

	phase Phase
	step  int
}

func New(plant Plant, controller Controller) *Simulator {
	return &Simulator{
		plant:      plant,
		controller: controller,
		metrics:    make([]Metric, 0),
		observers:  make([]Observer, 0),
		logger:     zap.NewNop(),
	}
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) SetLogger(logger *zap.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Phase returns the current phase and, while running or after a failure, the
// step it refers to.
func (s *Simulator) Phase() (Phase, int) { return s.phase, s.step }

// Run simulates exactly steps control steps from x0 and returns steps+1
// states and steps inputs. ref is the full reference trajectory, or nil for
// none.
//
// If the controller fails, or the context is canceled, the run stops at that
// step: the trajectory recorded so far is returned together with a
// *StepError, and no input is applied for the failed step. Metrics then
// cover the steps observed before the abort.
func (s *Simulator) Run(ctx context.Context, x0 State, steps int, ref []State) (*Trajectory, error) {
	if err := s.validate(x0, steps, ref); err != nil {
		return nil, err
	}

	tr := &Trajectory{
		States:  make([]State, 0, steps+1),
		Inputs:  make([]Control, 0, steps),
		Metrics: make(map[string]float64),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	x := x0.Clone()
	tr.States = append(tr.States, x.Clone())

	s.phase, s.step = PhaseRunning, 0
	s.logger.Debug("simulation started", zap.Int("steps", steps), zap.Int("horizon", s.controller.Horizon()))

	for t := 0; t < steps; t++ {
		s.step = t

		select {
		case <-ctx.Done():
			return tr, s.fail(tr, t, ctx.Err())
		default:
		}

		u, err := s.controller.Compute(x.Clone(), Window(ref, t, s.controller.Horizon()))
		if err != nil {
			return tr, s.fail(tr, t, err)
		}
		if len(u) != s.plant.ControlDim() {
			return tr, s.fail(tr, t, fmt.Errorf("%w: input has length %d, want %d", ErrDimensionMismatch, len(u), s.plant.ControlDim()))
		}

		for _, m := range s.metrics {
			m.Observe(x, u, t)
		}
		for _, obs := range s.observers {
			obs.OnStep(x, u, t)
		}

		next := s.plant.Step(x, u)
		if !next.IsValid() {
			return tr, s.fail(tr, t, ErrUnstable)
		}

		x = next
		tr.Inputs = append(tr.Inputs, u.Clone())
		tr.States = append(tr.States, x.Clone())
	}

	s.collect(tr)
	s.phase, s.step = PhaseCompleted, steps
	s.logger.Debug("simulation completed", zap.Int("steps", steps))
	return tr, nil
}

// stepRecorder is implemented by controller errors that carry the failing
// step themselves.
type stepRecorder interface{ SetStep(int) }

func (s *Simulator) fail(tr *Trajectory, t int, err error) error {
	var rec stepRecorder
	if errors.As(err, &rec) {
		rec.SetStep(t)
	}
	s.collect(tr)
	s.phase = PhaseFailed
	s.logger.Warn("simulation aborted", zap.Int("step", t), zap.Error(err))
	return &StepError{Step: t, Err: err}
}

// collect stores the metric values over the steps observed so far.
func (s *Simulator) collect(tr *Trajectory) {
	for _, m := range s.metrics {
		tr.Metrics[m.Name()] = m.Value()
	}
}

func (s *Simulator) validate(x0 State, steps int, ref []State) error {
	if steps <= 0 {
		return fmt.Errorf("%w, got %d", ErrInvalidSteps, steps)
	}
	n := s.plant.StateDim()
	if len(x0) != n {
		return fmt.Errorf("%w: x0 has length %d, want %d", ErrDimensionMismatch, len(x0), n)
	}
	if ref != nil && len(ref) == 0 {
		return ErrEmptyReference
	}
	for k, r := range ref {
		if len(r) != n {
			return fmt.Errorf("%w: reference sample %d has length %d, want %d", ErrDimensionMismatch, k, len(r), n)
		}
	}
	return nil
}
