package experiment

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/mpcsim/internal/control"
	"github.com/san-kum/mpcsim/internal/metrics"
	"github.com/san-kum/mpcsim/internal/models"
	"github.com/san-kum/mpcsim/internal/sim"
)

var (
	ErrUnknownModel      = errors.New("experiment: unknown model")
	ErrUnknownController = errors.New("experiment: unknown controller")
)

// ControllerFactory builds a fresh controller for an experiment. Every call
// returns an independent instance.
type ControllerFactory func(e *Experiment) (sim.Controller, error)

type Registry struct {
	models      map[string]func() models.Model
	controllers map[string]ControllerFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		models:      make(map[string]func() models.Model),
		controllers: make(map[string]ControllerFactory),
	}

	r.models["double_integrator"] = func() models.Model { return models.NewDoubleIntegrator() }
	r.models["spring_mass"] = func() models.Model { return models.NewSpringMass() }
	r.models["pendulum"] = func() models.Model { return models.NewPendulum() }
	r.models["cartpole"] = func() models.Model { return models.NewCartPole() }

	r.controllers["mpc"] = func(e *Experiment) (sim.Controller, error) {
		return e.NewMPC()
	}
	r.controllers["lqr"] = func(e *Experiment) (sim.Controller, error) {
		lqr, err := control.NewFiniteLQR(e.system.A, e.system.B, e.cost.Q, e.cost.R, e.cfg.Horizon)
		if err != nil {
			return nil, err
		}
		return lqr.Clip(finiteOr(e.bounds.UMin, -1), finiteOr(e.bounds.UMax, 1)), nil
	}
	r.controllers["lqr_inf"] = func(e *Experiment) (sim.Controller, error) {
		lqr, err := control.NewInfiniteLQR(e.system.A, e.system.B, e.cost.Q, e.cost.R)
		if err != nil {
			return nil, err
		}
		return lqr.Clip(finiteOr(e.bounds.UMin, -1), finiteOr(e.bounds.UMax, 1)), nil
	}
	r.controllers["pid"] = func(e *Experiment) (sim.Controller, error) {
		if e.plant.ControlDim() != 1 {
			return nil, fmt.Errorf("pid needs a single-input plant, got %d inputs", e.plant.ControlDim())
		}
		p := e.cfg.PID
		pid := control.NewPID(p.Kp, p.Ki, p.Kd, e.cfg.Dt, p.Index)
		lo, hi := finiteOr(e.bounds.UMin, -1), finiteOr(e.bounds.UMax, 1)
		pid.Clip(lo[0], hi[0])
		return pid, nil
	}
	r.controllers["none"] = func(e *Experiment) (sim.Controller, error) {
		return control.NewNone(e.plant.ControlDim()), nil
	}

	return r
}

func (r *Registry) GetModel(name string) (models.Model, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return fn(), nil
}

func (r *Registry) GetController(name string, e *Experiment) (sim.Controller, error) {
	fn, ok := r.controllers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownController, name)
	}
	return fn(e)
}

// RegisterController adds or replaces a controller factory.
func (r *Registry) RegisterController(name string, fn ControllerFactory) {
	r.controllers[name] = fn
}

func (r *Registry) ListModels() []string {
	return sortedKeys(r.models)
}

func (r *Registry) ListControllers() []string {
	return sortedKeys(r.controllers)
}

// DefaultMetrics returns fresh metrics for one run of e.
func (r *Registry) DefaultMetrics(e *Experiment) []sim.Metric {
	return []sim.Metric{
		metrics.NewControlEffort(),
		metrics.NewBoundViolation(e.bounds.XMin, e.bounds.XMax, e.bounds.UMin, e.bounds.UMax),
		metrics.NewTrackingCost(e.cost.Q, e.cost.R, e.ref),
		metrics.NewTrackingError(e.ref),
	}
}

// finiteOr replaces infinite bounds by a saturation the clip leaves inert.
func finiteOr(b []float64, sign float64) []float64 {
	out := make([]float64, len(b))
	for i, v := range b {
		if math.IsInf(v, 0) {
			v = sign * math.MaxFloat64
		}
		out[i] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
