package experiment

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/mpcsim/internal/analysis"
	"github.com/san-kum/mpcsim/internal/config"
	"github.com/san-kum/mpcsim/internal/integrators"
	"github.com/san-kum/mpcsim/internal/models"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/qp"
	"github.com/san-kum/mpcsim/internal/sim"
)

// Experiment is one closed-loop configuration: the plant, the linear model
// the controllers are built from, weights, bounds and reference.
type Experiment struct {
	cfg      *config.Config
	registry *Registry
	logger   *zap.Logger

	plant  sim.Plant
	system mpc.LinearSystem
	cost   mpc.CostSpec
	bounds mpc.Constraints
	ref    []sim.State
	solver qp.Options
}

type Option func(*Experiment)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Experiment) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithRegistry(r *Registry) Option {
	return func(e *Experiment) { e.registry = r }
}

// New validates cfg and builds the plant and model. cfg is copied.
func New(cfg *config.Config, opts ...Option) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Experiment{
		cfg:      cfg.Clone(),
		registry: NewRegistry(),
		logger:   zap.NewNop(),
		solver:   qp.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if cfg.Solver.MaxIter > 0 {
		e.solver.MaxIter = cfg.Solver.MaxIter
	}
	if cfg.Solver.FeasTol > 0 {
		e.solver.FeasTol = cfg.Solver.FeasTol
	}

	if err := e.build(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Experiment) build() error {
	cfg := e.cfg

	var linear *models.Linear
	var model models.Model
	if cfg.System != nil {
		sys, err := mpc.NewLinearSystem(cfg.System.A, cfg.System.B)
		if err != nil {
			return err
		}
		if linear, err = models.NewLinear(sys.A, sys.B); err != nil {
			return err
		}
	} else {
		var err error
		if model, err = e.registry.GetModel(cfg.Model); err != nil {
			return err
		}
		if linear, err = models.Discretize(model, cfg.Dt); err != nil {
			return err
		}
	}
	e.system = linear.System()
	n, m := linear.StateDim(), linear.ControlDim()
	if !analysis.Controllable(e.system.A, e.system.B) {
		e.logger.Warn("model is not controllable",
			zap.String("model", cfg.Model),
			zap.Int("rank", analysis.ControllabilityRank(e.system.A, e.system.B)),
			zap.Int("states", n))
	}

	e.plant = linear
	if cfg.Plant == "nonlinear" {
		integ := integrators.Get(cfg.Integrator)
		if integ == nil {
			return fmt.Errorf("%w: unknown integrator %q", config.ErrInvalidConfig, cfg.Integrator)
		}
		e.plant = models.NewNonlinear(model, integ, cfg.Dt, cfg.Substeps)
	}

	if len(cfg.X0) != n {
		return fmt.Errorf("%w: x0 has length %d, model %s has %d states", config.ErrInvalidConfig, len(cfg.X0), cfg.Model, n)
	}
	if len(cfg.R) != 0 && len(cfg.R) != m {
		return fmt.Errorf("%w: r has length %d, model has %d inputs", config.ErrInvalidConfig, len(cfg.R), m)
	}
	for name, b := range map[string][]float64{"u_min": cfg.Bounds.UMin, "u_max": cfg.Bounds.UMax} {
		if b != nil && len(b) != m {
			return fmt.Errorf("%w: %s has length %d, model has %d inputs", config.ErrInvalidConfig, name, len(b), m)
		}
	}

	e.cost = mpc.DiagCost(orOnes(cfg.Q, n), orOnes(cfg.R, m))
	e.bounds = mpc.Constraints{
		XMin: orInf(cfg.Bounds.XMin, n, -1),
		XMax: orInf(cfg.Bounds.XMax, n, 1),
		UMin: orInf(cfg.Bounds.UMin, m, -1),
		UMax: orInf(cfg.Bounds.UMax, m, 1),
	}
	e.ref = cfg.ReferenceTrajectory()
	return nil
}

func (e *Experiment) Config() *config.Config  { return e.cfg.Clone() }
func (e *Experiment) Plant() sim.Plant         { return e.plant }
func (e *Experiment) System() mpc.LinearSystem { return e.system }
func (e *Experiment) Reference() []sim.State   { return e.ref }

// NewMPC builds a horizon solver for the experiment.
func (e *Experiment) NewMPC() (*mpc.Controller, error) {
	return mpc.New(e.system, e.cost, e.bounds, mpc.HorizonSpec{N: e.cfg.Horizon},
		mpc.WithSolverOptions(e.solver),
		mpc.WithLogger(e.logger.Named("mpc")))
}

// NewController builds the configured controller.
func (e *Experiment) NewController() (sim.Controller, error) {
	return e.registry.GetController(e.cfg.Controller, e)
}

// Run simulates the configured number of steps from x0. On failure the
// partial trajectory is returned with the error.
func (e *Experiment) Run(ctx context.Context) (*sim.Trajectory, error) {
	ctrl, err := e.NewController()
	if err != nil {
		return nil, err
	}

	s := sim.New(e.plant, ctrl)
	s.SetLogger(e.logger.Named("sim"))
	for _, m := range e.registry.DefaultMetrics(e) {
		s.AddMetric(m)
	}

	e.logger.Info("running experiment",
		zap.String("model", e.cfg.Model),
		zap.String("controller", e.cfg.Controller),
		zap.String("plant", e.cfg.Plant),
		zap.Int("horizon", e.cfg.Horizon),
		zap.Int("steps", e.cfg.Steps))

	return s.Run(ctx, sim.State(e.cfg.X0), e.cfg.Steps, e.ref)
}

// Solve performs a single horizon solve from x0 against the first window of
// the reference.
func (e *Experiment) Solve() (*mpc.Solution, error) {
	ctrl, err := e.NewMPC()
	if err != nil {
		return nil, err
	}
	var ref [][]float64
	if window := sim.Window(e.ref, 0, e.cfg.Horizon); window != nil {
		ref = make([][]float64, len(window))
		for i, w := range window {
			ref[i] = w
		}
	}
	return ctrl.Solve(e.cfg.X0, ref)
}

// Sweep runs the configured controller from every initial state concurrently,
// with at most cfg.Workers runs in flight (0 for no limit).
func (e *Experiment) Sweep(ctx context.Context, x0s []sim.State) ([]*sim.Trajectory, error) {
	ens := sim.NewEnsemble(e.plant,
		e.NewController,
		func() []sim.Metric { return e.registry.DefaultMetrics(e) },
		e.cfg.Workers)
	return ens.Run(ctx, x0s, e.cfg.Steps, e.ref)
}

func orOnes(v []float64, n int) []float64 {
	if len(v) != 0 {
		return v
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func orInf(b []float64, n int, sign int) []float64 {
	if b != nil {
		return append([]float64(nil), b...)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Inf(sign)
	}
	return out
}
