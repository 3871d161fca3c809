package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/mpcsim/internal/sim"
)

const (
	DefaultModel      = "double_integrator"
	DefaultController = "mpc"
	DefaultPlant      = "linear"
	DefaultIntegrator = "rk4"
	DefaultDt         = 0.1
	DefaultHorizon    = 20
	DefaultSteps      = 100
	DefaultSubsteps   = 10
	DefaultKp         = 10.0
	DefaultKi         = 0.1
	DefaultKd         = 5.0
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Model      string  `yaml:"model"`
	Controller string  `yaml:"controller"`
	Plant      string  `yaml:"plant"`
	Integrator string  `yaml:"integrator"`
	Substeps   int     `yaml:"substeps"`
	Dt         float64 `yaml:"dt"`
	Horizon    int     `yaml:"horizon"`
	Steps      int     `yaml:"steps"`
	Workers    int     `yaml:"workers"`

	X0 []float64 `yaml:"x0"`
	// Q and R are the diagonals of the stage weights.
	Q []float64 `yaml:"q"`
	R []float64 `yaml:"r"`

	Bounds    BoundsConfig  `yaml:"bounds"`
	Reference []SetPoint    `yaml:"reference,omitempty"`
	System    *SystemConfig `yaml:"system,omitempty"`
	Solver    SolverConfig  `yaml:"solver"`
	PID       PIDConfig     `yaml:"pid"`
}

// BoundsConfig holds box bounds; an omitted vector is unbounded and .inf
// leaves a single component free.
type BoundsConfig struct {
	XMin []float64 `yaml:"x_min,omitempty"`
	XMax []float64 `yaml:"x_max,omitempty"`
	UMin []float64 `yaml:"u_min,omitempty"`
	UMax []float64 `yaml:"u_max,omitempty"`
}

// SetPoint switches the reference to State from step At onwards.
type SetPoint struct {
	At    int       `yaml:"at"`
	State []float64 `yaml:"state"`
}

// SystemConfig replaces the named model with explicit discrete matrices.
type SystemConfig struct {
	A [][]float64 `yaml:"a"`
	B [][]float64 `yaml:"b"`
}

// PIDConfig tunes the pid baseline, which acts on state component Index.
type PIDConfig struct {
	Kp    float64 `yaml:"kp"`
	Ki    float64 `yaml:"ki"`
	Kd    float64 `yaml:"kd"`
	Index int     `yaml:"index"`
}

type SolverConfig struct {
	MaxIter int     `yaml:"max_iter"`
	FeasTol float64 `yaml:"feas_tol"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:      DefaultModel,
		Controller: DefaultController,
		Plant:      DefaultPlant,
		Integrator: DefaultIntegrator,
		Substeps:   DefaultSubsteps,
		Dt:         DefaultDt,
		Horizon:    DefaultHorizon,
		Steps:      DefaultSteps,
		X0:         []float64{-5, 0},
		Q:          []float64{10, 1},
		R:          []float64{0.1},
		Bounds: BoundsConfig{
			XMin: []float64{-10, -2},
			XMax: []float64{10, 2},
			UMin: []float64{-1},
			UMax: []float64{1},
		},
		PID: PIDConfig{
			Kp: DefaultKp,
			Ki: DefaultKi,
			Kd: DefaultKd,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.X0 = clone(c.X0)
	out.Q = clone(c.Q)
	out.R = clone(c.R)
	out.Bounds = BoundsConfig{
		XMin: clone(c.Bounds.XMin),
		XMax: clone(c.Bounds.XMax),
		UMin: clone(c.Bounds.UMin),
		UMax: clone(c.Bounds.UMax),
	}
	if c.Reference != nil {
		out.Reference = make([]SetPoint, len(c.Reference))
		for i, sp := range c.Reference {
			out.Reference[i] = SetPoint{At: sp.At, State: clone(sp.State)}
		}
	}
	if c.System != nil {
		out.System = &SystemConfig{A: cloneRows(c.System.A), B: cloneRows(c.System.B)}
	}
	return &out
}

// Validate checks what can be checked without building the plant. Shape
// agreement with the model is checked when the experiment is built; crossed
// bounds are accepted and surface as an infeasible solve.
func (c *Config) Validate() error {
	switch {
	case c.Dt <= 0 || math.IsNaN(c.Dt):
		return invalidf("dt must be positive, got %g", c.Dt)
	case c.Horizon <= 0:
		return invalidf("horizon must be positive, got %d", c.Horizon)
	case c.Steps <= 0:
		return invalidf("steps must be positive, got %d", c.Steps)
	case c.Workers < 0:
		return invalidf("workers must not be negative, got %d", c.Workers)
	}
	if c.Plant != "linear" && c.Plant != "nonlinear" {
		return invalidf("plant must be linear or nonlinear, got %q", c.Plant)
	}
	if c.Plant == "nonlinear" && c.System != nil {
		return invalidf("an explicit system has no nonlinear dynamics")
	}

	for i, v := range c.Q {
		if v < 0 || math.IsNaN(v) {
			return invalidf("q[%d] must be non-negative, got %g", i, v)
		}
	}
	for i, v := range c.R {
		if v <= 0 || math.IsNaN(v) {
			return invalidf("r[%d] must be positive, got %g", i, v)
		}
	}

	n := len(c.X0)
	if n == 0 {
		return invalidf("x0 is required")
	}
	if c.PID.Index < 0 || c.PID.Index >= n {
		return invalidf("pid.index %d out of range for %d states", c.PID.Index, n)
	}
	if len(c.Q) != 0 && len(c.Q) != n {
		return invalidf("q has length %d, want %d", len(c.Q), n)
	}
	for name, b := range map[string][]float64{"x_min": c.Bounds.XMin, "x_max": c.Bounds.XMax} {
		if b != nil && len(b) != n {
			return invalidf("%s has length %d, want %d", name, len(b), n)
		}
	}

	last := -1
	for i, sp := range c.Reference {
		if sp.At < 0 || sp.At > c.Steps {
			return invalidf("reference[%d] at step %d is outside [0, %d]", i, sp.At, c.Steps)
		}
		if sp.At <= last {
			return invalidf("reference set points must be strictly increasing in step")
		}
		if len(sp.State) != n {
			return invalidf("reference[%d] has length %d, want %d", i, len(sp.State), n)
		}
		last = sp.At
	}

	if c.System != nil {
		if len(c.System.A) != n {
			return invalidf("system.a has %d rows, want %d", len(c.System.A), n)
		}
		if len(c.System.B) != n {
			return invalidf("system.b has %d rows, want %d", len(c.System.B), n)
		}
	}
	return nil
}

// ReferenceTrajectory expands the set points into steps+1 samples, or nil
// without set points. Steps before the first set point take its state.
func (c *Config) ReferenceTrajectory() []sim.State {
	if len(c.Reference) == 0 {
		return nil
	}
	ref := make([]sim.State, c.Steps+1)
	sp := 0
	for t := range ref {
		for sp+1 < len(c.Reference) && c.Reference[sp+1].At <= t {
			sp++
		}
		ref[t] = sim.State(clone(c.Reference[sp].State))
	}
	return ref
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func clone(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append([]float64(nil), v...)
}

func cloneRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = clone(r)
	}
	return out
}
