// Package automation runs scripted sequences of closed-loop experiments and
// Monte Carlo trials over perturbed initial states.
package automation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/mpcsim/internal/config"
	"github.com/san-kum/mpcsim/internal/experiment"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/sim"
)

// Expected run outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Scenario is a named list of experiments, each with an expectation.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep starts from a preset and overrides the fields that are set.
// Without a preset it uses the defaults, or the model's regulate preset for
// any other model.
type ScenarioStep struct {
	Name       string      `yaml:"name"`
	Model      string      `yaml:"model"`
	Preset     string      `yaml:"preset"`
	Controller string      `yaml:"controller"`
	Plant      string      `yaml:"plant"`
	Horizon    int         `yaml:"horizon"`
	Steps      int         `yaml:"steps"`
	X0         []float64   `yaml:"x0"`
	Expect     Expectation `yaml:"expect"`
}

// Expectation describes how a step should end. Unset fields are not checked.
type Expectation struct {
	// Outcome is completed (the default) or failed.
	Outcome string `yaml:"outcome"`
	// FailStep is the step a failed run must stop at.
	FailStep *int `yaml:"fail_step"`
	// Status is the solver status a failed run must report.
	Status string `yaml:"status"`
	// MaxFinalError bounds ‖x[T] - r[T]‖ of a completed run.
	MaxFinalError *float64 `yaml:"max_final_error"`
}

// Outcome is the result of one scenario step.
type Outcome struct {
	Name       string
	Trajectory *sim.Trajectory
	Err        error
	Passed     bool
	Reason     string
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}
	for i, step := range scenario.Steps {
		switch step.Expect.Outcome {
		case "", OutcomeCompleted, OutcomeFailed:
		default:
			return nil, fmt.Errorf("step %d: unknown expected outcome %q", i+1, step.Expect.Outcome)
		}
	}
	return &scenario, nil
}

// Config resolves the step's configuration.
func (s ScenarioStep) Config() (*config.Config, error) {
	model := s.Model
	if model == "" {
		model = config.DefaultModel
	}

	preset := s.Preset
	if preset == "" && model != config.DefaultModel {
		preset = "regulate"
	}

	cfg := config.DefaultConfig()
	if preset != "" {
		if cfg = config.GetPreset(model, preset); cfg == nil {
			return nil, fmt.Errorf("%w: unknown preset %s/%s", config.ErrInvalidConfig, model, preset)
		}
	}

	if s.Controller != "" {
		cfg.Controller = s.Controller
	}
	if s.Plant != "" {
		cfg.Plant = s.Plant
	}
	if s.Horizon > 0 {
		cfg.Horizon = s.Horizon
	}
	if s.Steps > 0 {
		cfg.Steps = s.Steps
	}
	if s.X0 != nil {
		cfg.X0 = s.X0
	}
	return cfg, nil
}

// RunScenario executes every step in order. A step that fails to build or
// run is recorded in its Outcome; only cancellation stops the scenario.
func RunScenario(ctx context.Context, scenario *Scenario, logger *zap.Logger) ([]Outcome, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	outcomes := make([]Outcome, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step %d", i+1)
		}
		logger.Info("scenario step", zap.String("scenario", scenario.Name), zap.String("step", name))

		out := Outcome{Name: name}
		cfg, err := step.Config()
		if err == nil {
			var exp *experiment.Experiment
			if exp, err = experiment.New(cfg, experiment.WithLogger(logger)); err == nil {
				out.Trajectory, out.Err = exp.Run(ctx)
				if errors.Is(out.Err, context.Canceled) || errors.Is(out.Err, context.DeadlineExceeded) {
					return append(outcomes, out), ctx.Err()
				}
				out.Passed, out.Reason = check(step.Expect, out.Trajectory, out.Err, exp.Reference())
			}
		}
		if err != nil {
			out.Err = err
			out.Reason = "setup: " + err.Error()
		}

		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func check(want Expectation, tr *sim.Trajectory, err error, ref []sim.State) (bool, string) {
	if want.Outcome == OutcomeFailed {
		if err == nil {
			return false, "expected failure, run completed"
		}
		var stepErr *sim.StepError
		if want.FailStep != nil && (!errors.As(err, &stepErr) || stepErr.Step != *want.FailStep) {
			return false, fmt.Sprintf("expected failure at step %d: %v", *want.FailStep, err)
		}
		var failure *mpc.OptimizationFailure
		if want.Status != "" && (!errors.As(err, &failure) || failure.Status.String() != want.Status) {
			return false, fmt.Sprintf("expected solver status %s: %v", want.Status, err)
		}
		return true, ""
	}

	if err != nil {
		return false, err.Error()
	}
	if want.MaxFinalError != nil {
		if e := FinalError(tr, ref); e > *want.MaxFinalError {
			return false, fmt.Sprintf("final error %.4g exceeds %.4g", e, *want.MaxFinalError)
		}
	}
	return true, ""
}

// FinalError is ‖x[T] - r[T]‖ with the reference padded by its last sample
// (zero if ref is nil).
func FinalError(tr *sim.Trajectory, ref []sim.State) float64 {
	final := tr.Final()
	if len(ref) == 0 {
		return final.Norm()
	}
	last := min(len(tr.States)-1, len(ref)-1)
	return final.Sub(ref[last]).Norm()
}

// MonteCarloConfig perturbs every x0 component uniformly in
// [-Perturbation, Perturbation].
type MonteCarloConfig struct {
	Perturbation float64
	Trials       int
	Seed         int64
}

// MonteCarloResult holds one trial.
type MonteCarloResult struct {
	Trial      int
	X0         sim.State
	Completed  bool
	Infeasible bool
	FailStep   int
	FinalError float64
}

// RunMonteCarlo runs base from perturbed initial states. Trials are seeded
// so a given Seed always draws the same initial states.
func RunMonteCarlo(ctx context.Context, base *config.Config, mc MonteCarloConfig, logger *zap.Logger) ([]MonteCarloResult, error) {
	if mc.Trials <= 0 {
		return nil, fmt.Errorf("%w: trials must be positive, got %d", config.ErrInvalidConfig, mc.Trials)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rng := rand.New(rand.NewSource(mc.Seed))
	results := make([]MonteCarloResult, 0, mc.Trials)

	for trial := 0; trial < mc.Trials; trial++ {
		cfg := base.Clone()
		for i := range cfg.X0 {
			cfg.X0[i] += (rng.Float64()*2 - 1) * mc.Perturbation
		}

		exp, err := experiment.New(cfg, experiment.WithLogger(logger))
		if err != nil {
			return results, err
		}
		tr, err := exp.Run(ctx)
		if err != nil && ctx.Err() != nil {
			return results, ctx.Err()
		}

		res := MonteCarloResult{Trial: trial, X0: sim.State(cfg.X0), Completed: err == nil, FailStep: -1}
		if err != nil {
			var stepErr *sim.StepError
			if errors.As(err, &stepErr) {
				res.FailStep = stepErr.Step
			}
			res.Infeasible = errors.Is(err, mpc.ErrOptimizationFailure)
		} else {
			res.FinalError = FinalError(tr, exp.Reference())
		}
		results = append(results, res)
	}

	logger.Debug("monte carlo finished", zap.Int("trials", mc.Trials))
	return results, nil
}

// MonteCarloStats counts completed and failed trials.
func MonteCarloStats(results []MonteCarloResult) (completed, failed int) {
	for _, r := range results {
		if r.Completed {
			completed++
		} else {
			failed++
		}
	}
	return
}
