// Package optim tunes experiment parameters by exhaustive grid search.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/mpcsim/internal/config"
	"github.com/san-kum/mpcsim/internal/experiment"
)

var ErrNoFeasiblePoint = errors.New("optim: no grid point completed its run")

// Parameters understood by Apply.
const (
	ParamHorizon = "horizon"
	ParamQScale  = "q_scale"
	ParamRScale  = "r_scale"
)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

// Result is the best grid point and how many points were tried.
type Result struct {
	Params    map[string]float64
	Value     float64
	Evaluated int
	Failed    int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Search runs one experiment per grid point and keeps the point with the
// smallest value of metricName. Points whose experiment cannot be built or
// whose run fails (an infeasible solve, say) are skipped.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (*Result, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, fmt.Errorf("optim: %d parameters but %d ranges", len(g.paramNames), len(g.ranges))
	}

	res := &Result{Value: math.Inf(1)}
	if err := g.searchRecursive(ctx, 0, make(map[string]float64), buildExperiment, metricName, res); err != nil {
		return nil, err
	}
	if res.Params == nil {
		return res, ErrNoFeasiblePoint
	}
	return res, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	buildExperiment func(map[string]float64) (*experiment.Experiment, error),
	metricName string,
	res *Result,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if depth == len(g.paramNames) {
		res.Evaluated++

		exp, err := buildExperiment(current)
		if err != nil {
			res.Failed++
			return nil
		}

		result, err := exp.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.Failed++
			return nil
		}

		val, ok := result.Metrics[metricName]
		if !ok {
			return fmt.Errorf("optim: run has no metric %q", metricName)
		}
		if val < res.Value {
			res.Value = val
			res.Params = make(map[string]float64)
			for k, v := range current {
				res.Params[k] = v
			}
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, buildExperiment, metricName, res); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns a copy of base with the grid parameters applied: horizon
// replaces the horizon, q_scale and r_scale multiply the weights.
func Apply(base *config.Config, params map[string]float64) (*config.Config, error) {
	cfg := base.Clone()
	for name, v := range params {
		switch name {
		case ParamHorizon:
			cfg.Horizon = int(math.Round(v))
		case ParamQScale:
			for i := range cfg.Q {
				cfg.Q[i] *= v
			}
		case ParamRScale:
			for i := range cfg.R {
				cfg.R[i] *= v
			}
		default:
			return nil, fmt.Errorf("optim: unknown parameter %q", name)
		}
	}
	return cfg, nil
}
