package config

import (
	"math"
	"sort"
)

var inf = math.Inf(1)

var Presets = map[string]map[string]*Config{
	"double_integrator": {
		"regulate": {
			Model: "double_integrator", Controller: "mpc", Plant: "linear",
			Dt: 0.1, Horizon: 20, Steps: 100,
			X0: []float64{-5, 0}, Q: []float64{10, 1}, R: []float64{0.1},
			Bounds: BoundsConfig{
				XMin: []float64{-10, -2}, XMax: []float64{10, 2},
				UMin: []float64{-1}, UMax: []float64{1},
			},
		},
		"step": {
			Model: "double_integrator", Controller: "mpc", Plant: "linear",
			Dt: 0.1, Horizon: 20, Steps: 100,
			X0: []float64{0, 0}, Q: []float64{10, 1}, R: []float64{0.1},
			Bounds: BoundsConfig{
				XMin: []float64{-10, -2}, XMax: []float64{10, 2},
				UMin: []float64{-1}, UMax: []float64{1},
			},
			Reference: []SetPoint{
				{At: 0, State: []float64{0, 0}},
				{At: 20, State: []float64{5, 0}},
			},
		},
		"tight": {
			Model: "double_integrator", Controller: "mpc", Plant: "linear",
			Dt: 0.1, Horizon: 30, Steps: 200,
			X0: []float64{-5, 0}, Q: []float64{10, 1}, R: []float64{0.1},
			Bounds: BoundsConfig{
				XMin: []float64{-10, -0.5}, XMax: []float64{10, 0.5},
				UMin: []float64{-0.2}, UMax: []float64{0.2},
			},
		},
		"infeasible": {
			Model: "double_integrator", Controller: "mpc", Plant: "linear",
			Dt: 0.1, Horizon: 20, Steps: 50,
			X0: []float64{-5, 0}, Q: []float64{10, 1}, R: []float64{0.1},
			Bounds: BoundsConfig{
				XMin: []float64{10, 2}, XMax: []float64{-10, -2},
				UMin: []float64{-1}, UMax: []float64{1},
			},
		},
	},
	"spring_mass": {
		"regulate": {
			Model: "spring_mass", Controller: "mpc", Plant: "linear",
			Dt: 0.05, Horizon: 30, Steps: 200,
			X0: []float64{2, 0}, Q: []float64{10, 1}, R: []float64{0.01},
			Bounds: BoundsConfig{UMin: []float64{-5}, UMax: []float64{5}},
		},
		"step": {
			Model: "spring_mass", Controller: "mpc", Plant: "linear",
			Dt: 0.05, Horizon: 30, Steps: 200,
			X0: []float64{0, 0}, Q: []float64{100, 1}, R: []float64{0.01},
			Bounds: BoundsConfig{UMin: []float64{-20}, UMax: []float64{20}},
			Reference: []SetPoint{
				{At: 0, State: []float64{0, 0}},
				{At: 40, State: []float64{1, 0}},
			},
		},
	},
	"pendulum": {
		"regulate": {
			Model: "pendulum", Controller: "mpc", Plant: "nonlinear", Integrator: "rk4", Substeps: 10,
			Dt: 0.05, Horizon: 25, Steps: 200,
			X0: []float64{0.8, 0}, Q: []float64{10, 1}, R: []float64{0.1},
			Bounds: BoundsConfig{UMin: []float64{-3}, UMax: []float64{3}},
		},
		"linear": {
			Model: "pendulum", Controller: "mpc", Plant: "linear",
			Dt: 0.05, Horizon: 25, Steps: 200,
			X0: []float64{0.3, 0}, Q: []float64{10, 1}, R: []float64{0.1},
			Bounds: BoundsConfig{UMin: []float64{-3}, UMax: []float64{3}},
		},
	},
	"cartpole": {
		"balance": {
			Model: "cartpole", Controller: "mpc", Plant: "nonlinear", Integrator: "rk4", Substeps: 10,
			Dt: 0.02, Horizon: 40, Steps: 300,
			X0: []float64{0, 0, 0.1, 0}, Q: []float64{1, 0.1, 10, 0.1}, R: []float64{0.01},
			Bounds: BoundsConfig{
				XMin: []float64{-2.4, -inf, -0.5, -inf}, XMax: []float64{2.4, inf, 0.5, inf},
				UMin: []float64{-20}, UMax: []float64{20},
			},
		},
		"recover": {
			Model: "cartpole", Controller: "mpc", Plant: "nonlinear", Integrator: "rk4", Substeps: 10,
			Dt: 0.02, Horizon: 40, Steps: 400,
			X0: []float64{0.5, 0, 0.25, 0}, Q: []float64{1, 0.1, 10, 0.1}, R: []float64{0.01},
			Bounds: BoundsConfig{
				XMin: []float64{-2.4, -inf, -0.5, -inf}, XMax: []float64{2.4, inf, 0.5, inf},
				UMin: []float64{-20}, UMax: []float64{20},
			},
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	out := cfg.Clone()
	if out.Integrator == "" {
		out.Integrator = DefaultIntegrator
	}
	if out.Substeps == 0 {
		out.Substeps = DefaultSubsteps
	}
	if out.PID == (PIDConfig{}) {
		out.PID = DefaultConfig().PID
	}
	return out
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
