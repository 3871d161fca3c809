package mpc

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcsim/internal/qp"
	"github.com/san-kum/mpcsim/internal/sim"
)

func testSystem() LinearSystem {
	return LinearSystem{
		A: mat.NewDense(2, 2, []float64{1, 0.1, 0, 1}),
		B: mat.NewDense(2, 1, []float64{0.005, 0.1}),
	}
}

func testCost() CostSpec {
	return DiagCost([]float64{10, 1}, []float64{0.1})
}

func TestNew_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		sys     LinearSystem
		cost    CostSpec
		cons    Constraints
		horizon int
	}{
		{"missing A", LinearSystem{B: mat.NewDense(2, 1, nil)}, testCost(), Constraints{}, 5},
		{"A not square", LinearSystem{A: mat.NewDense(2, 3, nil), B: mat.NewDense(2, 1, nil)}, testCost(), Constraints{}, 5},
		{"B rows", LinearSystem{A: mat.NewDense(2, 2, nil), B: mat.NewDense(3, 1, nil)}, testCost(), Constraints{}, 5},
		{"Q size", testSystem(), DiagCost([]float64{1, 1, 1}, []float64{1}), Constraints{}, 5},
		{"R size", testSystem(), DiagCost([]float64{1, 1}, []float64{1, 1}), Constraints{}, 5},
		{"NaN in A", LinearSystem{A: mat.NewDense(2, 2, []float64{math.NaN(), 0, 0, 1}), B: mat.NewDense(2, 1, nil)}, testCost(), Constraints{}, 5},
		{"x_min length", testSystem(), testCost(), Constraints{XMin: []float64{-1}}, 5},
		{"u_max length", testSystem(), testCost(), Constraints{UMax: []float64{1, 1}}, 5},
		{"NaN bound", testSystem(), testCost(), Constraints{UMin: []float64{math.NaN()}}, 5},
		{"zero horizon", testSystem(), testCost(), Constraints{}, 0},
		{"negative horizon", testSystem(), testCost(), Constraints{}, -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, err := New(tt.sys, tt.cost, tt.cons, HorizonSpec{N: tt.horizon})
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
			}
			if ctrl != nil {
				t.Error("no controller may be returned with a configuration error")
			}
		})
	}
}

func TestNew_CrossedBoundsAccepted(t *testing.T) {
	_, err := New(testSystem(), testCost(), Constraints{XMin: []float64{1, 1}, XMax: []float64{-1, -1}}, HorizonSpec{N: 5})
	if err != nil {
		t.Fatalf("crossed bounds should be accepted at construction, got %v", err)
	}
}

func TestNew_RaggedRows(t *testing.T) {
	if _, err := NewLinearSystem([][]float64{{1, 0}, {0}}, [][]float64{{0}, {1}}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration for ragged A, got %v", err)
	}
	if _, err := NewCostSpec(nil, [][]float64{{1}}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration for empty Q, got %v", err)
	}
}

func TestSolve_DimensionMismatch(t *testing.T) {
	ctrl, err := New(testSystem(), testCost(), Constraints{}, HorizonSpec{N: 3})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		x0   []float64
		ref  [][]float64
	}{
		{"short x0", []float64{1}, nil},
		{"long x0", []float64{1, 2, 3}, nil},
		{"short reference", []float64{1, 0}, [][]float64{{0, 0}, {0, 0}}},
		{"ragged reference", []float64{1, 0}, [][]float64{{0, 0}, {0, 0}, {0}, {0, 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ctrl.Solve(tt.x0, tt.ref); !errors.Is(err, ErrDimensionMismatch) {
				t.Errorf("expected ErrDimensionMismatch, got %v", err)
			}
		})
	}
}

func TestSolve_CopiesConfiguration(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 0.1, 0, 1})
	ctrl, err := New(LinearSystem{A: a, B: testSystem().B}, testCost(), Constraints{}, HorizonSpec{N: 5})
	if err != nil {
		t.Fatal(err)
	}
	before, _ := ctrl.Solve([]float64{1, 0}, nil)

	a.Set(0, 1, 5)
	after, _ := ctrl.Solve([]float64{1, 0}, nil)
	if before.U0[0] != after.U0[0] {
		t.Error("controller must not observe changes to the caller's matrices")
	}
}

func TestSolve_CostMatchesEvaluate(t *testing.T) {
	ctrl, err := New(testSystem(), testCost(), Constraints{UMin: []float64{-1}, UMax: []float64{1}}, HorizonSpec{N: 10})
	if err != nil {
		t.Fatal(err)
	}
	sol, err := ctrl.Solve([]float64{-5, 0}, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Perturbing a feasible input never lowers the cost.
	inputs := make([][]float64, len(sol.Inputs))
	for k, u := range sol.Inputs {
		inputs[k] = []float64{u[0] * 0.95}
	}
	states := [][]float64{{-5, 0}}
	for k := range inputs {
		states = append(states, ctrl.System().Step(states[k], inputs[k]))
	}
	if perturbed := ctrl.Evaluate(states, inputs, nil); perturbed < sol.Cost-1e-9 {
		t.Errorf("perturbed cost %v below optimum %v", perturbed, sol.Cost)
	}
}

func TestOptimizationFailure(t *testing.T) {
	err := error(&OptimizationFailure{Status: qp.StatusInfeasible})
	if !errors.Is(err, ErrOptimizationFailure) {
		t.Error("OptimizationFailure should match ErrOptimizationFailure")
	}
	expected := "mpc: optimization failure: solver status infeasible"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestCompute(t *testing.T) {
	ctrl, err := New(testSystem(), testCost(), Constraints{UMin: []float64{-1}, UMax: []float64{1}}, HorizonSpec{N: 4})
	if err != nil {
		t.Fatal(err)
	}

	u, err := ctrl.Compute(sim.State{-5, 0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(u) != 1 || u[0] <= 0 || u[0] > 1+1e-9 {
		t.Errorf("unexpected input %v", u)
	}

	window := sim.Window([]sim.State{{1, 0}}, 0, ctrl.Horizon())
	u, err = ctrl.Compute(sim.State{1, 0}, window)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(u[0]) > 1e-9 {
		t.Errorf("holding the reference at rest needs no input, got %v", u[0])
	}
}

func TestConstraintsAccessor(t *testing.T) {
	ctrl, err := New(testSystem(), testCost(), Constraints{UMax: []float64{1}}, HorizonSpec{N: 2})
	if err != nil {
		t.Fatal(err)
	}
	cons := ctrl.Constraints()
	if !math.IsInf(cons.XMin[0], -1) || !math.IsInf(cons.UMin[0], -1) || cons.UMax[0] != 1 {
		t.Errorf("unexpected constraints %+v", cons)
	}
	if ctrl.StateDim() != 2 || ctrl.InputDim() != 1 || ctrl.Horizon() != 2 {
		t.Error("unexpected dimensions")
	}
}
