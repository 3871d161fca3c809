package mpc

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcsim/internal/qp"
	"github.com/san-kum/mpcsim/internal/sim"
)

// Controller is the horizon solver. All fields are fixed at construction.
type Controller struct {
	sys     LinearSystem
	cost    CostSpec
	cons    Constraints
	horizon int

	pred   *prediction
	opts   qp.Options
	logger *zap.Logger
}

var _ sim.Controller = (*Controller)(nil)

// Option configures a Controller.
type Option func(*Controller)

// WithSolverOptions overrides the QP solver options.
func WithSolverOptions(opts qp.Options) Option {
	return func(c *Controller) { c.opts = opts }
}

// WithLogger sets the logger used for solve diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New validates the configuration and precomputes the condensed problem.
// Every dimension error wraps ErrInvalidConfiguration and no controller is
// returned with it. Crossed bounds (min > max) are accepted here and surface
// as an infeasible solve.
func New(sys LinearSystem, cost CostSpec, cons Constraints, horizon HorizonSpec, opts ...Option) (*Controller, error) {
	if err := validate(sys, cost, cons, horizon); err != nil {
		return nil, err
	}

	n, m := sys.B.Dims()
	c := &Controller{
		sys: LinearSystem{
			A: mat.DenseCopyOf(sys.A),
			B: mat.DenseCopyOf(sys.B),
		},
		cost: CostSpec{
			Q: symmetrize(cost.Q),
			R: symmetrize(cost.R),
		},
		cons: Constraints{
			XMin: boundsOrInf(cons.XMin, n, -1),
			XMax: boundsOrInf(cons.XMax, n, 1),
			UMin: boundsOrInf(cons.UMin, m, -1),
			UMax: boundsOrInf(cons.UMax, m, 1),
		},
		horizon: horizon.N,
		opts:    qp.DefaultOptions(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.pred = newPrediction(c.sys.A, c.sys.B, c.cost.Q, c.cost.R, c.cons, c.horizon)
	return c, nil
}

func validate(sys LinearSystem, cost CostSpec, cons Constraints, horizon HorizonSpec) error {
	if sys.A == nil || sys.B == nil {
		return invalidf("A and B are required")
	}
	if cost.Q == nil || cost.R == nil {
		return invalidf("Q and R are required")
	}

	ar, ac := sys.A.Dims()
	if ar != ac {
		return invalidf("A must be square, got %d×%d", ar, ac)
	}
	n := ar
	br, m := sys.B.Dims()
	if br != n {
		return invalidf("B has %d rows, want %d", br, n)
	}
	if m == 0 {
		return invalidf("B has no columns")
	}
	if qr, qc := cost.Q.Dims(); qr != n || qc != n {
		return invalidf("Q is %d×%d, want %d×%d", qr, qc, n, n)
	}
	if rr, rc := cost.R.Dims(); rr != m || rc != m {
		return invalidf("R is %d×%d, want %d×%d", rr, rc, m, m)
	}
	for name, mtx := range map[string]mat.Matrix{"A": sys.A, "B": sys.B, "Q": cost.Q, "R": cost.R} {
		if hasNaN(mtx) {
			return invalidf("%s has non-finite entries", name)
		}
	}

	bounds := []struct {
		name string
		v    []float64
		want int
	}{
		{"x_min", cons.XMin, n},
		{"x_max", cons.XMax, n},
		{"u_min", cons.UMin, m},
		{"u_max", cons.UMax, m},
	}
	for _, b := range bounds {
		if b.v == nil {
			continue
		}
		if len(b.v) != b.want {
			return invalidf("%s has length %d, want %d", b.name, len(b.v), b.want)
		}
		for i, v := range b.v {
			if math.IsNaN(v) {
				return invalidf("%s[%d] is NaN", b.name, i)
			}
		}
	}

	if horizon.N <= 0 {
		return invalidf("horizon must be positive, got %d", horizon.N)
	}
	return nil
}

func (c *Controller) StateDim() int { return c.pred.n }
func (c *Controller) InputDim() int { return c.pred.m }
func (c *Controller) Horizon() int  { return c.horizon }

// System returns the plant the controller was built with.
func (c *Controller) System() LinearSystem { return c.sys }

// Cost returns the symmetrised weights.
func (c *Controller) Cost() CostSpec { return c.cost }

// Constraints returns the bounds with nil vectors expanded to ±Inf.
func (c *Controller) Constraints() Constraints {
	return Constraints{
		XMin: append([]float64(nil), c.cons.XMin...),
		XMax: append([]float64(nil), c.cons.XMax...),
		UMin: append([]float64(nil), c.cons.UMin...),
		UMax: append([]float64(nil), c.cons.UMax...),
	}
}

// Solve computes the optimal input sequence over the horizon from x0. ref
// holds the N+1 reference states; nil means the zero trajectory. Neither
// argument is retained or modified.
func (c *Controller) Solve(x0 []float64, ref [][]float64) (*Solution, error) {
	n, m, N := c.pred.n, c.pred.m, c.horizon

	if len(x0) != n {
		return nil, fmt.Errorf("%w: x0 has length %d, want %d", ErrDimensionMismatch, len(x0), n)
	}
	x := mat.NewVecDense(n, append([]float64(nil), x0...))

	var stacked *mat.VecDense
	if ref != nil {
		if len(ref) != N+1 {
			return nil, fmt.Errorf("%w: reference has %d rows, want %d", ErrDimensionMismatch, len(ref), N+1)
		}
		stacked = mat.NewVecDense((N+1)*n, nil)
		for k, r := range ref {
			if len(r) != n {
				return nil, fmt.Errorf("%w: reference row %d has length %d, want %d", ErrDimensionMismatch, k, len(r), n)
			}
			for i, v := range r {
				stacked.SetVec(k*n+i, v)
			}
		}
	}

	if c.pred.unsatisfiable {
		c.logger.Debug("horizon solve failed: unsatisfiable infinite bound")
		return nil, &OptimizationFailure{Status: qp.StatusInfeasible, Step: -1}
	}

	cvec, hvec := c.pred.linear(x, stacked)
	prob := &qp.Problem{H: c.pred.hess, C: cvec}
	if hvec != nil {
		prob.G, prob.Hv = c.pred.g, hvec
	}

	res, err := qp.Solve(prob, c.opts)
	if err != nil {
		return nil, err
	}
	if res.Status != qp.StatusOptimal {
		c.logger.Debug("horizon solve failed",
			zap.Stringer("status", res.Status),
			zap.Int("iterations", res.Iterations),
			zap.Float64s("x0", x0))
		return nil, &OptimizationFailure{Status: res.Status, Step: -1, Iterations: res.Iterations}
	}

	sol := &Solution{
		Inputs:     make([][]float64, N),
		States:     make([][]float64, N+1),
		Status:     res.Status,
		Iterations: res.Iterations,
	}
	sol.States[0] = append([]float64(nil), x0...)
	for k := 0; k < N; k++ {
		u := make([]float64, m)
		for j := range u {
			u[j] = res.X.AtVec(k*m + j)
		}
		sol.Inputs[k] = u
		sol.States[k+1] = c.sys.Step(sol.States[k], u)
	}
	sol.U0 = append([]float64(nil), sol.Inputs[0]...)
	sol.Cost = c.Evaluate(sol.States, sol.Inputs, ref)

	c.logger.Debug("horizon solve",
		zap.Float64s("u0", sol.U0),
		zap.Float64("cost", sol.Cost))
	return sol, nil
}

// Evaluate returns the horizon cost of a state/input sequence against ref
// (nil for zero).
func (c *Controller) Evaluate(states, inputs [][]float64, ref [][]float64) float64 {
	total := 0.0
	for k, x := range states {
		var r []float64
		if ref != nil && k < len(ref) {
			r = ref[k]
		}
		total += quadForm(c.cost.Q, diff(x, r))
	}
	for _, u := range inputs {
		total += quadForm(c.cost.R, u)
	}
	return total
}

// Compute applies the receding horizon policy: solve and return u*[0].
func (c *Controller) Compute(x sim.State, window []sim.State) (sim.Control, error) {
	var ref [][]float64
	if window != nil {
		ref = make([][]float64, len(window))
		for i, w := range window {
			ref[i] = w
		}
	}
	sol, err := c.Solve(x, ref)
	if err != nil {
		return nil, err
	}
	return sim.Control(sol.U0), nil
}

func symmetrize(a mat.Matrix) *mat.SymDense {
	n, _ := a.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return s
}

func diff(x, r []float64) []float64 {
	d := append([]float64(nil), x...)
	for i := range d {
		if i < len(r) {
			d[i] -= r[i]
		}
	}
	return d
}

func quadForm(w mat.Matrix, v []float64) float64 {
	vec := mat.NewVecDense(len(v), v)
	return mat.Inner(vec, w, vec)
}
