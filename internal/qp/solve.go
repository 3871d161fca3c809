package qp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when the problem data have inconsistent dimensions.
var ErrShape = errors.New("qp: inconsistent problem dimensions")

// Problem is min ½·uᵀHu + cᵀu subject to G·u ≥ h. G and Hv may both be nil
// for an unconstrained problem.
type Problem struct {
	H  *mat.SymDense
	C  *mat.VecDense
	G  *mat.Dense
	Hv *mat.VecDense
}

// Options controls the solver.
type Options struct {
	// MaxIter caps the NNLS iterations; 0 selects 3 × number of constraints.
	MaxIter int
	// FeasTol is the relative tolerance used to verify G·u ≥ h on the result.
	FeasTol float64
}

func DefaultOptions() Options {
	return Options{FeasTol: 1e-7}
}

// Result of a solve. X is nil unless Status is StatusOptimal. Iterations
// counts NNLS iterations and is zero when no constraint row is active.
type Result struct {
	X          *mat.VecDense
	Objective  float64
	Status     Status
	Iterations int
}

// Solve minimises the problem. The returned error is non-nil only for
// malformed input; an infeasible or failed solve is reported through
// Result.Status.
func Solve(p *Problem, opts Options) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if opts.FeasTol <= 0 {
		opts.FeasTol = DefaultOptions().FeasTol
	}
	n := p.H.SymmetricDim()

	chol, ok := factorize(p.H)
	if !ok {
		return &Result{Status: StatusNumericalError}, nil
	}

	// Unconstrained minimiser u₀ = -H⁻¹c.
	u0 := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(u0, p.C); err != nil && !isBenign(err) {
		return &Result{Status: StatusNumericalError}, nil
	}
	u0.ScaleVec(-1, u0)

	rows, status := p.activeRows(opts.FeasTol)
	if status != StatusOptimal {
		return &Result{Status: status}, nil
	}
	if len(rows) == 0 {
		return p.result(u0), nil
	}

	// With H = LLᵀ and z = Lᵀ(u - u₀), the objective is ½‖z‖² plus a constant
	// and G·u ≥ h becomes (G·L⁻ᵀ)·z ≥ h - G·u₀.
	var l, lt mat.TriDense
	chol.LTo(&l)
	chol.UTo(&lt)

	m := len(rows)
	gk := mat.NewDense(m, n, nil)
	hk := mat.NewVecDense(m, nil)
	for i, r := range rows {
		gk.SetRow(i, p.G.RawRowView(r))
		hk.SetVec(i, p.Hv.AtVec(r))
	}

	var gtT mat.Dense // L⁻¹·Gᵀ, n×m
	if err := gtT.Solve(&l, gk.T()); err != nil && !isBenign(err) {
		return &Result{Status: StatusNumericalError}, nil
	}
	gt := mat.DenseCopyOf(gtT.T())

	var ht mat.VecDense
	ht.MulVec(gk, u0)
	ht.SubVec(hk, &ht)

	// Unit rows and an O(1) right hand side keep the NNLS residual test
	// meaningful for badly scaled problems.
	for i := 0; i < m; i++ {
		row := gt.RawRowView(i)
		nrm := 0.0
		for _, v := range row {
			nrm += v * v
		}
		nrm = math.Sqrt(nrm)
		for j := range row {
			row[j] /= nrm
		}
		ht.SetVec(i, ht.AtVec(i)/nrm)
	}
	scale := 1.0
	for i := 0; i < m; i++ {
		scale = math.Max(scale, math.Abs(ht.AtVec(i)))
	}
	ht.ScaleVec(1/scale, &ht)

	z, iters, status := LDP(gt, &ht, opts.MaxIter)
	if status != StatusOptimal {
		return &Result{Status: status, Iterations: iters}, nil
	}
	z.ScaleVec(scale, z)

	u := mat.NewVecDense(n, nil)
	if err := u.SolveVec(&lt, z); err != nil && !isBenign(err) {
		return &Result{Status: StatusNumericalError}, nil
	}
	u.AddVec(u, u0)

	if !p.feasible(u, opts.FeasTol) {
		return &Result{Status: StatusInfeasible, Iterations: iters}, nil
	}
	res := p.result(u)
	res.Iterations = iters
	return res, nil
}

func (p *Problem) validate() error {
	if p.H == nil || p.C == nil {
		return fmt.Errorf("%w: H and c are required", ErrShape)
	}
	n := p.H.SymmetricDim()
	if p.C.Len() != n {
		return fmt.Errorf("%w: c has length %d, want %d", ErrShape, p.C.Len(), n)
	}
	if (p.G == nil) != (p.Hv == nil) {
		return fmt.Errorf("%w: G and h must be given together", ErrShape)
	}
	if p.G != nil {
		r, c := p.G.Dims()
		if c != n || p.Hv.Len() != r {
			return fmt.Errorf("%w: G is %d×%d and h has length %d for n=%d", ErrShape, r, c, p.Hv.Len(), n)
		}
	}
	return nil
}

// activeRows drops constraint rows with a zero gradient, failing if one of
// them cannot hold.
func (p *Problem) activeRows(tol float64) ([]int, Status) {
	if p.G == nil {
		return nil, StatusOptimal
	}
	r, _ := p.G.Dims()
	rows := make([]int, 0, r)
	for i := 0; i < r; i++ {
		if mat.Norm(p.G.RowView(i), math.Inf(1)) > 0 {
			rows = append(rows, i)
			continue
		}
		if h := p.Hv.AtVec(i); h > tol*(1+math.Abs(h)) {
			return nil, StatusInfeasible
		}
	}
	return rows, StatusOptimal
}

func (p *Problem) feasible(u *mat.VecDense, tol float64) bool {
	if p.G == nil {
		return true
	}
	var gu mat.VecDense
	gu.MulVec(p.G, u)
	for i := 0; i < gu.Len(); i++ {
		h := p.Hv.AtVec(i)
		if h-gu.AtVec(i) > tol*(1+math.Abs(h)) {
			return false
		}
	}
	return true
}

func (p *Problem) result(u *mat.VecDense) *Result {
	var hu mat.VecDense
	hu.MulVec(p.H, u)
	obj := 0.5*mat.Dot(u, &hu) + mat.Dot(p.C, u)
	return &Result{X: u, Objective: obj, Status: StatusOptimal}
}

// factorize returns the Cholesky factor of h, adding a small ridge once when
// h is only semidefinite.
func factorize(h *mat.SymDense) (*mat.Cholesky, bool) {
	var chol mat.Cholesky
	if chol.Factorize(h) {
		return &chol, true
	}

	n := h.SymmetricDim()
	peak := 0.0
	for i := 0; i < n; i++ {
		peak = math.Max(peak, math.Abs(h.At(i, i)))
	}
	ridge := mat.NewSymDense(n, nil)
	ridge.CopySym(h)
	for i := 0; i < n; i++ {
		ridge.SetSym(i, i, ridge.At(i, i)+1e-10*(1+peak))
	}
	if chol.Factorize(ridge) {
		return &chol, true
	}
	return nil, false
}

// isBenign reports whether err only warns about conditioning.
func isBenign(err error) bool {
	var cond mat.Condition
	return errors.As(err, &cond) && !math.IsInf(float64(cond), 1)
}
