package control

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcsim/internal/sim"
)

var (
	ErrDimensionMismatch = errors.New("control: dimension mismatch")
	ErrNoConvergence     = errors.New("control: riccati iteration did not converge")
)

const (
	riccatiMaxIter = 10000
	riccatiTol     = 1e-10
)

// LQR applies u = -K(x - r), where r is the first reference sample when one
// is given and Target otherwise. Inputs are clipped to [UMin, UMax] when the
// bounds are set.
type LQR struct {
	K      *mat.Dense // m×n
	Target sim.State

	UMin, UMax []float64
}

func NewLQR(k [][]float64, target sim.State) *LQR {
	m, n := len(k), len(k[0])
	gain := mat.NewDense(m, n, nil)
	for i, row := range k {
		gain.SetRow(i, row)
	}
	return &LQR{K: gain, Target: target}
}

// NewFiniteLQR returns the first-stage gain of the horizon-N problem with
// stage weights Q, R and terminal weight Q.
func NewFiniteLQR(a, b, q, r mat.Matrix, horizon int) (*LQR, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("%w: horizon must be positive, got %d", ErrDimensionMismatch, horizon)
	}
	if err := checkDims(a, b, q, r); err != nil {
		return nil, err
	}

	p := mat.DenseCopyOf(q)
	var k *mat.Dense
	for i := 0; i < horizon; i++ {
		var err error
		k, p, err = riccatiStep(a, b, q, r, p)
		if err != nil {
			return nil, err
		}
	}
	n, _ := a.Dims()
	return &LQR{K: k, Target: make(sim.State, n)}, nil
}

// NewInfiniteLQR iterates the Riccati recursion to its fixed point.
func NewInfiniteLQR(a, b, q, r mat.Matrix) (*LQR, error) {
	if err := checkDims(a, b, q, r); err != nil {
		return nil, err
	}

	p := mat.DenseCopyOf(q)
	for i := 0; i < riccatiMaxIter; i++ {
		k, next, err := riccatiStep(a, b, q, r, p)
		if err != nil {
			return nil, err
		}
		if converged(p, next) {
			n, _ := a.Dims()
			return &LQR{K: k, Target: make(sim.State, n)}, nil
		}
		p = next
	}
	return nil, ErrNoConvergence
}

// Clip sets input bounds applied after the feedback law.
func (l *LQR) Clip(umin, umax []float64) *LQR {
	l.UMin = append([]float64(nil), umin...)
	l.UMax = append([]float64(nil), umax...)
	return l
}

func (l *LQR) Compute(x sim.State, window []sim.State) (sim.Control, error) {
	m, n := l.K.Dims()
	if len(x) != n {
		return nil, fmt.Errorf("%w: state has length %d, want %d", ErrDimensionMismatch, len(x), n)
	}

	target := l.Target
	if len(window) > 0 {
		target = window[0]
	}

	u := make(sim.Control, m)
	for i := range u {
		for j := range x {
			ref := 0.0
			if j < len(target) {
				ref = target[j]
			}
			u[i] -= l.K.At(i, j) * (x[j] - ref)
		}
		if i < len(l.UMin) {
			u[i] = math.Max(u[i], l.UMin[i])
		}
		if i < len(l.UMax) {
			u[i] = math.Min(u[i], l.UMax[i])
		}
	}
	return u, nil
}

// Horizon is zero: only the current reference sample is used.
func (l *LQR) Horizon() int { return 0 }

// riccatiStep computes K = (R + BᵀPB)⁻¹BᵀPA and the next cost-to-go
// Q + AᵀP(A - BK).
func riccatiStep(a, b, q, r, p mat.Matrix) (*mat.Dense, *mat.Dense, error) {
	var pb, pa mat.Dense
	pb.Mul(p, b)
	pa.Mul(p, a)

	var s mat.Dense
	s.Mul(b.T(), &pb)
	s.Add(&s, r)

	var bpa mat.Dense
	bpa.Mul(b.T(), &pa)

	var k mat.Dense
	if err := k.Solve(&s, &bpa); err != nil {
		return nil, nil, fmt.Errorf("control: riccati step: %w", err)
	}

	var bk, closed mat.Dense
	bk.Mul(b, &k)
	closed.Sub(a, &bk)

	var pac, next mat.Dense
	pac.Mul(p, &closed)
	next.Mul(a.T(), &pac)
	next.Add(&next, q)

	// Keep P symmetric against round-off.
	var sym mat.Dense
	sym.Add(&next, next.T())
	sym.Scale(0.5, &sym)
	return &k, &sym, nil
}

func converged(p, next *mat.Dense) bool {
	var d mat.Dense
	d.Sub(next, p)
	return mat.Norm(&d, math.Inf(1)) <= riccatiTol*(1+mat.Norm(p, math.Inf(1)))
}

func checkDims(a, b, q, r mat.Matrix) error {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	qr, qc := q.Dims()
	rr, rc := r.Dims()
	if ar != ac || br != ar || qr != ar || qc != ar || rr != bc || rc != bc {
		return fmt.Errorf("%w: A %d×%d, B %d×%d, Q %d×%d, R %d×%d",
			ErrDimensionMismatch, ar, ac, br, bc, qr, qc, rr, rc)
	}
	return nil
}
