package mpc

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcsim/internal/qp"
)

// LinearSystem is the discrete-time plant x[k+1] = A·x[k] + B·u[k].
type LinearSystem struct {
	A mat.Matrix // n×n
	B mat.Matrix // n×m
}

// NewLinearSystem builds a system from row-major slices.
func NewLinearSystem(a, b [][]float64) (LinearSystem, error) {
	am, err := denseOf("A", a)
	if err != nil {
		return LinearSystem{}, err
	}
	bm, err := denseOf("B", b)
	if err != nil {
		return LinearSystem{}, err
	}
	return LinearSystem{A: am, B: bm}, nil
}

// Step returns A·x + B·u.
func (s LinearSystem) Step(x, u []float64) []float64 {
	n, _ := s.A.Dims()
	next := mat.NewVecDense(n, nil)
	next.MulVec(s.A, mat.NewVecDense(len(x), x))
	if len(u) > 0 {
		var bu mat.VecDense
		bu.MulVec(s.B, mat.NewVecDense(len(u), u))
		next.AddVec(next, &bu)
	}
	return next.RawVector().Data
}

// CostSpec holds the state and input weights of the stage cost
// (x-r)ᵀQ(x-r) + uᵀRu. The terminal cost reuses Q.
type CostSpec struct {
	Q mat.Matrix // n×n
	R mat.Matrix // m×m
}

// NewCostSpec builds the weights from row-major slices.
func NewCostSpec(q, r [][]float64) (CostSpec, error) {
	qm, err := denseOf("Q", q)
	if err != nil {
		return CostSpec{}, err
	}
	rm, err := denseOf("R", r)
	if err != nil {
		return CostSpec{}, err
	}
	return CostSpec{Q: qm, R: rm}, nil
}

// DiagCost builds diagonal weights.
func DiagCost(q, r []float64) CostSpec {
	return CostSpec{
		Q: mat.NewDiagDense(len(q), append([]float64(nil), q...)),
		R: mat.NewDiagDense(len(r), append([]float64(nil), r...)),
	}
}

// Constraints are per-component box bounds. A nil slice leaves the vector
// unbounded; ±Inf leaves a single component unbounded.
type Constraints struct {
	XMin, XMax []float64
	UMin, UMax []float64
}

// HorizonSpec is the number of predicted steps, N > 0.
type HorizonSpec struct {
	N int
}

// Solution of one horizon solve.
type Solution struct {
	// U0 is the first optimal input, the one applied in closed loop.
	U0 []float64
	// Inputs holds u[0..N-1].
	Inputs [][]float64
	// States holds x[0..N], rolled out from x0.
	States [][]float64
	// Cost is the optimal objective value including the x[0] stage term.
	Cost float64
	// Status is always qp.StatusOptimal for a returned solution.
	Status qp.Status
	// Iterations is the number of NNLS iterations the QP took.
	Iterations int
}

func denseOf(name string, rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, invalidf("%s is empty", name)
	}
	r, c := len(rows), len(rows[0])
	d := mat.NewDense(r, c, nil)
	for i, row := range rows {
		if len(row) != c {
			return nil, invalidf("%s row %d has %d columns, want %d", name, i, len(row), c)
		}
		d.SetRow(i, row)
	}
	return d, nil
}

func boundsOrInf(b []float64, n int, sign float64) []float64 {
	if b != nil {
		return append([]float64(nil), b...)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Inf(int(sign))
	}
	return out
}

func hasNaN(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}
