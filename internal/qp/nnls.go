package qp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

const eps = 0x1p-52

var errSingular = errors.New("qp: singular least squares subproblem")

// NNLS solves min ‖E·x - f‖₂ subject to x ≥ 0 with the Lawson-Hanson active
// set method. E is p×q with no assumption on its rank.
//
// Variables in the passive set ℙ are free, the rest are held at zero. Each
// outer iteration moves the index with the largest dual component
// 𝐰 = Eᵀ(f - E·x) into ℙ and solves the unconstrained least squares problem
// on the columns in ℙ, stepping back towards the previous point whenever a
// passive variable would turn negative.
//
// It returns the solution, the residual norm ‖E·x - f‖₂, the number of inner
// iterations taken and the status.
// maxIter ≤ 0 selects 3·q.
func NNLS(e mat.Matrix, f mat.Vector, maxIter int) (*mat.VecDense, float64, int, Status) {
	p, q := e.Dims()
	if f.Len() != p {
		panic(mat.ErrShape)
	}
	if maxIter <= 0 {
		maxIter = 3 * q
	}

	x := mat.NewVecDense(q, nil)
	passive := make([]bool, q)
	tol := 10 * eps * mat.Norm(e, 1) * float64(max(p, q))

	var r, w mat.VecDense
	iter := 0

outer:
	for {
		// 𝐰 = Eᵀ(f - E·x); 𝐰ⱼ = 0 for j ∈ ℙ at a least squares point.
		r.MulVec(e, x)
		r.SubVec(f, &r)
		w.MulVec(e.T(), &r)

		rejected := make([]bool, q)
		for {
			t, wmax := -1, tol
			for j := 0; j < q; j++ {
				if !passive[j] && !rejected[j] && w.AtVec(j) > wmax {
					t, wmax = j, w.AtVec(j)
				}
			}
			// Kuhn-Tucker conditions hold: no constraint can be relaxed.
			if t < 0 {
				break outer
			}

			passive[t] = true
			s, err := passiveSolve(e, f, passive)
			if err != nil || s.AtVec(t) <= 0 {
				// Column t is numerically dependent on ℙ.
				passive[t] = false
				rejected[t] = true
				continue
			}

			for {
				iter++
				if iter > maxIter {
					return x, residualNorm(e, f, x), maxIter, StatusMaxIter
				}

				alpha, blocking := math.Inf(1), -1
				for j := 0; j < q; j++ {
					if !passive[j] || s.AtVec(j) > 0 {
						continue
					}
					xj := x.AtVec(j)
					if a := xj / (xj - s.AtVec(j)); a < alpha {
						alpha, blocking = a, j
					}
				}
				if blocking < 0 {
					x.CopyVec(s)
					break
				}

				for j := 0; j < q; j++ {
					if passive[j] {
						x.SetVec(j, x.AtVec(j)+alpha*(s.AtVec(j)-x.AtVec(j)))
					}
				}
				x.SetVec(blocking, 0)
				for j := 0; j < q; j++ {
					if passive[j] && x.AtVec(j) <= 0 {
						passive[j] = false
						x.SetVec(j, 0)
					}
				}

				s, err = passiveSolve(e, f, passive)
				if err != nil {
					return x, math.NaN(), iter, StatusNumericalError
				}
			}
			continue outer
		}
	}

	return x, residualNorm(e, f, x), iter, StatusOptimal
}

// passiveSolve returns the least squares solution of E_ℙ·s ≅ f with s zero
// outside ℙ.
func passiveSolve(e mat.Matrix, f mat.Vector, passive []bool) (*mat.VecDense, error) {
	p, q := e.Dims()
	cols := make([]int, 0, q)
	for j, in := range passive {
		if in {
			cols = append(cols, j)
		}
	}

	s := mat.NewVecDense(q, nil)
	if len(cols) == 0 {
		return s, nil
	}

	sub := mat.NewDense(p, len(cols), nil)
	for k, j := range cols {
		for i := 0; i < p; i++ {
			sub.Set(i, k, e.At(i, j))
		}
	}

	var sp mat.VecDense
	if err := sp.SolveVec(sub, f); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, errSingular
		}
	}
	for k, j := range cols {
		v := sp.AtVec(k)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errSingular
		}
		s.SetVec(j, v)
	}
	return s, nil
}

func residualNorm(e mat.Matrix, f mat.Vector, x mat.Vector) float64 {
	var r mat.VecDense
	r.MulVec(e, x)
	r.SubVec(&r, f)
	return mat.Norm(&r, 2)
}
