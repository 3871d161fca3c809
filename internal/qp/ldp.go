package qp

import (
	"gonum.org/v1/gonum/mat"
)

// LDP solves the least distance program min ‖z‖₂ subject to G·z ≥ h, with G
// m×n of any rank.
//
// With E = [G : h]ᵀ ((n+1)×m) and f = [0 ··· 0 : 1]ᵀ, let 𝐮 solve
// NNLS(E, f) and 𝐫 = E·𝐮 - f. A zero residual means the constraints are
// incompatible; otherwise z = -[𝐫₁ ··· 𝐫ₙ]ᵀ / 𝐫ₙ₊₁ and the Lagrange
// multipliers are 𝐮 / ‖𝐫‖₂². The NNLS iteration count is returned with the
// solution.
func LDP(g mat.Matrix, h mat.Vector, maxIter int) (*mat.VecDense, int, Status) {
	m, n := g.Dims()
	if h.Len() != m {
		panic(mat.ErrShape)
	}
	z := mat.NewVecDense(n, nil)
	if m == 0 {
		return z, 0, StatusOptimal
	}

	e := mat.NewDense(n+1, m, nil)
	e.Slice(0, n, 0, m).(*mat.Dense).Copy(g.T())
	for j := 0; j < m; j++ {
		e.Set(n, j, h.AtVec(j))
	}
	f := mat.NewVecDense(n+1, nil)
	f.SetVec(n, 1)

	u, rnorm, iters, status := NNLS(e, f, maxIter)
	if status != StatusOptimal {
		return z, iters, status
	}

	// -𝐫ₙ₊₁ = 1 - hᵀ𝐮 = ‖𝐫‖₂²
	fac := 1 - mat.Dot(h, u)
	if rnorm <= 0 || fac < 1e3*eps {
		return z, iters, StatusInfeasible
	}

	z.MulVec(g.T(), u)
	z.ScaleVec(1/fac, z)
	return z, iters, StatusOptimal
}
