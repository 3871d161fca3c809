package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// Poles returns the eigenvalues of a, or nil if the decomposition fails.
func Poles(a mat.Matrix) []complex128 {
	var eig mat.Eigen
	if !eig.Factorize(a, mat.EigenNone) {
		return nil
	}
	return eig.Values(nil)
}

// SpectralRadius is the largest pole magnitude, or +Inf if the poles cannot
// be computed.
func SpectralRadius(a mat.Matrix) float64 {
	poles := Poles(a)
	if poles == nil {
		return math.Inf(1)
	}
	radius := 0.0
	for _, p := range poles {
		radius = math.Max(radius, cmplx.Abs(p))
	}
	return radius
}

// ControllabilityRank returns the numerical rank of [B AB … Aⁿ⁻¹B].
func ControllabilityRank(a, b mat.Matrix) int {
	n, m := b.Dims()
	c := mat.NewDense(n, n*m, nil)

	block := mat.DenseCopyOf(b)
	for k := 0; k < n; k++ {
		c.Slice(0, n, k*m, (k+1)*m).(*mat.Dense).Copy(block)
		var next mat.Dense
		next.Mul(a, block)
		block = &next
	}

	var svd mat.SVD
	if !svd.Factorize(c, mat.SVDNone) {
		return 0
	}
	values := svd.Values(nil)
	if len(values) == 0 || values[0] == 0 {
		return 0
	}
	tol := float64(n*m) * values[0] * 0x1p-52
	rank := 0
	for _, s := range values {
		if s > tol {
			rank++
		}
	}
	return rank
}

func Controllable(a, b mat.Matrix) bool {
	n, _ := a.Dims()
	return ControllabilityRank(a, b) == n
}

// ClosedLoop returns A - BK.
func ClosedLoop(a, b, k mat.Matrix) *mat.Dense {
	var bk, out mat.Dense
	bk.Mul(b, k)
	out.Sub(a, &bk)
	return &out
}
