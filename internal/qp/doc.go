// Package qp solves dense, strictly convex quadratic programs
//
//	minimise   ½·uᵀHu + cᵀu
//	subject to G·u ≥ h
//
// with H symmetric positive definite.
//
// The problem is reduced to a least distance program (LDP) through the
// Cholesky factor of H, and the LDP is solved as a non-negative least
// squares (NNLS) problem with the Lawson-Hanson active set method:
//
//   - [NNLS]: min ‖E·x - f‖₂ subject to x ≥ 0
//   - [LDP]: min ‖z‖₂ subject to G·z ≥ h
//   - [Solve]: the full QP
//
// Both reductions are exact; an empty feasible set shows up as a zero NNLS
// residual and is reported as [StatusInfeasible].
//
// # References
//
//	C.L. Lawson, R.J. Hanson, 'Solving least squares problems' Prentice Hall, 1974.
//	Chapter 23, Algorithms 23.10 and 23.27.
package qp
