// Package mpc implements a linear-quadratic model predictive controller.
//
// A [Controller] holds an immutable discrete-time plant x[k+1] = A·x[k] + B·u[k],
// quadratic weights and box constraints. [Controller.Solve] optimises the
// inputs over a finite horizon of N steps for a given initial state and
// reference window:
//
//	minimise   Σₖ₌₀ᴺ⁻¹ (xₖ-rₖ)ᵀQ(xₖ-rₖ) + uₖᵀRuₖ + (x_N-r_N)ᵀQ(x_N-r_N)
//	subject to x₀ = x0, xₖ₊₁ = A·xₖ + B·uₖ, x_min ≤ xₖ ≤ x_max, u_min ≤ uₖ ≤ u_max
//
// The states are eliminated through the prediction matrices, leaving a dense
// QP in the inputs that is handed to [qp.Solve]. The predicted states are
// then rolled out from x0, so they satisfy the dynamics exactly.
//
// Solve never returns a partial result: any status other than optimal is
// reported as an [OptimizationFailure].
//
// # Usage
//
//	ctrl, err := mpc.New(sys, cost, cons, mpc.HorizonSpec{N: 20})
//	sol, err := ctrl.Solve(x0, nil) // zero reference
//	u := sol.U0
//
// A Controller only holds immutable data and is safe for concurrent use.
package mpc
