// Package control provides baseline feedback controllers for the closed-loop
// simulator.
//
// Controllers implement [sim.Controller]:
//
//   - [LQR]: state feedback u = -K(x - r) with K from a discrete Riccati
//     recursion, either over a finite horizon or at its fixed point
//   - [PID]: discrete PID on one state component, single-input plants only
//   - [None]: zero input (open loop)
//
// # Usage
//
//	lqr, err := control.NewFiniteLQR(A, B, Q, R, 20)
//	s := sim.New(plant, lqr)
//	tr, err := s.Run(ctx, x0, 100, nil)
//
// The finite-horizon gain uses Q as terminal weight, so with no active bounds
// and a zero reference it reproduces the first input of the horizon solver.
package control
