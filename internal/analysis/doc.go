// Package analysis characterises linear plants and closed-loop runs.
//
//   - [Poles], [SpectralRadius]: eigenvalues of a discrete-time A
//   - [Controllable]: rank test on [B AB … Aⁿ⁻¹B]
//   - [ClosedLoop]: A - BK for a state-feedback gain
//   - [StepResponse]: settling step, overshoot and final error of one state
//     component against its reference
//
// A discrete-time system is asymptotically stable when its spectral radius is
// below one:
//
//	if analysis.SpectralRadius(analysis.ClosedLoop(A, B, K)) < 1 {
//	    // the gain stabilises the plant
//	}
package analysis
