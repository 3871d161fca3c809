// Package models provides the plants used by the simulator.
//
// Every [Model] is a continuous-time system with a linearisation about its
// operating point. [Discretize] turns the linearisation into the
// discrete-time [Linear] plant by zero-order hold; [Nonlinear] integrates the
// full dynamics over each sample interval instead.
//
//	m := models.NewDoubleIntegrator()
//	plant, err := models.Discretize(m, 0.1)
//	// plant.A = [[1 0.1] [0 1]], plant.B = [[0.005] [0.1]]
package models
