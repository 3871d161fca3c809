package mpc_test

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcsim/internal/control"
	"github.com/san-kum/mpcsim/internal/models"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/sim"
)

const tol = 1e-6

func doubleIntegrator() mpc.LinearSystem {
	sys, err := mpc.NewLinearSystem(
		[][]float64{{1, 0.1}, {0, 1}},
		[][]float64{{0.005}, {0.1}},
	)
	Expect(err).NotTo(HaveOccurred())
	return sys
}

func regulationBounds() mpc.Constraints {
	return mpc.Constraints{
		XMin: []float64{-10, -2},
		XMax: []float64{10, 2},
		UMin: []float64{-1},
		UMax: []float64{1},
	}
}

func newController(cons mpc.Constraints, n int) *mpc.Controller {
	ctrl, err := mpc.New(doubleIntegrator(), mpc.DiagCost([]float64{10, 1}, []float64{0.1}), cons, mpc.HorizonSpec{N: n})
	Expect(err).NotTo(HaveOccurred())
	return ctrl
}

func plantFor(sys mpc.LinearSystem) sim.Plant {
	plant, err := models.NewLinear(sys.A, sys.B)
	Expect(err).NotTo(HaveOccurred())
	return plant
}

func within(v, lo, hi []float64) bool {
	for i := range v {
		if v[i] < lo[i]-tol || v[i] > hi[i]+tol {
			return false
		}
	}
	return true
}

var _ = Describe("Horizon solver", func() {
	var (
		sys  mpc.LinearSystem
		ctrl *mpc.Controller
		cons mpc.Constraints
	)

	BeforeEach(func() {
		sys = doubleIntegrator()
		cons = regulationBounds()
		ctrl = newController(cons, 20)
	})

	It("returns predictions that satisfy the dynamics", func() {
		for _, x0 := range [][]float64{{-5, 0}, {3, 1.5}, {9, -2}, {0.1, 0.2}} {
			sol, err := ctrl.Solve(x0, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(sol.States).To(HaveLen(21))
			Expect(sol.Inputs).To(HaveLen(20))
			Expect(sol.States[0]).To(Equal(x0))

			for k := range sol.Inputs {
				next := sys.Step(sol.States[k], sol.Inputs[k])
				for i := range next {
					Expect(sol.States[k+1][i]).To(BeNumerically("~", next[i], tol))
				}
			}
		}
	})

	It("keeps every predicted state and input inside the bounds", func() {
		for _, x0 := range [][]float64{{-5, 0}, {8, 2}, {-9, -1}} {
			sol, err := ctrl.Solve(x0, nil)
			Expect(err).NotTo(HaveOccurred())
			// The input bound is active from each of these states.
			Expect(sol.Iterations).To(BeNumerically(">", 0))
			for _, x := range sol.States {
				Expect(within(x, cons.XMin, cons.XMax)).To(BeTrue(), "state %v out of bounds", x)
			}
			for _, u := range sol.Inputs {
				Expect(within(u, cons.UMin, cons.UMax)).To(BeTrue(), "input %v out of bounds", u)
			}
		}
	})

	It("reports infeasible when full braking cannot keep the state in bounds", func() {
		// u = +1 from velocity -1.8 still carries the position below -10.
		for _, x0 := range [][]float64{{-9.5, -1.8}, {-9, -1.5}} {
			_, err := ctrl.Solve(x0, nil)
			var failure *mpc.OptimizationFailure
			Expect(errors.As(err, &failure)).To(BeTrue(), "x0 %v", x0)
			Expect(failure.Status.String()).To(Equal("infeasible"))
		}
	})

	It("returns zero inputs and zero cost at rest on a zero reference", func() {
		stable, err := mpc.NewLinearSystem([][]float64{{0.9, 0.1}, {0, 0.8}}, [][]float64{{0}, {1}})
		Expect(err).NotTo(HaveOccurred())
		c, err := mpc.New(stable, mpc.DiagCost([]float64{10, 1}, []float64{0.1}), regulationBounds(), mpc.HorizonSpec{N: 10})
		Expect(err).NotTo(HaveOccurred())

		sol, err := c.Solve([]float64{0, 0}, nil)
		Expect(err).NotTo(HaveOccurred())
		for _, u := range sol.Inputs {
			Expect(u[0]).To(BeNumerically("~", 0, 1e-9))
		}
		Expect(sol.Cost).To(BeNumerically("~", 0, 1e-12))

		zeros := make([][]float64, 11)
		for i := range zeros {
			zeros[i] = []float64{0, 0}
		}
		explicit, err := c.Solve([]float64{0, 0}, zeros)
		Expect(err).NotTo(HaveOccurred())
		Expect(explicit.U0[0]).To(BeNumerically("~", 0, 1e-9))
	})

	It("is deterministic", func() {
		x0 := []float64{-3.2, 0.7}
		first, err := ctrl.Solve(x0, nil)
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 5; i++ {
			again, err := ctrl.Solve(x0, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.U0).To(Equal(first.U0))
			Expect(again.Cost).To(Equal(first.Cost))
		}
	})

	It("does not modify its arguments", func() {
		x0 := []float64{-5, 0}
		ref := make([][]float64, 21)
		for i := range ref {
			ref[i] = []float64{1, 0}
		}
		_, err := ctrl.Solve(x0, ref)
		Expect(err).NotTo(HaveOccurred())
		Expect(x0).To(Equal([]float64{-5, 0}))
		Expect(ref[20]).To(Equal([]float64{1, 0}))
	})

	It("accelerates towards the origin from x0 = [-5, 0]", func() {
		sol, err := ctrl.Solve([]float64{-5, 0}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(sol.U0[0]).To(BeNumerically(">", 0))
		Expect(sol.Status.String()).To(Equal("optimal"))
	})

	It("matches the finite-horizon LQR gain when no bound is active", func() {
		unbounded := newController(mpc.Constraints{}, 20)
		lqr, err := control.NewFiniteLQR(sys.A, sys.B,
			mat.NewDiagDense(2, []float64{10, 1}), mat.NewDense(1, 1, []float64{0.1}), 20)
		Expect(err).NotTo(HaveOccurred())

		for _, x0 := range [][]float64{{-5, 0}, {1, -1}, {0.3, 0.05}} {
			sol, err := unbounded.Solve(x0, nil)
			Expect(err).NotTo(HaveOccurred())
			u, err := lqr.Compute(sim.State(x0), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(sol.U0[0]).To(BeNumerically("~", u[0], tol*(1+math.Abs(u[0]))))
		}
	})

	It("reports crossed state bounds as an optimization failure", func() {
		crossed := regulationBounds()
		crossed.XMin = []float64{1, -2}
		crossed.XMax = []float64{-1, 2}
		c := newController(crossed, 20)

		sol, err := c.Solve([]float64{-5, 0}, nil)
		Expect(sol).To(BeNil())
		Expect(errors.Is(err, mpc.ErrOptimizationFailure)).To(BeTrue())

		var failure *mpc.OptimizationFailure
		Expect(errors.As(err, &failure)).To(BeTrue())
		Expect(failure.Status.String()).To(Equal("infeasible"))
		Expect(failure.Step).To(Equal(-1))
	})

	It("reports an unreachable state bound as an optimization failure", func() {
		// Position must stay in [4, 10] but x0 is at -5.
		far := regulationBounds()
		far.XMin = []float64{4, -2}
		c := newController(far, 20)

		_, err := c.Solve([]float64{-5, 0}, nil)
		Expect(err).To(MatchError(mpc.ErrOptimizationFailure))
	})

	It("treats an infinite bound on the closed side as infeasible", func() {
		inf := math.Inf(1)
		for name, edit := range map[string]func(*mpc.Constraints){
			"x_min = +Inf": func(c *mpc.Constraints) { c.XMin = []float64{inf, -2} },
			"x_max = -Inf": func(c *mpc.Constraints) { c.XMax = []float64{10, -inf} },
			"u_min = +Inf": func(c *mpc.Constraints) { c.UMin = []float64{inf} },
			"u_max = -Inf": func(c *mpc.Constraints) { c.UMax = []float64{-inf} },
		} {
			bounds := regulationBounds()
			edit(&bounds)
			c := newController(bounds, 20)

			sol, err := c.Solve([]float64{-5, 0}, nil)
			Expect(sol).To(BeNil(), name)
			var failure *mpc.OptimizationFailure
			Expect(errors.As(err, &failure)).To(BeTrue(), name)
			Expect(failure.Status.String()).To(Equal("infeasible"), name)
		}

		// The open side stays unbounded.
		open := regulationBounds()
		open.XMin = []float64{-inf, -2}
		open.UMax = []float64{inf}
		_, err := newController(open, 20).Solve([]float64{-5, 0}, nil)
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("Closed loop", func() {
	var (
		sys  mpc.LinearSystem
		ctrl *mpc.Controller
		cons mpc.Constraints
	)

	BeforeEach(func() {
		sys = doubleIntegrator()
		cons = regulationBounds()
		ctrl = newController(cons, 20)
	})

	It("returns T+1 states and T inputs", func() {
		for _, steps := range []int{1, 5, 37} {
			tr, err := sim.New(plantFor(sys), ctrl).Run(context.Background(), sim.State{-5, 0}, steps, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(tr.States).To(HaveLen(steps + 1))
			Expect(tr.Inputs).To(HaveLen(steps))
		}
	})

	It("regulates the double integrator to the origin", func() {
		tr, err := sim.New(plantFor(sys), ctrl).Run(context.Background(), sim.State{-5, 0}, 100, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(tr.Inputs[0][0]).To(BeNumerically(">", 0))
		for t, x := range tr.States {
			Expect(within(x, cons.XMin, cons.XMax)).To(BeTrue(), "state %v at step %d", x, t)
		}
		for _, u := range tr.Inputs {
			Expect(within(u, cons.UMin, cons.UMax)).To(BeTrue())
		}

		// Position rises monotonically until it reaches the origin.
		for t := 1; t < len(tr.States); t++ {
			if tr.States[t-1][0] >= 0 {
				break
			}
			Expect(tr.States[t][0]).To(BeNumerically(">=", tr.States[t-1][0]-tol))
		}

		final := tr.Final()
		Expect(math.Abs(final[0])).To(BeNumerically("<", 0.05))
		Expect(math.Abs(final[1])).To(BeNumerically("<", 0.05))
	})

	It("tracks a step in the position reference", func() {
		const steps = 100
		ref := make([]sim.State, steps+1)
		for t := range ref {
			if t < 20 {
				ref[t] = sim.State{0, 0}
			} else {
				ref[t] = sim.State{5, 0}
			}
		}

		tr, err := sim.New(plantFor(sys), ctrl).Run(context.Background(), sim.State{0, 0}, steps, ref)
		Expect(err).NotTo(HaveOccurred())
		Expect(tr.States).To(HaveLen(steps + 1))

		for _, x := range tr.States {
			Expect(x[0]).To(BeNumerically("<=", cons.XMax[0]+tol))
		}
		Expect(tr.Final()[0]).To(BeNumerically("~", 5, 0.05))
	})

	It("aborts on the first infeasible step and keeps the partial trajectory", func() {
		crossed := regulationBounds()
		crossed.XMin = []float64{10, 2}
		crossed.XMax = []float64{-10, -2}
		c := newController(crossed, 20)

		s := sim.New(plantFor(sys), c)
		tr, err := s.Run(context.Background(), sim.State{-5, 0}, 50, nil)
		Expect(errors.Is(err, mpc.ErrOptimizationFailure)).To(BeTrue())

		var stepErr *sim.StepError
		Expect(errors.As(err, &stepErr)).To(BeTrue())
		Expect(stepErr.Step).To(Equal(0))
		Expect(err.Error()).To(ContainSubstring("infeasible"))

		var failure *mpc.OptimizationFailure
		Expect(errors.As(err, &failure)).To(BeTrue())
		Expect(failure.Step).To(Equal(0))

		Expect(tr.States).To(HaveLen(1))
		Expect(tr.Inputs).To(BeEmpty())
		phase, step := s.Phase()
		Expect(phase).To(Equal(sim.PhaseFailed))
		Expect(step).To(Equal(0))
	})

	It("stops when a state bound becomes unreachable mid-run", func() {
		// A disturbance pushes the plant out of the state box, so the next
		// solve cannot satisfy the bound at k = 0.
		c := newController(cons, 20)
		plant := &kickedPlant{Plant: plantFor(sys), at: 3, kick: sim.State{20, 0}}

		tr, err := sim.New(plant, c).Run(context.Background(), sim.State{-5, 0}, 20, nil)
		var stepErr *sim.StepError
		Expect(errors.As(err, &stepErr)).To(BeTrue())
		Expect(stepErr.Step).To(Equal(4))
		Expect(tr.Inputs).To(HaveLen(4))
		Expect(errors.Is(err, mpc.ErrOptimizationFailure)).To(BeTrue())

		var failure *mpc.OptimizationFailure
		Expect(errors.As(err, &failure)).To(BeTrue())
		Expect(failure.Step).To(Equal(4))
	})
})

// kickedPlant adds a disturbance to the state produced at step `at`.
type kickedPlant struct {
	sim.Plant
	at, calls int
	kick      sim.State
}

func (p *kickedPlant) Step(x sim.State, u sim.Control) sim.State {
	next := p.Plant.Step(x, u)
	if p.calls == p.at {
		next = next.Add(p.kick)
	}
	p.calls++
	return next
}
