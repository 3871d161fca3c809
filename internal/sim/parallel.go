package sim

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Ensemble runs independent closed loops from several initial states
// concurrently. Every run gets its own controller and metrics from the
// factories, so nothing is shared between goroutines.
type Ensemble struct {
	plant         Plant
	newController func() (Controller, error)
	newMetrics    func() []Metric
	workers       int
}

// NewEnsemble creates an ensemble; workers ≤ 0 means unlimited.
func NewEnsemble(plant Plant, newController func() (Controller, error), newMetrics func() []Metric, workers int) *Ensemble {
	return &Ensemble{plant: plant, newController: newController, newMetrics: newMetrics, workers: workers}
}

// Run simulates every initial state for the given steps against the same
// reference. Results are indexed like x0s. The first failing run cancels the
// others and its error is returned.
func (e *Ensemble) Run(ctx context.Context, x0s []State, steps int, ref []State) ([]*Trajectory, error) {
	results := make([]*Trajectory, len(x0s))

	g, gctx := errgroup.WithContext(ctx)
	if e.workers > 0 {
		g.SetLimit(e.workers)
	}

	for i, x0 := range x0s {
		i, x0 := i, x0
		g.Go(func() error {
			ctrl, err := e.newController()
			if err != nil {
				return err
			}
			s := New(e.plant, ctrl)
			if e.newMetrics != nil {
				for _, m := range e.newMetrics() {
					s.AddMetric(m)
				}
			}
			tr, err := s.Run(gctx, x0, steps, ref)
			results[i] = tr
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
