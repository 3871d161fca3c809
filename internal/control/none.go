package control

import "github.com/san-kum/mpcsim/internal/sim"

type None struct {
	dim int
}

func NewNone(dim int) *None {
	return &None{
		dim: dim,
	}
}

func (n *None) Compute(x sim.State, window []sim.State) (sim.Control, error) {
	return make(sim.Control, n.dim), nil
}

func (n *None) Horizon() int { return 0 }
