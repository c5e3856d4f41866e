package control

import "github.com/san-kum/remodel/internal/dynamo"

type None struct {
	dim int
}

func NewNone(dim int) *None {
	return &None{
		dim: dim,
	}
}

func (n *None) Compute(x dynamo.State, t float64) dynamo.Control {
	return make(dynamo.Control, n.dim)
}

// Constant applies the same doses at every step.
type Constant struct {
	U dynamo.Control
}

func NewConstant(u ...float64) *Constant {
	return &Constant{U: append(dynamo.Control(nil), u...)}
}

func (c *Constant) Compute(x dynamo.State, t float64) dynamo.Control {
	return c.U.Clone()
}
