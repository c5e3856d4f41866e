package optcontrol

import (
	"fmt"

	"github.com/san-kum/remodel/internal/dynamo"
	"gonum.org/v1/gonum/floats"
)

// Grid is a uniform time grid of N points t_i = i*H over [0, T) with H = T/N.
type Grid struct {
	T float64
	N int
	H float64
}

func NewGrid(T float64, n int) (Grid, error) {
	g := Grid{T: T, N: n}
	if n > 0 {
		g.H = T / float64(n)
	}
	if err := g.Validate(); err != nil {
		return Grid{}, err
	}
	return g, nil
}

func (g Grid) Validate() error {
	if g.T <= 0 {
		return fmt.Errorf("%w: horizon must be positive, got %g", dynamo.ErrParameterBounds, g.T)
	}
	if g.N < 2 {
		return fmt.Errorf("%w: grid needs at least 2 points, got %d", dynamo.ErrParameterBounds, g.N)
	}
	if g.H <= 0 {
		return fmt.Errorf("%w: step must be positive, got %g", dynamo.ErrParameterBounds, g.H)
	}
	return nil
}

func (g Grid) Time(i int) float64 {
	return float64(i) * g.H
}

// Times returns the N grid times.
func (g Grid) Times() []float64 {
	return floats.Span(make([]float64, g.N), 0, g.Time(g.N-1))
}
