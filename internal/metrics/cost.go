package metrics

import (
	"fmt"

	"github.com/san-kum/remodel/internal/dynamo"
	"gonum.org/v1/gonum/integrate"
)

// Objective integrates sampled values of a running cost over increasing
// times with the trapezoidal rule.
func Objective(times, integrand []float64) (float64, error) {
	if len(times) != len(integrand) {
		return 0, dynamo.DimensionError("integrand", len(integrand), len(times))
	}
	if len(times) < 2 {
		return 0, fmt.Errorf("%w: need at least 2 samples, got %d", dynamo.ErrParameterBounds, len(times))
	}
	return integrate.Trapezoidal(times, integrand), nil
}

// RunningCostFunc evaluates the integrand of an objective at one instant.
type RunningCostFunc func(x dynamo.State, u dynamo.Control) float64

// Cost accumulates the trapezoidal integral of a running cost over the
// steps a simulator reports.
type Cost struct {
	name  string
	fn    RunningCostFunc
	total float64
	prevT float64
	prevV float64
	seen  bool
}

func NewCost(name string, fn RunningCostFunc) *Cost {
	return &Cost{name: name, fn: fn}
}

func (c *Cost) Name() string { return c.name }

func (c *Cost) Observe(x dynamo.State, u dynamo.Control, t float64) {
	v := c.fn(x, u)
	if c.seen {
		c.total += 0.5 * (t - c.prevT) * (v + c.prevV)
	}
	c.prevT, c.prevV, c.seen = t, v, true
}

func (c *Cost) Value() float64 { return c.total }

func (c *Cost) Reset() {
	c.total = 0
	c.seen = false
}

// Burden is the area under one population curve.
func Burden(index int) *Cost {
	return NewCost(fmt.Sprintf("burden_x%d", index+1), func(x dynamo.State, _ dynamo.Control) float64 {
		if index >= len(x) {
			return 0
		}
		return x[index]
	})
}
