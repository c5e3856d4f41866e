package bone

import (
	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/metrics"
	"github.com/san-kum/remodel/internal/optcontrol"
)

// Objective evaluates J = integral of x3^2 + sum w_k u_k^2 over the grid for
// a state and control trajectory pair.
func (m *Metastasis) Objective(grid optcontrol.Grid, x, u *optcontrol.Trajectory, weights []float64) (float64, error) {
	if x.Len() != grid.N || u.Len() != grid.N {
		return 0, dynamo.DimensionError("trajectory columns", x.Len(), grid.N)
	}
	vals := make([]float64, grid.N)
	xi := make(dynamo.State, x.Dim())
	ui := make(dynamo.Control, u.Dim())
	for i := range vals {
		x.Col(i, xi)
		u.Col(i, ui)
		vals[i] = m.RunningCost(xi, ui, weights)
	}
	return metrics.Objective(grid.Times(), vals)
}

// CostMetric streams the same objective through a simulator.
func (m *Metastasis) CostMetric(weights []float64) *metrics.Cost {
	w := append([]float64(nil), weights...)
	return metrics.NewCost("cost", func(x dynamo.State, u dynamo.Control) float64 {
		return m.RunningCost(x, u, w)
	})
}
