package optcontrol

import (
	"github.com/san-kum/remodel/internal/dynamo"
)

// Backward fills columns N-2..0 of lambda by RK4 from column N-1, which is
// never written. x and u are read only. Midpoint state and control are the
// means of adjacent columns, and each step subtracts the weighted increments:
//
//	lambda_{i-1} = lambda_i - h/6 (k1 + 2k2 + 2k3 + k4)
func Backward(adj AdjointModel, grid Grid, x, u, lambda *Trajectory) error {
	n, m := x.Dim(), u.Dim()
	if err := checkShape("costate trajectory", lambda, n, grid.N); err != nil {
		return err
	}
	if x.Len() != grid.N {
		return dynamo.DimensionError("state trajectory columns", x.Len(), grid.N)
	}
	if u.Len() != grid.N {
		return dynamo.DimensionError("control trajectory columns", u.Len(), grid.N)
	}

	h := grid.H
	xi := make(dynamo.State, n)
	xp := make(dynamo.State, n)
	xm := make(dynamo.State, n)
	ui := make(dynamo.Control, m)
	up := make(dynamo.Control, m)
	um := make(dynamo.Control, m)
	li := dynamo.State(lambda.Col(grid.N-1, nil))
	stage := make(dynamo.State, n)

	eval := func(x dynamo.State, u dynamo.Control, l dynamo.State, t float64) (dynamo.State, error) {
		k := adj.Costate(x, u, l, t)
		if len(k) != n {
			return nil, dynamo.DimensionError("costate derivative", len(k), n)
		}
		return k, nil
	}

	x.Col(grid.N-1, xi)
	u.Col(grid.N-1, ui)
	for i := grid.N - 1; i > 0; i-- {
		x.Col(i-1, xp)
		u.Col(i-1, up)
		for j := range xm {
			xm[j] = 0.5 * (xi[j] + xp[j])
		}
		for k := range um {
			um[k] = 0.5 * (ui[k] + up[k])
		}
		t := grid.Time(i)

		k1, err := eval(xi, ui, li, t)
		if err != nil {
			return err
		}
		for j := range stage {
			stage[j] = li[j] - 0.5*h*k1[j]
		}
		k2, err := eval(xm, um, stage, t-0.5*h)
		if err != nil {
			return err
		}
		for j := range stage {
			stage[j] = li[j] - 0.5*h*k2[j]
		}
		k3, err := eval(xm, um, stage, t-0.5*h)
		if err != nil {
			return err
		}
		for j := range stage {
			stage[j] = li[j] - h*k3[j]
		}
		k4, err := eval(xp, up, stage, t-h)
		if err != nil {
			return err
		}

		prev := make(dynamo.State, n)
		for j := range prev {
			prev[j] = li[j] - h*(k1[j]+2*k2[j]+2*k3[j]+k4[j])/6
		}
		if !prev.IsValid() {
			return &dynamo.SimulationError{Step: i - 1, Time: grid.Time(i - 1), State: prev, Wrapped: dynamo.ErrInvalidState}
		}
		lambda.SetCol(i-1, prev)

		li = prev
		xi, xp = xp, xi
		ui, up = up, ui
	}
	return nil
}
