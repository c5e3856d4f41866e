package optcontrol

import (
	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/integrators"
)

// Forward fills columns 1..N-1 of x by RK4 from column 0, which is never
// written. The control is known only at grid points: stage one uses u_i,
// stage four u_{i+1}, and the two midpoint stages their mean.
//
// A non-finite value stops the pass with a *dynamo.SimulationError wrapping
// dynamo.ErrInvalidState; columns after the failing one keep their old values.
func Forward(model dynamo.System, grid Grid, x, u *Trajectory) error {
	n, m := model.StateDim(), model.ControlDim()
	if err := checkShape("state trajectory", x, n, grid.N); err != nil {
		return err
	}
	if err := checkShape("control trajectory", u, m, grid.N); err != nil {
		return err
	}

	rk := integrators.NewRK4()
	xi := dynamo.State(x.Col(0, nil))
	u0 := dynamo.Control(u.Col(0, nil))
	u1 := make(dynamo.Control, m)
	mid := make(dynamo.Control, m)

	if dx := model.Derive(xi, u0, 0); len(dx) != n {
		return dynamo.DimensionError("state derivative", len(dx), n)
	}

	for i := 0; i < grid.N-1; i++ {
		u.Col(i+1, u1)
		for k := range mid {
			mid[k] = 0.5 * (u0[k] + u1[k])
		}

		next := rk.StepHeld(model, xi, u0, mid, u1, grid.Time(i), grid.H)
		if !next.IsValid() {
			return &dynamo.SimulationError{Step: i + 1, Time: grid.Time(i + 1), State: next, Wrapped: dynamo.ErrInvalidState}
		}
		x.SetCol(i+1, next)

		xi = next
		u0, u1 = u1, u0
	}
	return nil
}

// Baseline integrates the problem's state model with zero control.
func Baseline(p *Problem) (*Trajectory, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	x := p.initialState()
	if err := Forward(p.Model, p.Grid, x, p.ZeroControl()); err != nil {
		return nil, err
	}
	return x, nil
}

func checkShape(what string, tr *Trajectory, dim, n int) error {
	if tr.Dim() != dim {
		return dynamo.DimensionError(what+" rows", tr.Dim(), dim)
	}
	if tr.Len() != n {
		return dynamo.DimensionError(what+" columns", tr.Len(), n)
	}
	return nil
}
