package optcontrol

import (
	"errors"
	"fmt"

	"github.com/san-kum/remodel/internal/dynamo"
)

// ErrIncompleteProblem is returned when a Problem lacks one of its components.
var ErrIncompleteProblem = errors.New("optcontrol: incomplete problem")

// AdjointModel is the right-hand side of the costate system, the negative
// gradient of the Hamiltonian with respect to the state. It must be pure.
type AdjointModel interface {
	Costate(x dynamo.State, u dynamo.Control, lambda dynamo.State, t float64) dynamo.State
}

// AdjointFunc adapts a plain function to AdjointModel.
type AdjointFunc func(x dynamo.State, u dynamo.Control, lambda dynamo.State, t float64) dynamo.State

func (f AdjointFunc) Costate(x dynamo.State, u dynamo.Control, lambda dynamo.State, t float64) dynamo.State {
	return f(x, u, lambda, t)
}

// Updater produces the next control trajectory from the current state,
// control and costate trajectories. It must not modify its arguments.
type Updater interface {
	Update(x, u, lambda *Trajectory) (*Trajectory, error)
}

// channeled is implemented by updaters that know how many control channels
// they produce.
type channeled interface {
	ControlDim() int
}

// Problem is one open-loop optimal control problem. Terminal defaults to the
// zero costate when nil.
type Problem struct {
	Model    dynamo.System
	Adjoint  AdjointModel
	Updater  Updater
	Grid     Grid
	X0       dynamo.State
	Terminal dynamo.State
}

// NewProblem assembles and validates a problem with a zero terminal costate.
func NewProblem(model dynamo.System, adjoint AdjointModel, updater Updater, grid Grid, x0 dynamo.State) (*Problem, error) {
	p := &Problem{
		Model:   model,
		Adjoint: adjoint,
		Updater: updater,
		Grid:    grid,
		X0:      x0.Clone(),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that every dimension agrees before any integration runs.
func (p *Problem) Validate() error {
	switch {
	case p.Model == nil:
		return fmt.Errorf("%w: state model is nil", ErrIncompleteProblem)
	case p.Adjoint == nil:
		return fmt.Errorf("%w: adjoint model is nil", ErrIncompleteProblem)
	case p.Updater == nil:
		return fmt.Errorf("%w: control updater is nil", ErrIncompleteProblem)
	}
	if err := p.Grid.Validate(); err != nil {
		return err
	}

	n, m := p.Model.StateDim(), p.Model.ControlDim()
	if n < 1 {
		return dynamo.DimensionError("state model", n, 1)
	}
	if m < 1 {
		return dynamo.DimensionError("control", m, 1)
	}
	if len(p.X0) != n {
		return dynamo.DimensionError("initial condition", len(p.X0), n)
	}
	if !p.X0.IsValid() {
		return fmt.Errorf("initial condition: %w", dynamo.ErrInvalidState)
	}
	if p.Terminal != nil && len(p.Terminal) != n {
		return dynamo.DimensionError("terminal costate", len(p.Terminal), n)
	}
	if c, ok := p.Updater.(channeled); ok && c.ControlDim() != m {
		return dynamo.DimensionError("control bounds", c.ControlDim(), m)
	}

	u := make(dynamo.Control, m)
	if dx := p.Model.Derive(p.X0, u, 0); len(dx) != n {
		return dynamo.DimensionError("state derivative", len(dx), n)
	}
	if dl := p.Adjoint.Costate(p.X0, u, p.terminal(), p.Grid.T); len(dl) != n {
		return dynamo.DimensionError("costate derivative", len(dl), n)
	}
	return nil
}

func (p *Problem) terminal() dynamo.State {
	if p.Terminal != nil {
		return p.Terminal
	}
	return make(dynamo.State, p.Model.StateDim())
}

// initialState returns a state trajectory with column 0 set to X0.
func (p *Problem) initialState() *Trajectory {
	x := NewTrajectory(p.Model.StateDim(), p.Grid.N)
	x.SetCol(0, p.X0)
	return x
}

// initialCostate returns a costate trajectory with the last column set to the
// terminal condition.
func (p *Problem) initialCostate() *Trajectory {
	l := NewTrajectory(p.Model.StateDim(), p.Grid.N)
	l.SetCol(p.Grid.N-1, p.terminal())
	return l
}

// ZeroControl is the all-zero control trajectory for the problem.
func (p *Problem) ZeroControl() *Trajectory {
	return NewTrajectory(p.Model.ControlDim(), p.Grid.N)
}
