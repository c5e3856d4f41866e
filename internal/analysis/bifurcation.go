package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/remodel/internal/dynamo"
	"gonum.org/v1/gonum/floats"
)

// SweepSpec describes one steady-state sweep.
type SweepSpec struct {
	Param    string
	Min, Max float64
	Steps    int
	// Index is the state component that is recorded.
	Index int
	X0    dynamo.State
	Dt    float64
	// Transient is discarded, Record is the window the extrema are taken over.
	Transient, Record float64
}

// BifurcationPoint is the long-run range of one component for one parameter
// value. Min == Max for a stable equilibrium; a gap indicates a cycle.
type BifurcationPoint struct {
	Param    float64
	Min, Max float64
	Final    float64
	Diverged bool
}

func (s SweepSpec) validate(dyn dynamo.System) error {
	if s.Steps < 1 {
		return fmt.Errorf("%w: sweep needs at least one step", dynamo.ErrParameterBounds)
	}
	if s.Dt <= 0 || s.Transient < 0 || s.Record <= 0 {
		return fmt.Errorf("%w: need dt > 0, transient >= 0, record > 0", dynamo.ErrParameterBounds)
	}
	if len(s.X0) != dyn.StateDim() {
		return dynamo.DimensionError("initial state", len(s.X0), dyn.StateDim())
	}
	if s.Index < 0 || s.Index >= dyn.StateDim() {
		return fmt.Errorf("%w: state index %d", dynamo.ErrParameterBounds, s.Index)
	}
	return nil
}

// Values returns the swept parameter values.
func (s SweepSpec) Values() []float64 {
	if s.Steps == 1 {
		return []float64{s.Min}
	}
	return floats.Span(make([]float64, s.Steps), s.Min, s.Max)
}

// SteadyStateSweep integrates the uncontrolled system to its long-run regime
// for every parameter value. The parameter is restored afterwards.
func SteadyStateSweep(ctx context.Context, dyn dynamo.System, integ dynamo.Integrator, spec SweepSpec) ([]BifurcationPoint, error) {
	tunable, ok := dyn.(dynamo.Configurable)
	if !ok {
		return nil, fmt.Errorf("%w: model has no tunable parameters", dynamo.ErrUnknownParameter)
	}
	if err := spec.validate(dyn); err != nil {
		return nil, err
	}
	original, ok := tunable.GetParams()[spec.Param]
	if !ok {
		return nil, fmt.Errorf("%w: %q", dynamo.ErrUnknownParameter, spec.Param)
	}
	defer tunable.SetParam(spec.Param, original)

	ctrl := make(dynamo.Control, dyn.ControlDim())
	values := spec.Values()
	results := make([]BifurcationPoint, 0, len(values))

	for _, param := range values {
		select {
		case <-ctx.Done():
			return results, fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, ctx.Err())
		default:
		}
		if err := tunable.SetParam(spec.Param, param); err != nil {
			return results, err
		}
		results = append(results, settle(dyn, integ, ctrl, spec, param))
	}
	return results, nil
}

func settle(dyn dynamo.System, integ dynamo.Integrator, ctrl dynamo.Control, spec SweepSpec, param float64) BifurcationPoint {
	pt := BifurcationPoint{Param: param, Min: math.Inf(1), Max: math.Inf(-1)}
	x := spec.X0.Clone()
	t := 0.0

	for t < spec.Transient {
		x = integ.Step(dyn, x, ctrl, t, spec.Dt)
		t += spec.Dt
		if !x.IsValid() {
			pt.Diverged = true
			return pt
		}
	}

	end := spec.Transient + spec.Record
	for t < end {
		x = integ.Step(dyn, x, ctrl, t, spec.Dt)
		t += spec.Dt
		if !x.IsValid() {
			pt.Diverged = true
			return pt
		}
		v := x[spec.Index]
		pt.Min = math.Min(pt.Min, v)
		pt.Max = math.Max(pt.Max, v)
	}
	pt.Final = x[spec.Index]
	return pt
}

// Oscillating reports whether the recorded range exceeds tol relative to
// the magnitude of the state.
func (p BifurcationPoint) Oscillating(tol float64) bool {
	if p.Diverged {
		return false
	}
	return p.Max-p.Min > tol*(1+math.Abs(p.Final))
}
