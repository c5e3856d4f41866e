package optcontrol

import (
	"fmt"
	"math"

	"github.com/san-kum/remodel/internal/dynamo"
)

// CandidateFunc evaluates the unconstrained minimiser of the Hamiltonian at
// one grid point, one entry per control channel.
type CandidateFunc func(x, lambda dynamo.State) dynamo.Control

// RelaxedUpdate clips the candidate of every channel to [0, Max[k]] and
// blends it with the previous control: Relax*old + (1-Relax)*candidate.
type RelaxedUpdate struct {
	Candidate CandidateFunc
	Max       []float64
	Relax     float64
}

func NewRelaxedUpdate(candidate CandidateFunc, max []float64, relax float64) (*RelaxedUpdate, error) {
	r := &RelaxedUpdate{Candidate: candidate, Max: append([]float64(nil), max...), Relax: relax}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RelaxedUpdate) validate() error {
	if r.Candidate == nil {
		return fmt.Errorf("%w: candidate formula is nil", ErrIncompleteProblem)
	}
	if len(r.Max) == 0 {
		return dynamo.DimensionError("control bounds", 0, 1)
	}
	for k, m := range r.Max {
		if m < 0 || math.IsNaN(m) || math.IsInf(m, 0) {
			return fmt.Errorf("%w: bound of channel %d is %g", dynamo.ErrParameterBounds, k, m)
		}
	}
	if !(r.Relax > 0 && r.Relax < 1) {
		return fmt.Errorf("%w: relaxation must lie in (0,1), got %g", dynamo.ErrParameterBounds, r.Relax)
	}
	return nil
}

func (r *RelaxedUpdate) ControlDim() int { return len(r.Max) }

func (r *RelaxedUpdate) Update(x, u, lambda *Trajectory) (*Trajectory, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	m, n := len(r.Max), u.Len()
	if u.Dim() != m {
		return nil, dynamo.DimensionError("control trajectory", u.Dim(), m)
	}
	if x.Len() != n || lambda.Len() != n {
		return nil, dynamo.DimensionError("trajectory length", x.Len(), n)
	}

	next := NewTrajectory(m, n)
	xi := make(dynamo.State, x.Dim())
	li := make(dynamo.State, lambda.Dim())
	for i := 0; i < n; i++ {
		x.Col(i, xi)
		lambda.Col(i, li)
		cand := r.Candidate(xi, li)
		if len(cand) != m {
			return nil, dynamo.DimensionError("control candidate", len(cand), m)
		}
		for k, hi := range r.Max {
			if math.IsNaN(cand[k]) {
				return nil, &dynamo.SimulationError{Step: i, State: xi.Clone(), Wrapped: dynamo.ErrInvalidState}
			}
			c := Clip(cand[k], 0, hi)
			next.Set(k, i, Clip(r.Relax*u.At(k, i)+(1-r.Relax)*c, 0, hi))
		}
	}
	return next, nil
}

// Clip bounds v to [lo, hi].
func Clip(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// ZeroUpdate always returns the zero control. With it the sweep reduces to a
// plain forward simulation.
type ZeroUpdate struct{}

func (ZeroUpdate) Update(x, u, lambda *Trajectory) (*Trajectory, error) {
	return NewTrajectory(u.Dim(), u.Len()), nil
}
