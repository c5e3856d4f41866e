package optcontrol

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/remodel/internal/dynamo"
	"go.uber.org/zap"
)

// ErrNotConverged is reported by Solution.Err when the iteration cap was hit.
var ErrNotConverged = errors.New("optcontrol: iteration cap reached before convergence")

const (
	DefaultTolerance     = 1e-4
	DefaultMaxIterations = 1000
	DefaultLogEvery      = 10
)

type Status int

const (
	StatusConverged Status = iota
	StatusMaxIterations
	StatusDiverged
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusMaxIterations:
		return "max-iterations"
	case StatusDiverged:
		return "diverged"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Progress describes one completed sweep. Errors are Frobenius norms of the
// change over the whole trajectory; ErrorMax is their mean.
type Progress struct {
	Iteration    int
	ErrorControl float64
	ErrorState   float64
	ErrorCostate float64
	ErrorMax     float64
}

type Options struct {
	Tolerance     float64
	MaxIterations int
	// LogEvery controls how often progress is logged at debug level.
	LogEvery int
	Logger   *zap.Logger
	// Observer, when set, is called synchronously after every iteration.
	Observer func(Progress)
}

func DefaultOptions() Options {
	return Options{
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultMaxIterations,
		LogEvery:      DefaultLogEvery,
	}
}

// Solution is the last iterate of a sweep together with how it ended.
type Solution struct {
	Grid       Grid
	State      *Trajectory
	Control    *Trajectory
	Costate    *Trajectory
	Status     Status
	Iterations int
	History    []float64
	Last       Progress
}

func (s *Solution) Converged() bool { return s.Status == StatusConverged }

// Err returns nil for a converged solution and ErrNotConverged when the
// iteration cap was reached.
func (s *Solution) Err() error {
	switch s.Status {
	case StatusConverged:
		return nil
	case StatusMaxIterations:
		return fmt.Errorf("%w (%d iterations, error %.3e)", ErrNotConverged, s.Iterations, s.Last.ErrorMax)
	default:
		return fmt.Errorf("optcontrol: sweep %s after %d iterations", s.Status, s.Iterations)
	}
}

type Solver struct {
	opts Options
	log  *zap.Logger
}

func NewSolver(opts Options) *Solver {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.LogEvery <= 0 {
		opts.LogEvery = DefaultLogEvery
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Solver{opts: opts, log: log}
}

func (s *Solver) Options() Options { return s.opts }

// Solve runs the forward-backward sweep from a zero control guess.
//
// Reaching the iteration cap is not an error: the last iterate is returned
// with StatusMaxIterations. A numerical failure or a canceled context returns
// the partial solution together with the error.
func (s *Solver) Solve(ctx context.Context, p *Problem) (*Solution, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	x := p.initialState()
	u := p.ZeroControl()
	l := p.initialCostate()

	sol := &Solution{
		Grid:    p.Grid,
		State:   x,
		Control: u,
		Costate: l,
		History: make([]float64, 0, 64),
	}

	for {
		select {
		case <-ctx.Done():
			sol.Status = StatusCanceled
			return sol, fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, ctx.Err())
		default:
		}

		oldU, oldX, oldL := u.Clone(), x.Clone(), l.Clone()

		if err := Forward(p.Model, p.Grid, x, u); err != nil {
			return s.fail(sol, "forward sweep", err)
		}
		if err := Backward(p.Adjoint, p.Grid, x, u, l); err != nil {
			return s.fail(sol, "backward sweep", err)
		}
		next, err := p.Updater.Update(x, u, l)
		if err != nil {
			return s.fail(sol, "control update", err)
		}
		if !next.sameShape(u) {
			return s.fail(sol, "control update", dynamo.DimensionError("updated control", next.Dim(), u.Dim()))
		}
		u = next
		sol.Control = u
		sol.Iterations++

		pr := Progress{
			Iteration:    sol.Iterations,
			ErrorControl: u.Distance(oldU),
			ErrorState:   x.Distance(oldX),
			ErrorCostate: l.Distance(oldL),
		}
		pr.ErrorMax = (pr.ErrorControl + pr.ErrorState + pr.ErrorCostate) / 3
		sol.Last = pr
		sol.History = append(sol.History, pr.ErrorMax)

		if s.opts.Observer != nil {
			s.opts.Observer(pr)
		}
		if sol.Iterations%s.opts.LogEvery == 0 {
			s.log.Debug("sweep progress", zap.Int("iteration", pr.Iteration), zap.Float64("error", pr.ErrorMax))
		}

		if math.IsNaN(pr.ErrorMax) || math.IsInf(pr.ErrorMax, 0) {
			return s.fail(sol, "convergence check", dynamo.ErrInvalidState)
		}
		if pr.ErrorMax < s.opts.Tolerance {
			sol.Status = StatusConverged
			s.log.Info("sweep converged", zap.Int("iterations", sol.Iterations), zap.Float64("error", pr.ErrorMax))
			return sol, nil
		}
		if sol.Iterations >= s.opts.MaxIterations {
			sol.Status = StatusMaxIterations
			s.log.Warn("sweep did not converge",
				zap.Int("iterations", sol.Iterations),
				zap.Float64("error", pr.ErrorMax),
				zap.Float64("tolerance", s.opts.Tolerance))
			return sol, nil
		}
	}
}

func (s *Solver) fail(sol *Solution, stage string, err error) (*Solution, error) {
	sol.Status = StatusDiverged
	s.log.Error("sweep failed", zap.String("stage", stage), zap.Int("iteration", sol.Iterations+1), zap.Error(err))
	return sol, fmt.Errorf("%s, iteration %d: %w", stage, sol.Iterations+1, err)
}
