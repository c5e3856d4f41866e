// Package sweep solves one treatment scenario for several weight vectors in
// parallel and ranks the resulting schedules.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/remodel/internal/bone"
	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/optcontrol"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job is one solve. A zero Relax keeps the scenario's own relaxation.
type Job struct {
	Scenario string
	Weights  []float64
	Relax    float64
}

func (j Job) String() string {
	return fmt.Sprintf("%s %v", j.Scenario, j.Weights)
}

// Outcome is the result of one Job. Err holds solver failures that do not
// stop the rest of the sweep, such as divergence.
type Outcome struct {
	Job       Job
	Solution  *optcontrol.Solution
	Objective float64
	// Baseline is the tumour population at the horizon without treatment.
	Baseline float64
	// FinalTumour is NaN when the solve failed before producing a state
	// trajectory.
	FinalTumour float64
	Err         error
}

// Metrics are the scalars stored with the schedule. x3_T is left out when
// the solve produced no final tumour.
func (o Outcome) Metrics() map[string]float64 {
	m := map[string]float64{"x3_T_untreated": o.Baseline}
	if !math.IsNaN(o.FinalTumour) && !math.IsInf(o.FinalTumour, 0) {
		m["x3_T"] = o.FinalTumour
	}
	return m
}

func (o Outcome) Converged() bool {
	return o.Err == nil && o.Solution != nil && o.Solution.Converged()
}

// Jobs lists one job per weight vector the scenario studies.
func Jobs(s bone.Scenario) []Job {
	jobs := make([]Job, len(s.Weights))
	for i, w := range s.Weights {
		jobs[i] = Job{Scenario: s.Name, Weights: append([]float64(nil), w...)}
	}
	return jobs
}

type Runner struct {
	// Parallel caps concurrent solves; zero or less means one at a time.
	Parallel int
	Options  optcontrol.Options
	Logger   *zap.Logger
	// Observe, when set, receives every solver iteration tagged with the
	// job index. It is called from several goroutines.
	Observe func(job int, p optcontrol.Progress)
}

func NewRunner(parallel int, opts optcontrol.Options, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{Parallel: parallel, Options: opts, Logger: logger}
}

// Run solves every job and returns the outcomes in job order. Setup errors
// and cancellation abort the sweep; per-job solver failures are recorded in
// the outcome.
func (r *Runner) Run(ctx context.Context, jobs []Job) ([]Outcome, error) {
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}
	outcomes := make([]Outcome, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	limit := r.Parallel
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, job := range jobs {
		g.Go(func() error {
			out, err := r.solve(gctx, i, job, log.With(zap.Int("job", i), zap.String("scenario", job.Scenario), zap.Float64s("weights", job.Weights)))
			outcomes[i] = out
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

func (r *Runner) solve(ctx context.Context, idx int, job Job, log *zap.Logger) (Outcome, error) {
	out := Outcome{Job: job, FinalTumour: math.NaN()}

	s, err := bone.LookupScenario(job.Scenario)
	if err != nil {
		return out, err
	}
	if job.Relax != 0 {
		s.Relax = job.Relax
	}
	p, err := s.Problem(job.Weights)
	if err != nil {
		return out, fmt.Errorf("job %d: %w", idx, err)
	}

	base, err := optcontrol.Baseline(p)
	if err != nil {
		return out, fmt.Errorf("job %d baseline: %w", idx, err)
	}
	out.Baseline = base.Last()[2]
	return r.optimize(ctx, idx, s, p, out, log)
}

// optimize runs the solver on p and fills in the rest of out.
func (r *Runner) optimize(ctx context.Context, idx int, s bone.Scenario, p *optcontrol.Problem, out Outcome, log *zap.Logger) (Outcome, error) {
	job := out.Job
	opts := r.Options
	opts.Logger = log
	if r.Observe != nil {
		opts.Observer = func(pr optcontrol.Progress) { r.Observe(idx, pr) }
	}

	sol, err := optcontrol.NewSolver(opts).Solve(ctx, p)
	out.Solution = sol
	switch {
	case errors.Is(err, dynamo.ErrContextCanceled):
		return out, err
	case err != nil:
		out.Err = err
		out.Objective = math.NaN()
		log.Warn("job failed", zap.Stringer("status", sol.Status), zap.Error(err))
		return out, nil
	}

	m, err := s.Model()
	if err != nil {
		return out, err
	}
	out.Objective, err = m.Objective(sol.Grid, sol.State, sol.Control, job.Weights)
	if err != nil {
		return out, fmt.Errorf("job %d objective: %w", idx, err)
	}
	out.FinalTumour = sol.State.Last()[2]
	out.Err = sol.Err()

	log.Info("job finished",
		zap.Stringer("status", sol.Status),
		zap.Int("iterations", sol.Iterations),
		zap.Float64("objective", out.Objective),
		zap.Float64("x3_T", out.FinalTumour),
		zap.Float64("x3_T_untreated", out.Baseline))
	return out, nil
}

// Best returns the index of the converged outcome with the lowest objective,
// or -1 when none converged.
func Best(outcomes []Outcome) int {
	best := -1
	for i, o := range outcomes {
		if !o.Converged() {
			continue
		}
		if best < 0 || o.Objective < outcomes[best].Objective {
			best = i
		}
	}
	return best
}
