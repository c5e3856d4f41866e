package sweep

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/san-kum/remodel/internal/bone"
	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/optcontrol"
	"go.uber.org/zap"
)

func TestJobs(t *testing.T) {
	s, err := bone.LookupScenario("mixed-sc3")
	if err != nil {
		t.Fatal(err)
	}
	jobs := Jobs(s)
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[1].Weights[1] != 1e11 || jobs[1].Scenario != "mixed-sc3" {
		t.Errorf("unexpected job %v", jobs[1])
	}

	jobs[0].Weights[0] = 0
	if s.Weights[0][0] != 1e6 {
		t.Error("Jobs shares weight slices with the scenario")
	}
}

func TestRunKeepsJobOrder(t *testing.T) {
	opts := optcontrol.DefaultOptions()
	opts.MaxIterations = 3

	var mu sync.Mutex
	seen := map[int]int{}
	r := NewRunner(3, opts, nil)
	r.Observe = func(job int, p optcontrol.Progress) {
		mu.Lock()
		seen[job]++
		mu.Unlock()
	}

	jobs := []Job{
		{Scenario: "radio-sc1", Weights: []float64{1e11}},
		{Scenario: "radio-sc1", Weights: []float64{1e9}},
		{Scenario: "deno-sc3", Weights: []float64{1e4}},
	}
	outcomes, err := r.Run(context.Background(), jobs)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	for i, o := range outcomes {
		if o.Job.Scenario != jobs[i].Scenario || o.Job.Weights[0] != jobs[i].Weights[0] {
			t.Errorf("outcome %d belongs to %v", i, o.Job)
		}
		if o.Solution == nil || o.Solution.Iterations != 3 {
			t.Fatalf("outcome %d: expected 3 iterations", i)
		}
		if !errors.Is(o.Err, optcontrol.ErrNotConverged) {
			t.Errorf("outcome %d: expected ErrNotConverged, got %v", i, o.Err)
		}
		if o.Objective <= 0 || o.Baseline <= 0 {
			t.Errorf("outcome %d: objective %g baseline %g", i, o.Objective, o.Baseline)
		}
		if seen[i] != 3 {
			t.Errorf("job %d observed %d iterations", i, seen[i])
		}
	}
	if Best(outcomes) != -1 {
		t.Error("no outcome converged, Best should be -1")
	}
}

func TestRunUnknownScenario(t *testing.T) {
	r := NewRunner(2, optcontrol.DefaultOptions(), nil)
	_, err := r.Run(context.Background(), []Job{{Scenario: "chemo", Weights: []float64{1}}})
	if err == nil {
		t.Error("expected an error for an unknown scenario")
	}
}

func TestRunWeightMismatch(t *testing.T) {
	r := NewRunner(1, optcontrol.DefaultOptions(), nil)
	_, err := r.Run(context.Background(), []Job{{Scenario: "mixed-sc3", Weights: []float64{1e6}}})
	if err == nil {
		t.Error("expected an error for a single weight on two channels")
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(1, optcontrol.DefaultOptions(), nil)
	_, err := r.Run(ctx, []Job{{Scenario: "radio-sc1", Weights: []float64{1e10}}})
	if !errors.Is(err, dynamo.ErrContextCanceled) {
		t.Errorf("expected ErrContextCanceled, got %v", err)
	}
}

func TestBest(t *testing.T) {
	converged := &optcontrol.Solution{Status: optcontrol.StatusConverged}
	capped := &optcontrol.Solution{Status: optcontrol.StatusMaxIterations}

	outcomes := []Outcome{
		{Solution: converged, Objective: 5},
		{Solution: capped, Objective: 1, Err: optcontrol.ErrNotConverged},
		{Solution: converged, Objective: 3},
		{Solution: converged, Objective: 4},
	}
	if got := Best(outcomes); got != 2 {
		t.Errorf("expected outcome 2, got %d", got)
	}
	if got := Best(nil); got != -1 {
		t.Errorf("expected -1 for no outcomes, got %d", got)
	}
}

func TestDivergedJobHasNoFinalTumour(t *testing.T) {
	s, err := bone.LookupScenario("radio-sc1")
	if err != nil {
		t.Fatal(err)
	}
	w := []float64{1e10}
	p, err := s.Problem(w)
	if err != nil {
		t.Fatal(err)
	}
	p.X0 = dynamo.State{1e300, 1e300, 1e300}

	r := NewRunner(1, optcontrol.DefaultOptions(), nil)
	start := Outcome{Job: Job{Scenario: s.Name, Weights: w}, Baseline: 42, FinalTumour: math.NaN()}
	out, err := r.optimize(context.Background(), 0, s, p, start, zap.NewNop())
	if err != nil {
		t.Fatalf("a diverged job should not stop the sweep: %v", err)
	}
	if !errors.Is(out.Err, dynamo.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", out.Err)
	}
	if out.Solution == nil || out.Solution.Status != optcontrol.StatusDiverged {
		t.Fatalf("expected a diverged solution, got %+v", out.Solution)
	}
	if !math.IsNaN(out.FinalTumour) || !math.IsNaN(out.Objective) {
		t.Errorf("diverged job reported x3_T %g objective %g", out.FinalTumour, out.Objective)
	}

	m := out.Metrics()
	if _, ok := m["x3_T"]; ok {
		t.Errorf("x3_T stored for a diverged job: %v", m)
	}
	if m["x3_T_untreated"] != 42 {
		t.Errorf("baseline lost: %v", m)
	}
}

func TestOutcomeMetrics(t *testing.T) {
	m := Outcome{Baseline: 9000, FinalTumour: 12}.Metrics()
	if m["x3_T"] != 12 || m["x3_T_untreated"] != 9000 {
		t.Errorf("unexpected metrics %v", m)
	}
}

func TestReplayReproducesGridIntegration(t *testing.T) {
	s, err := bone.LookupScenario("radio-sc1")
	if err != nil {
		t.Fatal(err)
	}
	w := s.Weights[1]
	p, err := s.Problem(w)
	if err != nil {
		t.Fatal(err)
	}

	times := p.Grid.Times()
	u := p.ZeroControl()
	for i, ti := range times {
		u.Set(0, i, 0.025*(1+math.Sin(ti/20)))
	}
	x := optcontrol.NewTrajectory(p.Model.StateDim(), p.Grid.N)
	x.SetCol(0, s.X0)
	if err := optcontrol.Forward(p.Model, p.Grid, x, u); err != nil {
		t.Fatal(err)
	}
	m, err := s.Model()
	if err != nil {
		t.Fatal(err)
	}
	want, err := m.Objective(p.Grid, x, u, w)
	if err != nil {
		t.Fatal(err)
	}

	result, err := Replay(context.Background(), s, times, u, p.Grid.H, w, nil)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(result.States) != p.Grid.N {
		t.Fatalf("expected %d states, got %d", p.Grid.N, len(result.States))
	}
	if end := result.Times[len(result.Times)-1]; math.Abs(end-times[p.Grid.N-1]) > 1e-9 {
		t.Errorf("replay ended at %g, last grid time %g", end, times[p.Grid.N-1])
	}
	if got, x3 := result.Final()[2], x.Last()[2]; math.Abs(got-x3) > 1e-9*x3 {
		t.Errorf("replayed x3(T) %.12g, grid integration %.12g", got, x3)
	}
	if got := result.Metrics["cost"]; math.Abs(got-want) > 1e-9*want {
		t.Errorf("replayed cost %.12g, objective %.12g", got, want)
	}
}

func TestReplayRejectsShortSchedule(t *testing.T) {
	s, err := bone.LookupScenario("radio-sc1")
	if err != nil {
		t.Fatal(err)
	}
	_, err = Replay(context.Background(), s, []float64{0}, optcontrol.NewTrajectory(1, 1), 0.1, []float64{1e10}, nil)
	if !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds, got %v", err)
	}
}
