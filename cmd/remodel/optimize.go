package main

import (
	"fmt"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/san-kum/remodel/internal/automation"
	"github.com/san-kum/remodel/internal/bone"
	"github.com/san-kum/remodel/internal/config"
	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/experiment"
	"github.com/san-kum/remodel/internal/optcontrol"
	"github.com/san-kum/remodel/internal/storage"
	"github.com/san-kum/remodel/internal/sweep"
	"github.com/san-kum/remodel/internal/viz"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// optimizeJobs picks the weight vectors to solve for, in order of precedence:
// --weight, --weight-d with --weight-r, the config file, the scenario itself.
func optimizeJobs(s bone.Scenario, cfg *config.Config, relaxation float64) ([]sweep.Job, error) {
	var ws [][]float64
	switch {
	case len(weights) > 0:
		if len(s.Channels) != 1 {
			return nil, fmt.Errorf("%s has %d channels, use --weight-d and --weight-r", s.Name, len(s.Channels))
		}
		for _, w := range weights {
			ws = append(ws, []float64{w})
		}
	case len(weightsD) > 0 || len(weightsR) > 0:
		if len(weightsD) != len(weightsR) {
			return nil, fmt.Errorf("--weight-d has %d values but --weight-r has %d", len(weightsD), len(weightsR))
		}
		for i := range weightsD {
			ws = append(ws, []float64{weightsD[i], weightsR[i]})
		}
	case configFile != "" && cfg.Optimize.Scenario == s.Name && len(cfg.Optimize.Weights) > 0:
		ws = cfg.Optimize.Weights
	default:
		ws = s.Weights
	}

	jobs := make([]sweep.Job, len(ws))
	for i, w := range ws {
		jobs[i] = sweep.Job{Scenario: s.Name, Weights: append([]float64(nil), w...), Relax: relaxation}
	}
	return jobs, nil
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := bone.LookupScenario(args[0])
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	opts := cfg.SolverOptions()
	if tolerance > 0 {
		opts.Tolerance = tolerance
	}
	if maxIter > 0 {
		opts.MaxIterations = maxIter
	}
	r := relax
	if r == 0 && cfg.Optimize.Scenario == s.Name {
		r = cfg.Optimize.Relax
	}
	if r < 0 || r >= 1 {
		return fmt.Errorf("%w: relax %g not in [0,1)", dynamo.ErrParameterBounds, r)
	}
	workers := cfg.Optimize.Parallel
	if parallel > 0 {
		workers = parallel
	}

	jobs, err := optimizeJobs(s, cfg, r)
	if err != nil {
		return err
	}

	ctx, stop := interruptible()
	defer stop()

	runner := sweep.NewRunner(workers, opts, logger)
	logger.Info("optimizing", zap.String("scenario", s.Name), zap.Int("jobs", len(jobs)), zap.Int("parallel", workers))

	start := time.Now()
	var outcomes []sweep.Outcome
	if useTUI {
		runner.Logger = zap.NewNop()
		outcomes, err = viz.RunProgress(ctx, runner, jobs)
	} else {
		outcomes, err = runner.Run(ctx, jobs)
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	ids, err := saveOutcomes(st, s, outcomes)
	if err != nil {
		return err
	}

	fmt.Println(viz.Summary(outcomes))
	fmt.Printf("\ncompleted in %v\n", elapsed)
	for i, id := range ids {
		if id != "" {
			fmt.Printf("  %s -> %s\n", outcomes[i].Job, id)
		}
	}
	return nil
}

// saveOutcomes stores every solved outcome and returns the run ids, empty for
// jobs that produced no solution.
func saveOutcomes(st *storage.Store, s bone.Scenario, outcomes []sweep.Outcome) ([]string, error) {
	ids := make([]string, len(outcomes))
	for i, o := range outcomes {
		if o.Solution == nil {
			continue
		}
		meta := storage.RunMetadata{
			Model:      "metastasis",
			Scenario:   s.Name,
			Dt:         o.Solution.Grid.H,
			Duration:   o.Solution.Grid.T,
			Integrator: "rk4",
			Weights:    o.Job.Weights,
			Metrics:    o.Metrics(),
		}
		if !math.IsNaN(o.Objective) {
			meta.Objective = o.Objective
		}
		id, err := st.SaveSolution(meta, o.Solution)
		if err != nil {
			return ids, err
		}
		ids[i] = id
	}
	return ids, nil
}

func runStudy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	study, err := automation.LoadStudy(args[0])
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	ctx, stop := interruptible()
	defer stop()

	fmt.Printf("running study: %s\n", study.Name)
	if study.Description != "" {
		fmt.Printf("  %s\n", study.Description)
	}

	runner := automation.NewRunner(experiment.NewRegistry(), cfg, logger)
	results, err := runner.RunStudy(ctx, study)
	if err != nil {
		return err
	}

	for i, res := range results {
		name := res.Step.SaveAs
		if name == "" {
			name = fmt.Sprintf("step %d", i+1)
		}
		switch {
		case res.Result != nil:
			id, err := st.SaveSimulation(storage.RunMetadata{
				Model:      res.Step.Model,
				Scenario:   res.Step.SaveAs,
				Dt:         res.Step.Dt,
				Duration:   res.Step.Duration,
				Integrator: res.Step.Integrator,
				Controller: res.Step.Controller,
			}, res.Result)
			if err != nil {
				return err
			}
			fmt.Printf("\n%s: simulated %s, %d steps -> %s\n", name, res.Step.Model, res.Result.StepsTaken, id)
			printMetrics(res.Result.Metrics)
		case res.Outcomes != nil:
			s, err := bone.LookupScenario(res.Step.Scenario)
			if err != nil {
				return err
			}
			ids, err := saveOutcomes(st, s, res.Outcomes)
			if err != nil {
				return err
			}
			fmt.Printf("\n%s: optimized %s\n", name, res.Step.Scenario)
			fmt.Println(viz.Summary(res.Outcomes))
			for j, id := range ids {
				if id != "" {
					fmt.Printf("  %s -> %s\n", res.Outcomes[j].Job, id)
				}
			}
		}
	}
	return nil
}

func listScenarios(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCHANNELS\tT\tN\tRELAX\tWEIGHTS\tDESCRIPTION")
	for _, name := range bone.ScenarioNames() {
		s, err := bone.LookupScenario(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%v\t%g\t%d\t%g\t%v\t%s\n", s.Name, s.Channels, s.T, s.N, s.Relax, s.Weights, s.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println("\nuntreated equilibria:")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCANCER-FREE\tCOEXISTENCE")
	for _, name := range bone.ScenarioNames() {
		s, _ := bone.LookupScenario(name)
		coexist := "none"
		if x, ok := bone.CoexistenceEquilibrium(s.Params, 0, 0); ok {
			coexist = fmt.Sprintf("%.4g", []float64(x))
		}
		fmt.Fprintf(w, "%s\t%.4g\t%s\n", s.Name, []float64(bone.CancerFreeEquilibrium(s.Params, 0, 0)), coexist)
	}
	return w.Flush()
}

func listModels(cmd *cobra.Command, args []string) error {
	registry := experiment.NewRegistry()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tSTATE\tCONTROL")
	for _, name := range registry.ListModels() {
		m, err := registry.GetModel(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%d\n", name, m.StateDim(), m.ControlDim())
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nintegrators: %v\n", registry.ListIntegrators())
	fmt.Printf("controllers: %v\n", registry.ListControllers())
	return nil
}

// runReplay feeds a stored optimal schedule back through the simulator and
// compares the outcome with what the sweep reported.
func runReplay(cmd *cobra.Command, args []string) error {
	st, err := runStore()
	if err != nil {
		return err
	}
	meta, table, err := loadRun(st, args[0])
	if err != nil {
		return err
	}
	if meta.Kind != storage.KindOptimization {
		return fmt.Errorf("run %s is a %s run, replay needs an optimize run", meta.ID, meta.Kind)
	}
	s, err := bone.LookupScenario(meta.Scenario)
	if err != nil {
		return err
	}
	rows := make([][]float64, len(s.Channels))
	for k := range rows {
		col := fmt.Sprintf("u%d", k+1)
		if rows[k] = table.Column(col); rows[k] == nil {
			return fmt.Errorf("run %s has no column %s", meta.ID, col)
		}
	}

	ctx, stop := interruptible()
	defer stop()

	result, err := sweep.Replay(ctx, s, table.Times, optcontrol.TrajectoryFromRows(rows), meta.Dt, meta.Weights, logger)
	if err != nil {
		return err
	}

	id, err := st.SaveSimulation(storage.RunMetadata{
		Model:      "metastasis",
		Scenario:   s.Name,
		Dt:         meta.Dt,
		Duration:   result.Times[len(result.Times)-1],
		Integrator: "rk4",
		Controller: "schedule",
		Weights:    meta.Weights,
	}, result)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tSWEEP\tREPLAY")
	if x3, ok := meta.Metrics["x3_T"]; ok {
		fmt.Fprintf(w, "x3(T)\t%.6g\t%.6g\n", x3, result.Final()[2])
	} else {
		fmt.Fprintf(w, "x3(T)\t-\t%.6g\n", result.Final()[2])
	}
	fmt.Fprintf(w, "cost\t%.6g\t%.6g\n", meta.Objective, result.Metrics["cost"])
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nreplay stored as %s\n", id)
	printMetrics(result.Metrics)
	return nil
}
