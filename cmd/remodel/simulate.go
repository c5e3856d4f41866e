package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/san-kum/remodel/internal/analysis"
	"github.com/san-kum/remodel/internal/automation"
	"github.com/san-kum/remodel/internal/config"
	"github.com/san-kum/remodel/internal/experiment"
	"github.com/san-kum/remodel/internal/optim"
	"github.com/san-kum/remodel/internal/sim"
	"github.com/san-kum/remodel/internal/storage"
	"github.com/san-kum/remodel/internal/viz"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// simConfig layers the config file, an optional preset and the changed flags,
// in that order.
func simConfig(cmd *cobra.Command, model string) (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Model = model

	if preset != "" {
		p := config.GetPreset(model, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
		p.Optimize = cfg.Optimize
		p.DataDir = cfg.DataDir
		cfg = p
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("controller") {
		cfg.Controller = controller
	}
	if flags.Changed("kp") {
		cfg.ControllerParams.Kp = kp
	}
	if flags.Changed("ki") {
		cfg.ControllerParams.Ki = ki
	}
	if flags.Changed("kd") {
		cfg.ControllerParams.Kd = kd
	}
	if flags.Changed("target") {
		cfg.ControllerParams.Target = target
	}
	if flags.Changed("dose-max") {
		cfg.ControllerParams.Max = doseMax
	}
	if flags.Changed("index") {
		cfg.ControllerParams.Index = index
	}
	cfg.Adaptive = cfg.Adaptive || cfg.Integrator == "rk45"

	if len(params) > 0 && cfg.Params == nil {
		cfg.Params = make(map[string]float64, len(params))
	}
	for k, v := range params {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("--set %s=%s: %w", k, v, err)
		}
		cfg.Params[k] = f
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*storage.Store, error) {
	dir := dataDir
	if configFile != "" && cfg.DataDir != "" && dir == config.DefaultDataDir {
		dir = cfg.DataDir
	}
	st := storage.New(dir)
	return st, st.Init()
}

func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func printMetrics(metrics map[string]float64) {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %.6g\n", name, metrics[name])
	}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := simConfig(cmd, args[0])
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	exp := experiment.New(cfg, logger)
	if err := exp.SetupFromRegistry(experiment.NewRegistry()); err != nil {
		return err
	}

	ctx, stop := interruptible()
	defer stop()

	fmt.Printf("running %s simulation...\n", cfg.Model)
	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	runID, err := st.SaveSimulation(storage.RunMetadata{
		Model:      cfg.Model,
		Dt:         cfg.Dt,
		Duration:   cfg.Duration,
		Integrator: cfg.Integrator,
		Controller: cfg.Controller,
	}, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d\n", result.StepsTaken)
	fmt.Printf("final state: %v\n", result.Final())
	fmt.Println("\nmetrics:")
	printMetrics(result.Metrics)
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := simConfig(cmd, args[0])
	if err != nil {
		return err
	}
	registry := experiment.NewRegistry()
	dyn, err := registry.GetModel(cfg.Model)
	if err != nil {
		return err
	}
	if err := cfg.ApplyParams(dyn); err != nil {
		return err
	}
	integ, err := registry.GetIntegrator(cfg.Integrator)
	if err != nil {
		return err
	}
	ctrl, err := registry.GetController(cfg.Controller, cfg.GetControllerParams(dyn.ControlDim()))
	if err != nil {
		return err
	}
	return viz.RunLive(viz.NewLiveModel(dyn, integ, ctrl, cfg.GetInitState(dyn), cfg.Dt, cfg.Model))
}

func compareIntegrators(cmd *cobra.Command, args []string) error {
	cfg, err := simConfig(cmd, args[0])
	if err != nil {
		return err
	}
	registry := experiment.NewRegistry()

	fmt.Printf("comparing integrators for %s (dt=%.4f, duration=%.1f days)\n\n", cfg.Model, cfg.Dt, cfg.Duration)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTEGRATOR\tSTEPS\tFINAL\tTIME_MS")

	for _, name := range args[1:] {
		integ, err := registry.GetIntegrator(name)
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", name, err)
			continue
		}
		dyn, err := registry.GetModel(cfg.Model)
		if err != nil {
			return err
		}
		if err := cfg.ApplyParams(dyn); err != nil {
			return err
		}
		ctrl, err := registry.GetController(cfg.Controller, cfg.GetControllerParams(dyn.ControlDim()))
		if err != nil {
			return err
		}

		simCfg := cfg.SimConfig()
		simCfg.Adaptive = name == "rk45"

		start := time.Now()
		result, err := sim.New(dyn, integ, ctrl).WithLogger(logger).Run(context.Background(), cfg.GetInitState(dyn), simCfg)
		elapsed := time.Since(start)
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", name, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%v\t%.2f\n", name, result.StepsTaken, result.Final(), float64(elapsed.Microseconds())/1000)
	}
	return w.Flush()
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := simConfig(cmd, args[0])
	if err != nil {
		return err
	}
	registry := experiment.NewRegistry()
	dyn, err := registry.GetModel(cfg.Model)
	if err != nil {
		return err
	}
	if err := cfg.ApplyParams(dyn); err != nil {
		return err
	}
	integ, err := registry.GetIntegrator(cfg.Integrator)
	if err != nil {
		return err
	}

	ctx, stop := interruptible()
	defer stop()

	spec := analysis.SweepSpec{
		Param:     sweepParam,
		Min:       sweepMin,
		Max:       sweepMax,
		Steps:     sweepSteps,
		Index:     index,
		X0:        cfg.GetInitState(dyn),
		Dt:        cfg.Dt,
		Transient: transient,
		Record:    record,
	}
	logger.Info("parameter sweep", zap.String("model", cfg.Model), zap.String("param", sweepParam), zap.Int("steps", sweepSteps))
	points, err := analysis.SteadyStateSweep(ctx, dyn, integ, spec)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tMIN x%d\tMAX x%d\tFINAL\tREGIME\n", sweepParam, index+1, index+1)
	maxima := make([]float64, 0, len(points))
	for _, p := range points {
		regime := "steady"
		switch {
		case p.Diverged:
			regime = "diverged"
		case p.Oscillating(1e-3):
			regime = "cycle"
		}
		fmt.Fprintf(w, "%.4g\t%.4g\t%.4g\t%.4g\t%s\n", p.Param, p.Min, p.Max, p.Final, regime)
		maxima = append(maxima, p.Max)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(viz.Chart(maxima, 80, 12, fmt.Sprintf("long-run max x%d over %s in [%g, %g]", index+1, sweepParam, sweepMin, sweepMax)))
	return nil
}

func runRobustness(cmd *cobra.Command, args []string) error {
	cfg, err := simConfig(cmd, args[0])
	if err != nil {
		return err
	}
	registry := experiment.NewRegistry()
	dyn, err := registry.GetModel(cfg.Model)
	if err != nil {
		return err
	}

	ctx, stop := interruptible()
	defer stop()

	runner := automation.NewRunner(registry, cfg, logger)
	results, err := runner.RunMonteCarlo(ctx, &automation.MonteCarloConfig{
		Model:        cfg.Model,
		Integrator:   cfg.Integrator,
		BaseState:    cfg.GetInitState(dyn),
		Perturbation: perturb,
		NumTrials:    trials,
		Duration:     cfg.Duration,
		Dt:           cfg.Dt,
		Seed:         seed,
		Index:        index,
		Threshold:    threshold,
	})
	if err != nil {
		return err
	}

	contained, escaped := automation.MonteCarloStats(results)
	finals := make([]float64, 0, len(results))
	for _, r := range results {
		if index < len(r.FinalState) {
			finals = append(finals, r.FinalState[index])
		}
	}
	fmt.Printf("%d trials, %d contained (x%d <= %g), %d escaped\n\n", len(results), contained, index+1, threshold, escaped)
	fmt.Println(viz.Chart(finals, 80, 10, fmt.Sprintf("final x%d per trial", index+1)))
	return nil
}

func runGrid(cmd *cobra.Command, args []string) error {
	cfg, err := simConfig(cmd, args[0])
	if err != nil {
		return err
	}

	names := make([]string, 0, len(gridSpecs))
	ranges := make([][]float64, 0, len(gridSpecs))
	for _, spec := range gridSpecs {
		name, values, err := optim.ParseRange(spec)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}
	search, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	registry := experiment.NewRegistry()
	build := func(p map[string]float64) (*experiment.Experiment, error) {
		c := *cfg
		c.Params = make(map[string]float64, len(cfg.Params)+len(p))
		for k, v := range cfg.Params {
			c.Params[k] = v
		}
		for k, v := range p {
			c.Params[k] = v
		}
		exp := experiment.New(&c, logger)
		if err := exp.SetupFromRegistry(registry); err != nil {
			return nil, err
		}
		return exp, nil
	}

	ctx, stop := interruptible()
	defer stop()

	logger.Info("grid search", zap.String("model", cfg.Model), zap.Strings("params", names), zap.String("metric", gridMetric))
	points, best, err := search.WithParallel(gridParallel).Search(ctx, build, gridMetric)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t", name)
	}
	fmt.Fprintf(w, "%s\n", strings.ToUpper(gridMetric))
	for i, p := range points {
		for _, name := range names {
			fmt.Fprintf(w, "%.4g\t", p.Params[name])
		}
		switch {
		case p.Err != nil:
			fmt.Fprintf(w, "error: %v\n", p.Err)
		case i == best:
			fmt.Fprintf(w, "%.6g *\n", p.Value)
		default:
			fmt.Fprintf(w, "%.6g\n", p.Value)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if best < 0 {
		return fmt.Errorf("no grid point produced %s", gridMetric)
	}
	return nil
}
