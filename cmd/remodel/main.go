package main

import (
	"fmt"
	"os"

	"github.com/san-kum/remodel/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	dataDir    string
	configFile string
	verbose    bool
	logger     *zap.Logger

	dt         float64
	duration   float64
	integrator string
	controller string
	preset     string
	params     map[string]string
	kp         float64
	ki         float64
	kd         float64
	target     float64
	doseMax    float64
	index      int

	weights   []float64
	weightsD  []float64
	weightsR  []float64
	tolerance float64
	maxIter   int
	relax     float64
	parallel  int
	useTUI    bool

	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int
	transient  float64
	record     float64

	trials    int
	perturb   float64
	seed      int64
	threshold float64

	xAxis  int
	yAxis  int
	outDir string

	gridSpecs    []string
	gridMetric   string
	gridParallel int
)

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadConfig returns the --config file or the defaults.
func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "remodel",
		Short:         "bone remodeling and metastasis treatment lab",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger()
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	optimizeCmd := &cobra.Command{
		Use:   "optimize [scenario]",
		Short: "compute optimal treatment schedules with the forward-backward sweep",
		Args:  cobra.ExactArgs(1),
		RunE:  runOptimize,
	}
	optimizeCmd.Flags().Float64SliceVar(&weights, "weight", nil, "dose weight for a single channel scenario (repeatable)")
	optimizeCmd.Flags().Float64SliceVar(&weightsD, "weight-d", nil, "denosumab weights for a mixed scenario (repeatable)")
	optimizeCmd.Flags().Float64SliceVar(&weightsR, "weight-r", nil, "radiotherapy weights for a mixed scenario (repeatable)")
	optimizeCmd.Flags().Float64Var(&tolerance, "tol", 0, "convergence tolerance (default from config)")
	optimizeCmd.Flags().IntVar(&maxIter, "max-iter", 0, "iteration cap (default from config)")
	optimizeCmd.Flags().Float64Var(&relax, "relax", 0, "relaxation factor in (0,1) (default from scenario)")
	optimizeCmd.Flags().IntVar(&parallel, "parallel", 0, "concurrent solves (default from config)")
	optimizeCmd.Flags().BoolVar(&useTUI, "tui", false, "show live progress")

	simulateCmd := &cobra.Command{
		Use:   "simulate [model]",
		Short: "integrate a model with a fixed or feedback treatment",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulation,
	}
	addSimFlags(simulateCmd)

	liveCmd := &cobra.Command{
		Use:   "live [model]",
		Short: "step a model interactively and tune its coefficients",
		Args:  cobra.ExactArgs(1),
		RunE:  runLive,
	}
	addSimFlags(liveCmd)

	compareCmd := &cobra.Command{
		Use:   "compare [model] [integrators...]",
		Short: "compare integrators on one model",
		Args:  cobra.MinimumNArgs(2),
		RunE:  compareIntegrators,
	}
	addSimFlags(compareCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "long-run parameter sweep of an untreated model",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	addSimFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "", "coefficient to sweep")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 1, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 20, "number of values")
	sweepCmd.Flags().Float64Var(&transient, "transient", 1000, "time discarded before recording")
	sweepCmd.Flags().Float64Var(&record, "record", 200, "time over which extrema are recorded")
	_ = sweepCmd.MarkFlagRequired("param")

	gridCmd := &cobra.Command{
		Use:   "grid [model]",
		Short: "search constant coefficients for the lowest run metric",
		Args:  cobra.ExactArgs(1),
		RunE:  runGrid,
	}
	addSimFlags(gridCmd)
	gridCmd.Flags().StringArrayVar(&gridSpecs, "grid", nil, "name=v1,v2,... or name=min:max:steps (repeatable)")
	gridCmd.Flags().StringVar(&gridMetric, "metric", "burden_x3", "metric to minimise")
	gridCmd.Flags().IntVar(&gridParallel, "parallel", config.DefaultParallel, "concurrent runs")
	_ = gridCmd.MarkFlagRequired("grid")

	robustnessCmd := &cobra.Command{
		Use:   "robustness [model]",
		Short: "monte carlo over perturbed initial populations",
		Args:  cobra.ExactArgs(1),
		RunE:  runRobustness,
	}
	addSimFlags(robustnessCmd)
	robustnessCmd.Flags().IntVar(&trials, "trials", 50, "number of trials")
	robustnessCmd.Flags().Float64Var(&perturb, "perturb", 0.1, "relative perturbation in [0,1)")
	robustnessCmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	robustnessCmd.Flags().Float64Var(&threshold, "threshold", 1000, "containment threshold")

	studyCmd := &cobra.Command{
		Use:   "study [file.yaml]",
		Short: "run a scripted batch of simulations and optimisations",
		Args:  cobra.ExactArgs(1),
		RunE:  runStudy,
	}

	scenariosCmd := &cobra.Command{
		Use:   "scenarios",
		Short: "list treatment scenarios",
		RunE:  listScenarios,
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list models, integrators and controllers",
		RunE:  listModels,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list presets for a model family",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	replayCmd := &cobra.Command{
		Use:   "replay [run_id]",
		Short: "simulate a stored optimal schedule and compare with the sweep",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplay,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "phase portrait of two state components",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().IntVar(&xAxis, "x", 0, "state index on the x axis")
	phaseCmd.Flags().IntVar(&yAxis, "y", 2, "state index on the y axis")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "write a stored run as JSON to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "write a stored run as CSV to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	figureCmd := &cobra.Command{
		Use:   "figure [run_id]",
		Short: "render PNG figures of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  renderFigures,
	}
	figureCmd.Flags().StringVar(&outDir, "out", "figures", "output directory")

	overlayCmd := &cobra.Command{
		Use:   "overlay [column] [run_ids...]",
		Short: "overlay one column of several runs in a PNG",
		Args:  cobra.MinimumNArgs(2),
		RunE:  overlayRuns,
	}
	overlayCmd.Flags().StringVar(&outDir, "out", "figures", "output directory")

	rootCmd.AddCommand(optimizeCmd, simulateCmd, liveCmd, compareCmd, sweepCmd, gridCmd, robustnessCmd, studyCmd,
		scenariosCmd, modelsCmd, presetsCmd, replayCmd, listCmd, plotCmd, phaseCmd, exportJSONCmd, exportCSVCmd, figureCmd, overlayCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addSimFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep (days)")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration (days)")
	cmd.Flags().StringVar(&integrator, "integrator", "rk4", "integrator (euler, rk4, rk45)")
	cmd.Flags().StringVar(&controller, "controller", "none", "controller (none, constant, pid)")
	cmd.Flags().StringVar(&preset, "preset", "", "use a preset configuration")
	cmd.Flags().StringToStringVar(&params, "set", nil, "override coefficients, e.g. --set doseR=0.05")
	cmd.Flags().Float64Var(&kp, "kp", 0, "pid proportional gain")
	cmd.Flags().Float64Var(&ki, "ki", 0, "pid integral gain")
	cmd.Flags().Float64Var(&kd, "kd", 0, "pid derivative gain")
	cmd.Flags().Float64Var(&target, "target", 0, "pid target population")
	cmd.Flags().Float64Var(&doseMax, "dose-max", 0, "pid dose ceiling")
	cmd.Flags().IntVar(&index, "index", 2, "tracked state index")
}
