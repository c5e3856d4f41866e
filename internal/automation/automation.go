package automation

import (
	"context"
	"fmt"
	"math/rand"
	"os"

	"github.com/san-kum/remodel/internal/bone"
	"github.com/san-kum/remodel/internal/config"
	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/experiment"
	"github.com/san-kum/remodel/internal/sweep"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	StepSimulate = "simulate"
	StepOptimize = "optimize"
)

// Study is a scripted sequence of simulations and treatment optimisations.
type Study struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step is a single entry of a study. Kind selects which fields apply; an
// empty kind means simulate.
type Step struct {
	Kind       string                  `yaml:"kind"`
	Model      string                  `yaml:"model"`
	Integrator string                  `yaml:"integrator"`
	Controller string                  `yaml:"controller"`
	Control    config.ControllerConfig `yaml:"controller_params"`
	Duration   float64                 `yaml:"duration"`
	Dt         float64                 `yaml:"dt"`
	InitState  []float64               `yaml:"init_state"`
	Params     map[string]float64      `yaml:"params"`

	Scenario      string      `yaml:"scenario"`
	Weights       [][]float64 `yaml:"weights"`
	Relax         float64     `yaml:"relax"`
	MaxIterations int         `yaml:"max_iterations"`
	Tolerance     float64     `yaml:"tolerance"`

	SaveAs string `yaml:"save_as"`
}

// StepResult holds whichever output the step kind produced.
type StepResult struct {
	Step     Step
	Result   *dynamo.Result
	Outcomes []sweep.Outcome
}

// LoadStudy loads a study from a YAML file
func LoadStudy(path string) (*Study, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var study Study
	if err := yaml.Unmarshal(data, &study); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(study.Steps) == 0 {
		return nil, fmt.Errorf("study %s has no steps", path)
	}

	return &study, nil
}

// Runner executes studies against a registry.
type Runner struct {
	Registry *experiment.Registry
	Base     *config.Config
	Logger   *zap.Logger
}

func NewRunner(registry *experiment.Registry, base *config.Config, logger *zap.Logger) *Runner {
	if base == nil {
		base = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{Registry: registry, Base: base, Logger: logger}
}

// RunStudy executes all steps in order and stops at the first failing one.
func (r *Runner) RunStudy(ctx context.Context, study *Study) ([]StepResult, error) {
	results := make([]StepResult, 0, len(study.Steps))

	for i, step := range study.Steps {
		r.Logger.Info("running step",
			zap.String("study", study.Name),
			zap.Int("step", i+1),
			zap.Int("of", len(study.Steps)),
			zap.String("kind", step.Kind))

		var res StepResult
		var err error
		switch step.Kind {
		case "", StepSimulate:
			res, err = r.simulate(ctx, step)
		case StepOptimize:
			res, err = r.optimize(ctx, step)
		default:
			err = fmt.Errorf("unknown step kind %q", step.Kind)
		}
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		results = append(results, res)
	}

	return results, nil
}

func (r *Runner) stepConfig(step Step) *config.Config {
	cfg := *r.Base
	cfg.Model = step.Model
	if step.Integrator != "" {
		cfg.Integrator = step.Integrator
	}
	if step.Controller != "" {
		cfg.Controller = step.Controller
		cfg.ControllerParams = step.Control
	}
	if step.Duration > 0 {
		cfg.Duration = step.Duration
	}
	if step.Dt > 0 {
		cfg.Dt = step.Dt
	}
	cfg.InitState = step.InitState
	cfg.Params = step.Params
	return &cfg
}

func (r *Runner) simulate(ctx context.Context, step Step) (StepResult, error) {
	cfg := r.stepConfig(step)
	if err := cfg.Validate(); err != nil {
		return StepResult{}, err
	}
	exp := experiment.New(cfg, r.Logger)
	if err := exp.SetupFromRegistry(r.Registry); err != nil {
		return StepResult{}, err
	}
	result, err := exp.Run(ctx)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{Step: step, Result: result}, nil
}

func (r *Runner) optimize(ctx context.Context, step Step) (StepResult, error) {
	cfg := *r.Base
	if step.MaxIterations > 0 {
		cfg.Optimize.MaxIterations = step.MaxIterations
	}
	if step.Tolerance > 0 {
		cfg.Optimize.Tolerance = step.Tolerance
	}

	jobs := make([]sweep.Job, len(step.Weights))
	for i, w := range step.Weights {
		jobs[i] = sweep.Job{Scenario: step.Scenario, Weights: w, Relax: step.Relax}
	}
	if len(jobs) == 0 {
		s, err := bone.LookupScenario(step.Scenario)
		if err != nil {
			return StepResult{}, err
		}
		jobs = sweep.Jobs(s)
		for i := range jobs {
			jobs[i].Relax = step.Relax
		}
	}

	runner := sweep.NewRunner(cfg.Optimize.Parallel, cfg.SolverOptions(), r.Logger)
	outcomes, err := runner.Run(ctx, jobs)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{Step: step, Outcomes: outcomes}, nil
}

// MonteCarloConfig perturbs every initial population by a random factor in
// [1-Perturbation, 1+Perturbation].
type MonteCarloConfig struct {
	Model        string
	Integrator   string
	BaseState    []float64
	Perturbation float64
	NumTrials    int
	Duration     float64
	Dt           float64
	Seed         int64
	// Index and Threshold define containment of the tracked population.
	Index     int
	Threshold float64
}

type MonteCarloResult struct {
	TrialID    int
	InitState  dynamo.State
	FinalState dynamo.State
	Contained  bool
}

// RunMonteCarlo reports, per trial, whether the tracked population ends at or
// below the threshold.
func (r *Runner) RunMonteCarlo(ctx context.Context, mc *MonteCarloConfig) ([]MonteCarloResult, error) {
	if mc.Perturbation < 0 || mc.Perturbation >= 1 {
		return nil, fmt.Errorf("%w: perturbation must lie in [0,1), got %g", dynamo.ErrParameterBounds, mc.Perturbation)
	}

	results := make([]MonteCarloResult, 0, mc.NumTrials)
	rng := rand.New(rand.NewSource(mc.Seed))

	for trial := 0; trial < mc.NumTrials; trial++ {
		initState := make([]float64, len(mc.BaseState))
		for i, v := range mc.BaseState {
			initState[i] = v * (1 + (rng.Float64()-0.5)*2*mc.Perturbation)
		}

		cfg := r.stepConfig(Step{
			Model:      mc.Model,
			Integrator: mc.Integrator,
			Controller: "none",
			Duration:   mc.Duration,
			Dt:         mc.Dt,
			InitState:  initState,
		})
		exp := experiment.New(cfg, r.Logger)
		if err := exp.SetupFromRegistry(r.Registry); err != nil {
			return nil, err
		}

		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("trial %d: %w", trial, err)
		}

		final := result.Final()
		results = append(results, MonteCarloResult{
			TrialID:    trial,
			InitState:  initState,
			FinalState: final,
			Contained:  mc.Index < len(final) && final[mc.Index] <= mc.Threshold,
		})

		if (trial+1)%10 == 0 {
			r.Logger.Debug("monte carlo progress", zap.Int("done", trial+1), zap.Int("trials", mc.NumTrials))
		}
	}

	return results, nil
}

// MonteCarloStats counts contained and escaped trials.
func MonteCarloStats(results []MonteCarloResult) (contained int, escaped int) {
	for _, r := range results {
		if r.Contained {
			contained++
		} else {
			escaped++
		}
	}
	return
}
