package config

import (
	"fmt"
	"os"

	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/optcontrol"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDt        = 0.1
	DefaultDuration  = 250.0
	DefaultTolerance = 1e-6
	DefaultDataDir   = ".remodel"
	DefaultParallel  = 4
)

type Config struct {
	Model            string             `yaml:"model"`
	Integrator       string             `yaml:"integrator"`
	Controller       string             `yaml:"controller"`
	Dt               float64            `yaml:"dt"`
	Duration         float64            `yaml:"duration"`
	Adaptive         bool               `yaml:"adaptive"`
	Tolerance        float64            `yaml:"tolerance"`
	InitState        []float64          `yaml:"init_state,omitempty"`
	Params           map[string]float64 `yaml:"params,omitempty"`
	ControllerParams ControllerConfig   `yaml:"controller_params"`
	Optimize         OptimizeConfig     `yaml:"optimize"`
	DataDir          string             `yaml:"data_dir"`
}

type ControllerConfig struct {
	Kp     float64   `yaml:"kp"`
	Ki     float64   `yaml:"ki"`
	Kd     float64   `yaml:"kd"`
	Target float64   `yaml:"target"`
	Max    float64   `yaml:"max"`
	Index  int       `yaml:"index"`
	Doses  []float64 `yaml:"doses,omitempty"`
}

// OptimizeConfig holds the sweep settings. Zero values fall back to the
// solver defaults, and a zero Relax to the scenario's own.
type OptimizeConfig struct {
	Scenario      string      `yaml:"scenario"`
	Tolerance     float64     `yaml:"tolerance"`
	MaxIterations int         `yaml:"max_iterations"`
	LogEvery      int         `yaml:"log_every"`
	Relax         float64     `yaml:"relax,omitempty"`
	Weights       [][]float64 `yaml:"weights,omitempty"`
	Parallel      int         `yaml:"parallel"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:      "metastasis",
		Integrator: "rk4",
		Controller: "none",
		Dt:         DefaultDt,
		Duration:   DefaultDuration,
		Tolerance:  DefaultTolerance,
		ControllerParams: ControllerConfig{
			Kp:     1e-4,
			Target: 1000,
			Max:    0.05,
			Index:  2,
		},
		Optimize: OptimizeConfig{
			Scenario:      "radio-sc1",
			Tolerance:     optcontrol.DefaultTolerance,
			MaxIterations: optcontrol.DefaultMaxIterations,
			LogEvery:      optcontrol.DefaultLogEvery,
			Parallel:      DefaultParallel,
		},
		DataDir: DefaultDataDir,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %g", dynamo.ErrParameterBounds, c.Dt)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %g", dynamo.ErrParameterBounds, c.Duration)
	}
	if c.Adaptive && c.Tolerance <= 0 {
		return fmt.Errorf("%w: adaptive stepping needs a positive tolerance", dynamo.ErrParameterBounds)
	}
	if r := c.Optimize.Relax; r != 0 && !(r > 0 && r < 1) {
		return fmt.Errorf("%w: relax must lie in (0,1), got %g", dynamo.ErrParameterBounds, r)
	}
	if c.Optimize.Tolerance < 0 || c.Optimize.MaxIterations < 0 || c.Optimize.Parallel < 0 {
		return fmt.Errorf("%w: optimize settings must not be negative", dynamo.ErrParameterBounds)
	}
	return nil
}

// SimConfig converts the stepping settings for the simulator.
func (c *Config) SimConfig() dynamo.Config {
	cfg := dynamo.DefaultConfig()
	cfg.Dt = c.Dt
	cfg.Duration = c.Duration
	cfg.Adaptive = c.Adaptive
	if c.Tolerance > 0 {
		cfg.Tolerance = c.Tolerance
	}
	return cfg
}

// SolverOptions converts the optimize settings for optcontrol.
func (c *Config) SolverOptions() optcontrol.Options {
	opts := optcontrol.DefaultOptions()
	if c.Optimize.Tolerance > 0 {
		opts.Tolerance = c.Optimize.Tolerance
	}
	if c.Optimize.MaxIterations > 0 {
		opts.MaxIterations = c.Optimize.MaxIterations
	}
	if c.Optimize.LogEvery > 0 {
		opts.LogEvery = c.Optimize.LogEvery
	}
	return opts
}

type defaulted interface {
	DefaultState() dynamo.State
}

// GetInitState returns the configured initial state or the model's default.
func (c *Config) GetInitState(model dynamo.System) dynamo.State {
	if len(c.InitState) > 0 {
		return append(dynamo.State(nil), c.InitState...)
	}
	if d, ok := model.(defaulted); ok {
		return d.DefaultState()
	}
	return make(dynamo.State, model.StateDim())
}

// ApplyParams sets every configured parameter on a tunable model.
func (c *Config) ApplyParams(model dynamo.System) error {
	if len(c.Params) == 0 {
		return nil
	}
	tunable, ok := model.(dynamo.Configurable)
	if !ok {
		return fmt.Errorf("%w: model %s has no tunable parameters", dynamo.ErrUnknownParameter, c.Model)
	}
	for name, v := range c.Params {
		if err := tunable.SetParam(name, v); err != nil {
			return err
		}
	}
	return nil
}

// GetControllerParams flattens the controller settings for the registry
// factories. Constant doses appear as u0, u1 and so on.
func (c *Config) GetControllerParams(controlDim int) map[string]float64 {
	params := map[string]float64{
		"dim":    float64(controlDim),
		"kp":     c.ControllerParams.Kp,
		"ki":     c.ControllerParams.Ki,
		"kd":     c.ControllerParams.Kd,
		"target": c.ControllerParams.Target,
		"max":    c.ControllerParams.Max,
		"index":  float64(c.ControllerParams.Index),
	}
	for i, d := range c.ControllerParams.Doses {
		params[fmt.Sprintf("u%d", i)] = d
	}
	return params
}
