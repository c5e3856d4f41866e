package experiment

import (
	"context"
	"fmt"

	"github.com/san-kum/remodel/internal/config"
	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/sim"
	"go.uber.org/zap"
)

type Experiment struct {
	cfg       *config.Config
	model     dynamo.System
	x0        dynamo.State
	simulator *sim.Simulator
	logger    *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) *Experiment {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Experiment{cfg: cfg, logger: logger}
}

func (e *Experiment) Setup(dyn dynamo.System, integrator dynamo.Integrator, controller dynamo.Controller, metrics []dynamo.Metric) error {
	if err := e.cfg.ApplyParams(dyn); err != nil {
		return err
	}
	e.model = dyn
	e.x0 = e.cfg.GetInitState(dyn)
	e.simulator = sim.New(dyn, integrator, controller).WithLogger(e.logger)
	for _, m := range metrics {
		e.simulator.AddMetric(m)
	}
	return nil
}

// SetupFromRegistry resolves the configured model, integrator and controller
// by name and attaches the registry's default metrics.
func (e *Experiment) SetupFromRegistry(r *Registry) error {
	dyn, err := r.GetModel(e.cfg.Model)
	if err != nil {
		return err
	}
	integ, err := r.GetIntegrator(e.cfg.Integrator)
	if err != nil {
		return err
	}
	name := e.cfg.Controller
	if name == "" {
		name = "none"
	}
	ctrl, err := r.GetController(name, e.cfg.GetControllerParams(dyn.ControlDim()))
	if err != nil {
		return err
	}
	return e.Setup(dyn, integ, ctrl, r.DefaultMetrics(dyn))
}

func (e *Experiment) Run(ctx context.Context) (*dynamo.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.simulator.Run(ctx, e.x0.Clone(), e.cfg.SimConfig())
}

// GetSimulator returns the underlying simulator for adding observers
func (e *Experiment) GetSimulator() *sim.Simulator {
	return e.simulator
}

func (e *Experiment) Model() dynamo.System { return e.model }
