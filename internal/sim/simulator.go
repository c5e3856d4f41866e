package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/remodel/internal/dynamo"
	"go.uber.org/zap"
)

// Simulator advances one model under a controller with a fixed or adaptive
// step and records every accepted state.
type Simulator struct {
	dyn        dynamo.System
	integrator dynamo.Integrator
	controller dynamo.Controller
	metrics    []dynamo.Metric
	log        *zap.Logger
}

func New(dyn dynamo.System, integrator dynamo.Integrator, controller dynamo.Controller) *Simulator {
	return &Simulator{
		dyn:        dyn,
		integrator: integrator,
		controller: controller,
		metrics:    make([]dynamo.Metric, 0),
		log:        zap.NewNop(),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric) { s.metrics = append(s.metrics, m) }

// WithLogger replaces the no-op logger.
func (s *Simulator) WithLogger(l *zap.Logger) *Simulator {
	if l != nil {
		s.log = l
	}
	return s
}

// Run integrates from x0 over [0, cfg.Duration]. Metrics see every recorded
// state, the final one included. On an invalid state or a canceled context
// the partial result is returned with the error.
func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, cfg dynamo.Config) (*dynamo.Result, error) {
	if err := s.validate(x0, cfg); err != nil {
		return nil, err
	}

	steps := int(math.Round(cfg.Duration / cfg.Dt))
	result := &dynamo.Result{
		States:   make([]dynamo.State, 0, steps+1),
		Controls: make([]dynamo.Control, 0, steps),
		Times:    make([]float64, 0, steps+1),
		Metrics:  make(map[string]float64),
		Errors:   make([]error, 0),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	x := x0.Clone()
	t := 0.0
	dt := cfg.Dt

	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)

	for i := 0; t < cfg.Duration-1e-9*cfg.Dt; i++ {
		select {
		case <-ctx.Done():
			s.finish(result)
			return result, fmt.Errorf("%w at t=%.4f: %w", dynamo.ErrContextCanceled, t, ctx.Err())
		default:
		}

		u := s.controller.Compute(x, t)

		for _, m := range s.metrics {
			m.Observe(x, u, t)
		}

		h := math.Min(dt, cfg.Duration-t)
		var newX dynamo.State

		if cfg.Adaptive {
			var used, next float64
			var err error
			newX, used, next, err = s.adaptiveStep(x, u, t, h, cfg)
			if err != nil {
				result.Errors = append(result.Errors, err)
				s.finish(result)
				return result, err
			}
			h = used
			dt = math.Min(math.Max(next, cfg.MinDt), cfg.MaxDt)
		} else {
			newX = s.step(x, u, t, h, math.Min(float64(i+1)*cfg.Dt, cfg.Duration))
		}

		if cfg.ValidateState && !newX.IsValid() {
			err := &dynamo.SimulationError{Step: i + 1, Time: t + h, State: newX, Wrapped: dynamo.ErrInvalidState}
			result.Errors = append(result.Errors, err)
			s.log.Warn("simulation stopped", zap.Int("step", i+1), zap.Float64("t", t+h))
			s.finish(result)
			return result, err
		}

		x = newX
		if cfg.Adaptive {
			t += h
		} else {
			t = math.Min(float64(i+1)*cfg.Dt, cfg.Duration)
		}
		result.StepsTaken++

		result.States = append(result.States, x.Clone())
		result.Controls = append(result.Controls, u)
		result.Times = append(result.Times, t)
	}

	u := s.controller.Compute(x, t)
	for _, m := range s.metrics {
		m.Observe(x, u, t)
	}
	s.finish(result)
	s.log.Debug("simulation finished", zap.Int("steps", result.StepsTaken), zap.Float64("t", t))
	return result, nil
}

func (s *Simulator) finish(result *dynamo.Result) {
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
}

func (s *Simulator) validate(x0 dynamo.State, cfg dynamo.Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %f", dynamo.ErrParameterBounds, cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %f", dynamo.ErrParameterBounds, cfg.Duration)
	}
	if cfg.Adaptive {
		if cfg.Tolerance <= 0 {
			return fmt.Errorf("%w: tolerance must be positive for adaptive stepping", dynamo.ErrParameterBounds)
		}
		if cfg.MinDt <= 0 || cfg.MaxDt < cfg.MinDt {
			return fmt.Errorf("%w: need 0 < min dt <= max dt, got %g and %g", dynamo.ErrParameterBounds, cfg.MinDt, cfg.MaxDt)
		}
	}
	if len(x0) != s.dyn.StateDim() {
		return dynamo.DimensionError("initial state", len(x0), s.dyn.StateDim())
	}
	return nil
}

// step takes one fixed step ending at next. An open-loop controller is
// resampled inside the step when the integrator can use it, so a schedule
// replays the way it was integrated on its grid.
func (s *Simulator) step(x dynamo.State, u dynamo.Control, t, h, next float64) dynamo.State {
	held, ok := s.integrator.(dynamo.HeldIntegrator)
	plan, open := s.controller.(dynamo.OpenLoop)
	if !ok || !open {
		return s.integrator.Step(s.dyn, x, u, t, h)
	}
	return held.StepHeld(s.dyn, x, u, plan.At(t+h/2), plan.At(next), t, h)
}

// adaptiveStep uses the integrator's own error control when it has one and
// step doubling otherwise.
func (s *Simulator) adaptiveStep(x dynamo.State, u dynamo.Control, t, dt float64, cfg dynamo.Config) (dynamo.State, float64, float64, error) {
	if adaptive, ok := s.integrator.(dynamo.AdaptiveIntegrator); ok {
		return adaptive.StepAdaptive(s.dyn, x, u, t, dt, cfg.Tolerance)
	}

	for {
		x1 := s.integrator.Step(s.dyn, x, u, t, dt)
		xHalf := s.integrator.Step(s.dyn, x, u, t, dt/2)
		x2 := s.integrator.Step(s.dyn, xHalf, u, t+dt/2, dt/2)

		err := x1.Sub(x2).Norm()
		if math.IsNaN(err) || err > cfg.Tolerance {
			if dt/2 < cfg.MinDt {
				return nil, dt, dt, &dynamo.SimulationError{Time: t, State: x.Clone(), Wrapped: dynamo.ErrStepTooSmall}
			}
			dt /= 2
			continue
		}

		next := dt
		if err < cfg.Tolerance/10 {
			next = math.Min(dt*2, cfg.MaxDt)
		}
		return x2, dt, next, nil
	}
}
