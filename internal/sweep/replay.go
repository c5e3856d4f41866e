package sweep

import (
	"context"
	"fmt"

	"github.com/san-kum/remodel/internal/bone"
	"github.com/san-kum/remodel/internal/control"
	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/integrators"
	"github.com/san-kum/remodel/internal/metrics"
	"github.com/san-kum/remodel/internal/sim"
	"go.uber.org/zap"
)

// Replay runs a schedule known on grid times starting at zero through the
// simulator from the scenario's initial state. The step is the grid spacing
// dt and the run ends at the last grid time, so a solver schedule reproduces
// its own state trajectory and objective.
func Replay(ctx context.Context, s bone.Scenario, times []float64, u control.Rows, dt float64, weights []float64, log *zap.Logger) (*dynamo.Result, error) {
	if len(times) < 2 {
		return nil, fmt.Errorf("%w: replay needs at least 2 grid times, got %d", dynamo.ErrParameterBounds, len(times))
	}
	model, err := s.Model()
	if err != nil {
		return nil, err
	}
	if u.Dim() != model.ControlDim() {
		return nil, dynamo.DimensionError("schedule rows", u.Dim(), model.ControlDim())
	}

	simulator := sim.New(model, integrators.NewRK4(), control.NewSchedule(times, u)).WithLogger(log)
	simulator.AddMetric(model.CostMetric(weights))
	simulator.AddMetric(metrics.NewPeak(2))
	simulator.AddMetric(metrics.Burden(2))

	cfg := dynamo.DefaultConfig()
	cfg.Dt = dt
	cfg.Duration = times[len(times)-1]
	return simulator.Run(ctx, s.X0.Clone(), cfg)
}
