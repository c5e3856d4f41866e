package experiment

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/remodel/internal/config"
	"github.com/san-kum/remodel/internal/dynamo"
)

func TestRegistryLists(t *testing.T) {
	r := NewRegistry()

	models := r.ListModels()
	if len(models) != 10 || models[0] != "metastasis" {
		t.Errorf("unexpected models %v", models)
	}
	if got := r.ListIntegrators(); len(got) != 3 || got[2] != "rk45" {
		t.Errorf("unexpected integrators %v", got)
	}
	if got := r.ListControllers(); len(got) != 3 {
		t.Errorf("unexpected controllers %v", got)
	}
}

func TestRegistryModels(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		name       string
		stateDim   int
		controlDim int
	}{
		{"remodeling", 3, 0},
		{"metastasis-base", 4, 0},
		{"molecular", 4, 0},
		{"molecular-metastasis", 5, 0},
		{"metastasis", 3, 0},
		{"metastasis-sc1-radio", 3, 1},
		{"metastasis-sc3-mixed", 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := r.GetModel(tt.name)
			if err != nil {
				t.Fatalf("GetModel failed: %v", err)
			}
			if m.StateDim() != tt.stateDim || m.ControlDim() != tt.controlDim {
				t.Errorf("got dims (%d, %d), want (%d, %d)", m.StateDim(), m.ControlDim(), tt.stateDim, tt.controlDim)
			}
		})
	}
}

func TestRegistryUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.GetModel("pendulum"); err == nil {
		t.Error("expected unknown model error")
	}
	if _, err := r.GetIntegrator("verlet"); err == nil {
		t.Error("expected unknown integrator error")
	}
	if _, err := r.GetController("lqr", nil); err == nil {
		t.Error("expected unknown controller error")
	}
}

func TestConstantController(t *testing.T) {
	r := NewRegistry()
	c, err := r.GetController("constant", map[string]float64{"dim": 2, "u0": 0.6, "u1": 0.05})
	if err != nil {
		t.Fatal(err)
	}
	u := c.Compute(dynamo.State{1, 1, 1}, 0)
	if len(u) != 2 || u[0] != 0.6 || u[1] != 0.05 {
		t.Errorf("unexpected doses %v", u)
	}
}

func TestRunFromRegistry(t *testing.T) {
	cfg := config.GetPreset("metastasis", "untreated-sc1")
	exp := New(cfg, nil)
	if err := exp.SetupFromRegistry(NewRegistry()); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	result, err := exp.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.StepsTaken != 2500 {
		t.Errorf("expected 2500 steps, got %d", result.StepsTaken)
	}
	if math.Abs(result.Times[len(result.Times)-1]-250) > 1e-9 {
		t.Errorf("expected final time 250, got %f", result.Times[len(result.Times)-1])
	}
	for _, name := range []string{"control_effort", "peak_x3", "burden_x3", "containment_x3"} {
		if _, ok := result.Metrics[name]; !ok {
			t.Errorf("missing metric %s", name)
		}
	}
	if result.Metrics["control_effort"] != 0 {
		t.Errorf("untreated run reported effort %f", result.Metrics["control_effort"])
	}
	if result.Metrics["peak_x3"] < 1000 {
		t.Errorf("peak below the initial tumour: %f", result.Metrics["peak_x3"])
	}
}

func TestRadiotherapyLowersTumour(t *testing.T) {
	run := func(preset string) float64 {
		exp := New(config.GetPreset("metastasis", preset), nil)
		if err := exp.SetupFromRegistry(NewRegistry()); err != nil {
			t.Fatalf("%s: setup failed: %v", preset, err)
		}
		result, err := exp.Run(context.Background())
		if err != nil {
			t.Fatalf("%s: run failed: %v", preset, err)
		}
		return result.Final()[2]
	}

	untreated := run("untreated-sc1")
	treated := run("radio-dose")
	if treated >= untreated {
		t.Errorf("constant radiotherapy should shrink the tumour: %f >= %f", treated, untreated)
	}
}

func TestSetupDefaultsEmptyController(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model = "metastasis-sc1"
	cfg.Controller = ""
	cfg.Duration = 1

	exp := New(cfg, nil)
	if err := exp.SetupFromRegistry(NewRegistry()); err != nil {
		t.Fatalf("setup with empty controller failed: %v", err)
	}
	result, err := exp.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Metrics["control_effort"] != 0 {
		t.Errorf("empty controller should apply no treatment, effort %f", result.Metrics["control_effort"])
	}
}

func TestSetupRejectsUnknownParam(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model = "remodeling"
	cfg.Params = map[string]float64{"doseR": 0.1}

	exp := New(cfg, nil)
	err := exp.SetupFromRegistry(NewRegistry())
	if !errors.Is(err, dynamo.ErrUnknownParameter) {
		t.Errorf("expected ErrUnknownParameter, got %v", err)
	}
}

func TestRunWithoutSetup(t *testing.T) {
	exp := New(config.DefaultConfig(), nil)
	if _, err := exp.Run(context.Background()); err == nil {
		t.Error("expected error before setup")
	}
}
