package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/remodel/internal/bone"
	"github.com/san-kum/remodel/internal/dynamo"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model != "metastasis" {
		t.Errorf("expected model metastasis, got %s", cfg.Model)
	}
	if cfg.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if cfg.Duration <= 0 {
		t.Error("duration should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}

	opts := cfg.SolverOptions()
	if opts.Tolerance != 1e-4 || opts.MaxIterations != 1000 {
		t.Errorf("unexpected solver defaults %+v", opts)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("remodeling", "basis")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Duration != 2000 {
		t.Errorf("expected duration 2000, got %f", cfg.Duration)
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	cfg := GetPreset("remodeling", "nonexistent")
	if cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}

	cfg = GetPreset("nonexistent", "basis")
	if cfg != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestGetPresetFillsDefaults(t *testing.T) {
	for _, family := range []string{"remodeling", "metastasis-base", "molecular", "metastasis"} {
		for _, name := range ListPresets(family) {
			cfg := GetPreset(family, name)
			if cfg.Controller == "" {
				t.Errorf("%s/%s: empty controller", family, name)
			}
			if cfg.Tolerance <= 0 {
				t.Errorf("%s/%s: tolerance %g", family, name, cfg.Tolerance)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("%s/%s: %v", family, name, err)
			}
		}
	}

	cfg := GetPreset("metastasis", "radio-dose")
	cfg.Params["doseR"] = 1
	if again := GetPreset("metastasis", "radio-dose"); again.Params["doseR"] != 0.05 {
		t.Errorf("preset mutated through a returned copy: %v", again.Params)
	}
}

func TestFamily(t *testing.T) {
	tests := []struct {
		model, want string
	}{
		{"metastasis", "metastasis"},
		{"metastasis-sc1", "metastasis"},
		{"metastasis-sc3-deno", "metastasis"},
		{"metastasis-base", "metastasis-base"},
		{"molecular-metastasis", "molecular-metastasis"},
		{"remodeling", "remodeling"},
		{"nonexistent", ""},
	}
	for _, tt := range tests {
		if got := Family(tt.model); got != tt.want {
			t.Errorf("Family(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestGetPresetByModelName(t *testing.T) {
	cfg := GetPreset("metastasis-sc1", "untreated-sc1")
	if cfg == nil {
		t.Fatal("expected the metastasis preset for a metastasis model")
	}
	if cfg.Model != "metastasis-sc1" {
		t.Errorf("expected model metastasis-sc1, got %s", cfg.Model)
	}
	if names := ListPresets("metastasis-sc3-deno"); len(names) != len(Presets["metastasis"]) {
		t.Errorf("expected metastasis presets for a metastasis model, got %v", names)
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets("metastasis")
	if len(presets) == 0 || presets[0] != "adaptive-radio" {
		t.Errorf("expected sorted presets, got %v", presets)
	}

	presets = ListPresets("nonexistent")
	if presets != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remodel.yaml")

	cfg := DefaultConfig()
	cfg.Optimize.Scenario = "mixed-sc3"
	cfg.Optimize.Weights = [][]float64{{1e6, 1e10}}
	cfg.Params = map[string]float64{"doseR": 0.01}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Optimize.Scenario != "mixed-sc3" || loaded.Optimize.Weights[0][1] != 1e10 {
		t.Errorf("optimize settings lost: %+v", loaded.Optimize)
	}
	if loaded.Params["doseR"] != 0.01 {
		t.Errorf("params lost: %v", loaded.Params)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("optimize:\n  max_iterations: 50\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Optimize.MaxIterations != 50 {
		t.Errorf("expected 50 iterations, got %d", cfg.Optimize.MaxIterations)
	}
	if cfg.Dt != DefaultDt || cfg.Optimize.Tolerance != 1e-4 {
		t.Errorf("defaults not kept: dt %g, tolerance %g", cfg.Dt, cfg.Optimize.Tolerance)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("optimize:\n  relax: 1.5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds, got %v", err)
	}
}

func TestGetInitState(t *testing.T) {
	cfg := DefaultConfig()
	state := cfg.GetInitState(bone.NewMolecular())
	if len(state) != 4 || state[0] != 5 {
		t.Errorf("expected the model default, got %v", state)
	}

	cfg.InitState = []float64{1, 2, 3}
	state = cfg.GetInitState(bone.NewRemodeling())
	state[0] = 9
	if cfg.InitState[0] != 1 {
		t.Error("GetInitState returned the configured slice")
	}
}

func TestApplyParams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Params = map[string]float64{"k1": 0.5}
	r := bone.NewRemodeling()
	if err := cfg.ApplyParams(r); err != nil {
		t.Fatalf("ApplyParams failed: %v", err)
	}
	if r.K1 != 0.5 {
		t.Errorf("expected k1 0.5, got %g", r.K1)
	}

	cfg.Params = map[string]float64{"nope": 1}
	if err := cfg.ApplyParams(r); !errors.Is(err, dynamo.ErrUnknownParameter) {
		t.Errorf("expected ErrUnknownParameter, got %v", err)
	}
}

func TestScenarioConfig(t *testing.T) {
	cfg, err := ScenarioConfig("deno-sc3")
	if err != nil {
		t.Fatalf("ScenarioConfig failed: %v", err)
	}
	if cfg.Optimize.Relax != 0.95 || cfg.Duration != 250 {
		t.Errorf("unexpected scenario config %+v", cfg.Optimize)
	}
	if _, err := ScenarioConfig("chemo"); err == nil {
		t.Error("expected unknown scenario to fail")
	}
}
