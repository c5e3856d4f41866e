package config

import (
	"sort"
	"strings"

	"github.com/san-kum/remodel/internal/bone"
)

var Presets = map[string]map[string]*Config{
	"remodeling": {
		"basis": {
			Model: "remodeling", Integrator: "rk45", Adaptive: true, Tolerance: 1e-8, Dt: 0.1, Duration: 2000,
			InitState: []float64{10, 5, 95},
		},
		"short": {
			Model: "remodeling", Integrator: "rk4", Dt: 0.05, Duration: 200,
			InitState: []float64{10, 5, 95},
		},
	},
	"metastasis-base": {
		"long": {
			Model: "metastasis-base", Integrator: "rk45", Adaptive: true, Tolerance: 1e-8, Dt: 0.1, Duration: 5000,
			InitState: []float64{5, 5, 1, 95},
		},
		"g4-sc3": {
			Model: "metastasis-base", Integrator: "rk45", Adaptive: true, Tolerance: 1e-8, Dt: 0.1, Duration: 2000,
			InitState: []float64{5, 5, 1, 95},
		},
	},
	"molecular": {
		"baseline": {
			Model: "molecular", Integrator: "rk45", Adaptive: true, Tolerance: 1e-8, Dt: 0.01, Duration: 100,
			InitState: []float64{5, 1, 0, 0},
		},
	},
	"molecular-metastasis": {
		"baseline": {
			Model: "molecular-metastasis", Integrator: "rk45", Adaptive: true, Tolerance: 1e-8, Dt: 0.01, Duration: 100,
			InitState: []float64{5, 1, 0, 0, 1e-2},
		},
	},
	"metastasis": {
		"untreated-sc1": {
			Model: "metastasis-sc1", Integrator: "rk4", Controller: "none", Dt: 0.1, Duration: 250,
		},
		"untreated-sc3": {
			Model: "metastasis-sc3", Integrator: "rk4", Controller: "none", Dt: 0.1, Duration: 250,
		},
		"radio-dose": {
			Model: "metastasis-sc1", Integrator: "rk4", Controller: "none", Dt: 0.1, Duration: 250,
			Params: map[string]float64{"doseR": 0.05},
		},
		"deno-dose": {
			Model: "metastasis-sc3", Integrator: "rk4", Controller: "none", Dt: 0.1, Duration: 250,
			Params: map[string]float64{"doseD": 0.6},
		},
		"adaptive-radio": {
			Model: "metastasis-sc1-radio", Integrator: "rk4", Controller: "pid", Dt: 0.1, Duration: 250,
			ControllerParams: ControllerConfig{Kp: 1e-4, Ki: 1e-6, Target: 500, Max: 0.05, Index: 2},
		},
	},
}

// Family maps a registry model name to the preset family that holds its
// presets: the family of the same name, the family of a preset built on the
// model, or the longest family the name extends, so metastasis-sc3-deno
// resolves to metastasis.
func Family(model string) string {
	if _, ok := Presets[model]; ok {
		return model
	}
	families := make([]string, 0, len(Presets))
	for family := range Presets {
		families = append(families, family)
	}
	sort.Strings(families)
	for _, family := range families {
		for _, p := range Presets[family] {
			if p.Model == model {
				return family
			}
		}
	}
	best := ""
	for _, family := range families {
		if strings.HasPrefix(model, family+"-") && len(family) > len(best) {
			best = family
		}
	}
	return best
}

// GetPreset returns a copy of the named preset with unset fields filled from
// DefaultConfig. model may be a family or any model of that family.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[Family(model)]
	if !ok {
		return nil
	}
	p, ok := modelPresets[preset]
	if !ok {
		return nil
	}

	cfg := *p
	def := DefaultConfig()
	if cfg.Controller == "" {
		cfg.Controller = def.Controller
	}
	if cfg.Integrator == "" {
		cfg.Integrator = def.Integrator
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
	cfg.Optimize = def.Optimize
	cfg.InitState = append([]float64(nil), p.InitState...)
	cfg.ControllerParams.Doses = append([]float64(nil), p.ControllerParams.Doses...)
	if p.Params != nil {
		cfg.Params = make(map[string]float64, len(p.Params))
		for k, v := range p.Params {
			cfg.Params[k] = v
		}
	}
	return &cfg
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[Family(model)]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScenarioConfig returns the defaults overlaid with one treatment scenario's
// optimize settings.
func ScenarioConfig(name string) (*Config, error) {
	s, err := bone.LookupScenario(name)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	cfg.Model = "metastasis"
	cfg.Duration = s.T
	cfg.Dt = s.T / float64(s.N)
	cfg.InitState = append([]float64(nil), s.X0...)
	cfg.Optimize.Scenario = s.Name
	cfg.Optimize.Relax = s.Relax
	cfg.Optimize.Weights = s.Weights
	return cfg, nil
}
