package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/remodel/internal/bone"
	"github.com/san-kum/remodel/internal/control"
	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/integrators"
	"github.com/san-kum/remodel/internal/metrics"
)

// TumourThreshold is the tumour burden the containment metric tracks.
const TumourThreshold = 1000.0

type Registry struct {
	models      map[string]func() (dynamo.System, error)
	integrators map[string]func() dynamo.Integrator
	controllers map[string]func(map[string]float64) dynamo.Controller
}

func scenarioModel(name string, channels ...bone.Channel) func() (dynamo.System, error) {
	return func() (dynamo.System, error) {
		s, err := bone.LookupScenario(name)
		if err != nil {
			return nil, err
		}
		return bone.NewMetastasis(s.Params, channels...)
	}
}

func NewRegistry() *Registry {
	r := &Registry{
		models:      make(map[string]func() (dynamo.System, error)),
		integrators: make(map[string]func() dynamo.Integrator),
		controllers: make(map[string]func(map[string]float64) dynamo.Controller),
	}

	r.models["remodeling"] = func() (dynamo.System, error) { return bone.NewRemodeling(), nil }
	r.models["metastasis-base"] = func() (dynamo.System, error) { return bone.NewMetastasisBase(), nil }
	r.models["molecular"] = func() (dynamo.System, error) { return bone.NewMolecular(), nil }
	r.models["molecular-metastasis"] = func() (dynamo.System, error) { return bone.NewMolecularMetastasis(), nil }
	r.models["metastasis"] = func() (dynamo.System, error) { return bone.NewMetastasis(bone.BaseParams()) }
	r.models["metastasis-sc1"] = scenarioModel("radio-sc1")
	r.models["metastasis-sc3"] = scenarioModel("deno-sc3")
	r.models["metastasis-sc1-radio"] = scenarioModel("radio-sc1", bone.Radiotherapy)
	r.models["metastasis-sc3-deno"] = scenarioModel("deno-sc3", bone.Denosumab)
	r.models["metastasis-sc3-mixed"] = scenarioModel("mixed-sc3", bone.Denosumab, bone.Radiotherapy)

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }
	r.integrators["rk45"] = func() dynamo.Integrator { return integrators.NewRK45() }

	r.controllers["none"] = func(params map[string]float64) dynamo.Controller {
		return control.NewNone(int(params["dim"]))
	}
	r.controllers["constant"] = func(params map[string]float64) dynamo.Controller {
		u := make([]float64, int(params["dim"]))
		for i := range u {
			u[i] = params[fmt.Sprintf("u%d", i)]
		}
		return control.NewConstant(u...)
	}
	r.controllers["pid"] = func(params map[string]float64) dynamo.Controller {
		pid := control.NewPID(params["kp"], params["ki"], params["kd"], params["target"], params["max"], int(params["index"]))
		if dim := int(params["dim"]); dim > 0 {
			pid.Channels = dim
		}
		pid.Channel = int(params["channel"])
		return pid
	}

	return r
}

func (r *Registry) GetModel(name string) (dynamo.System, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	return fn()
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func (r *Registry) GetController(name string, params map[string]float64) (dynamo.Controller, error) {
	fn, ok := r.controllers[name]
	if !ok {
		return nil, fmt.Errorf("unknown controller: %s", name)
	}
	return fn(params), nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) ListModels() []string      { return sortedNames(r.models) }
func (r *Registry) ListIntegrators() []string { return sortedNames(r.integrators) }
func (r *Registry) ListControllers() []string { return sortedNames(r.controllers) }

// DefaultMetrics tracks the tumour population of the metastasis models and
// the osteoclasts of the others.
func (r *Registry) DefaultMetrics(model dynamo.System) []dynamo.Metric {
	ms := []dynamo.Metric{metrics.NewControlEffort()}
	switch model.(type) {
	case *bone.Metastasis:
		ms = append(ms,
			metrics.NewPeak(2),
			metrics.Burden(2),
			metrics.NewContainment(2, TumourThreshold),
		)
	case *bone.MetastasisBase:
		ms = append(ms, metrics.NewPeak(2), metrics.Burden(2))
	default:
		ms = append(ms, metrics.NewPeak(0))
	}
	return ms
}
