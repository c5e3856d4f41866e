package bone

import (
	"fmt"
	"sort"

	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/optcontrol"
)

// Scenario is one treatment hypothesis: coefficients, optimised channels,
// their bounds and the weights studied for them.
type Scenario struct {
	Name        string
	Description string
	Params      Params
	Channels    []Channel
	Max         []float64
	Relax       float64
	// Weights lists the weight vectors studied, one entry per channel each.
	Weights [][]float64
	X0      dynamo.State
	T       float64
	N       int
}

var (
	scenario1 = Params{A3: 1.5e-2, B3: 0, C1: 1e-6, C2: 0, C3: 1e-3, C4: 0}
	scenario3 = Params{A3: 1e-4, B3: 0, C1: 0, C2: 0, C3: 1e-8, C4: -1e-4}
)

func withBase(tumour Params) Params {
	p := BaseParams()
	p.A3, p.B3 = tumour.A3, tumour.B3
	p.C1, p.C2, p.C3, p.C4 = tumour.C1, tumour.C2, tumour.C3, tumour.C4
	return p
}

func initialTumour() dynamo.State { return dynamo.State{4.42e-6, 4.46, 1000} }

// Scenarios returns fresh copies of the built-in treatment scenarios.
func Scenarios() map[string]Scenario {
	return map[string]Scenario{
		"radio-sc1": {
			Name:        "radio-sc1",
			Description: "radiotherapy only, tumour recruits osteoclasts",
			Params:      withBase(scenario1),
			Channels:    []Channel{Radiotherapy},
			Max:         []float64{0.05},
			Relax:       0.9,
			Weights:     [][]float64{{1e9}, {1e10}, {1e11}},
			X0:          initialTumour(),
			T:           250,
			N:           2500,
		},
		"deno-sc3": {
			Name:        "deno-sc3",
			Description: "denosumab only, osteoblasts inhibit the tumour",
			Params:      withBase(scenario3),
			Channels:    []Channel{Denosumab},
			Max:         []float64{0.6},
			Relax:       0.95,
			Weights:     [][]float64{{1e4}},
			X0:          initialTumour(),
			T:           250,
			N:           2500,
		},
		"mixed-sc3": {
			Name:        "mixed-sc3",
			Description: "denosumab and radiotherapy combined",
			Params:      withBase(scenario3),
			Channels:    []Channel{Denosumab, Radiotherapy},
			Max:         []float64{0.6, 0.05},
			Relax:       0.9,
			Weights:     [][]float64{{1e6, 1e10}, {1e7, 1e11}},
			X0:          initialTumour(),
			T:           250,
			N:           2500,
		},
	}
}

// ScenarioNames returns the built-in scenario names in sorted order.
func ScenarioNames() []string {
	all := Scenarios()
	names := make([]string, 0, len(all))
	for n := range all {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func LookupScenario(name string) (Scenario, error) {
	s, ok := Scenarios()[name]
	if !ok {
		return Scenario{}, fmt.Errorf("unknown scenario %q (available: %v)", name, ScenarioNames())
	}
	return s, nil
}

func (s Scenario) Model() (*Metastasis, error) {
	return NewMetastasis(s.Params, s.Channels...)
}

func (s Scenario) Grid() (optcontrol.Grid, error) {
	return optcontrol.NewGrid(s.T, s.N)
}

// Problem assembles the optimal control problem for one weight vector.
func (s Scenario) Problem(weights []float64) (*optcontrol.Problem, error) {
	m, err := s.Model()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	grid, err := s.Grid()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	cand, err := m.Candidate(weights)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	upd, err := optcontrol.NewRelaxedUpdate(cand, s.Max, s.Relax)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	p, err := optcontrol.NewProblem(m, m, upd, grid, s.X0)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return p, nil
}
