package dynamo

import (
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

type Control []float64

func (u Control) Clone() Control {
	c := make(Control, len(u))
	copy(c, u)
	return c
}

// System is a controlled ODE right-hand side. Derive must be pure.
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

type AdaptiveIntegrator interface {
	Integrator
	// StepAdaptive returns the accepted state, the step taken and the
	// proposed next step.
	StepAdaptive(dyn System, x State, u Control, t, dt, tol float64) (State, float64, float64, error)
}

// HeldIntegrator steps with the control sampled at the start, the midpoint
// and the end of the interval instead of holding one value.
type HeldIntegrator interface {
	Integrator
	StepHeld(dyn System, x State, u0, uMid, u1 Control, t, dt float64) State
}

type Controller interface {
	Compute(x State, t float64) Control
}

// OpenLoop controllers do not read the state, so they can be sampled at any
// time inside a step.
type OpenLoop interface {
	Controller
	At(t float64) Control
}

type Metric interface {
	Name() string
	Observe(x State, u Control, t float64)
	Value() float64
	Reset()
}

// Configurable systems expose their coefficients by name. SetParam returns
// ErrUnknownParameter for names outside GetParams.
type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

type Config struct {
	Dt            float64
	Duration      float64
	Tolerance     float64
	MaxDt         float64
	MinDt         float64
	Adaptive      bool
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{
		Dt:            0.1,
		Duration:      250.0,
		Tolerance:     1e-6,
		MaxDt:         1.0,
		MinDt:         1e-8,
		Adaptive:      false,
		ValidateState: true,
	}
}

type Result struct {
	States     []State
	Controls   []Control
	Times      []float64
	Metrics    map[string]float64
	StepsTaken int
	Errors     []error
}

// Final returns the last recorded state, or nil for an empty result.
func (r *Result) Final() State {
	if len(r.States) == 0 {
		return nil
	}
	return r.States[len(r.States)-1]
}
