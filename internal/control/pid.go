package control

import (
	"fmt"

	"github.com/san-kum/remodel/internal/dynamo"
)

// PID doses one treatment channel in proportion to how far a population sits
// above its target. The output is saturated to [0, Max] and the integral is
// frozen while saturated.
type PID struct {
	Kp       float64
	Ki       float64
	Kd       float64
	Target   float64
	Max      float64
	Index    int
	Channels int
	Channel  int

	integral float64
	prevErr  float64
	prevT    float64
	first    bool
}

// NewPID tracks state component index with the given gains; the dose goes on
// channel 0 of a single channel control.
func NewPID(kp, ki, kd, target, max float64, index int) *PID {
	return &PID{
		Kp:       kp,
		Ki:       ki,
		Kd:       kd,
		Target:   target,
		Max:      max,
		Index:    index,
		Channels: 1,
		first:    true,
	}
}

func (p *PID) saturate(u float64) (float64, bool) {
	switch {
	case u < 0:
		return 0, true
	case u > p.Max:
		return p.Max, true
	}
	return u, false
}

func (p *PID) output(u float64) dynamo.Control {
	out := make(dynamo.Control, p.Channels)
	if p.Channel < len(out) {
		out[p.Channel] = u
	}
	return out
}

func (p *PID) Compute(x dynamo.State, t float64) dynamo.Control {
	if p.Index >= len(x) {
		return p.output(0)
	}

	err := x[p.Index] - p.Target

	if p.first {
		p.prevErr = err
		p.prevT = t
		p.first = false
		u, _ := p.saturate(p.Kp*err + p.Ki*p.integral)
		return p.output(u)
	}

	dt := t - p.prevT
	if dt <= 0 {
		u, _ := p.saturate(p.Kp*err + p.Ki*p.integral)
		return p.output(u)
	}

	derivative := (err - p.prevErr) / dt
	u, saturated := p.saturate(p.Kp*err + p.Ki*(p.integral+err*dt) + p.Kd*derivative)
	if !saturated {
		p.integral += err * dt
	}

	p.prevErr = err
	p.prevT = t
	return p.output(u)
}

// Reset clears integral and derivative state
func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.first = true
}

func (p *PID) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp":     p.Kp,
		"Ki":     p.Ki,
		"Kd":     p.Kd,
		"Target": p.Target,
		"Max":    p.Max,
	}
}

func (p *PID) SetParam(name string, value float64) error {
	switch name {
	case "Kp":
		p.Kp = value
	case "Ki":
		p.Ki = value
	case "Kd":
		p.Kd = value
	case "Target":
		p.Target = value
	case "Max":
		if value < 0 {
			return fmt.Errorf("%w: Max = %g", dynamo.ErrParameterBounds, value)
		}
		p.Max = value
	default:
		return fmt.Errorf("%w: %q", dynamo.ErrUnknownParameter, name)
	}
	return nil
}
