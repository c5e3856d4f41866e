package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/remodel/internal/dynamo"
)

type decay struct{ rate float64 }

func (d *decay) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	dx := make(dynamo.State, len(x))
	for i := range x {
		dx[i] = -(d.rate + u[0]) * x[i]
	}
	return dx
}

func (d *decay) StateDim() int   { return 1 }
func (d *decay) ControlDim() int { return 1 }

type logistic struct{ r, k float64 }

func (l *logistic) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{l.r*x[0]*(1-x[0]/l.k) - u[0]*x[0]}
}

func (l *logistic) StateDim() int   { return 1 }
func (l *logistic) ControlDim() int { return 1 }

func TestRK4Accuracy(t *testing.T) {
	dyn := &logistic{r: 0.5, k: 10}
	integ := NewRK4()

	x := dynamo.State{1.0}
	u := dynamo.Control{0}
	dt := 0.01
	steps := 1000

	for i := 0; i < steps; i++ {
		x = integ.Step(dyn, x, u, float64(i)*dt, dt)
	}

	tEnd := float64(steps) * dt
	expected := 10 / (1 + 9*math.Exp(-0.5*tEnd))

	if math.Abs(x[0]-expected) > 1e-7 {
		t.Errorf("logistic error too large: got %.10f, expected %.10f", x[0], expected)
	}
}

func TestRK4StepHeldMatchesStepForConstantControl(t *testing.T) {
	dyn := &decay{rate: 0.2}
	x0 := dynamo.State{3.0}
	u := dynamo.Control{0.05}

	a := NewRK4().Step(dyn, x0, u, 0, 0.1)
	b := NewRK4().StepHeld(dyn, x0, u, u, u, 0, 0.1)

	if a[0] != b[0] {
		t.Errorf("StepHeld with constant control = %v, Step = %v", b[0], a[0])
	}
}

func TestRK4StepHeldUsesStageControls(t *testing.T) {
	dyn := &decay{rate: 0}
	x0 := dynamo.State{1.0}
	dt := 0.1

	x := NewRK4().StepHeld(dyn, x0, dynamo.Control{0}, dynamo.Control{0.5}, dynamo.Control{1}, 0, dt)

	k1 := 0.0
	k2 := -0.5 * (1 + dt*0.5*k1)
	k3 := -0.5 * (1 + dt*0.5*k2)
	k4 := -1.0 * (1 + dt*k3)
	expected := 1 + dt/6*(k1+2*k2+2*k3+k4)

	if math.Abs(x[0]-expected) > 1e-15 {
		t.Errorf("StepHeld = %.16f, want %.16f", x[0], expected)
	}
}

func TestRK4DoesNotMutateInput(t *testing.T) {
	dyn := &decay{rate: 1}
	x0 := dynamo.State{2.0}

	_ = NewRK4().Step(dyn, x0, dynamo.Control{0}, 0, 0.5)

	if x0[0] != 2.0 {
		t.Errorf("input state mutated: %v", x0)
	}
}
