package integrators

import (
	"testing"

	"github.com/san-kum/remodel/internal/dynamo"
)

func BenchmarkEuler(b *testing.B) {
	integrator := NewEuler()
	dyn := &logistic{r: 0.5, k: 10}
	x := dynamo.State{1.0}
	u := dynamo.Control{0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(dyn, x, u, 0, 0.01)
	}
}

func BenchmarkRK4(b *testing.B) {
	integrator := NewRK4()
	dyn := &logistic{r: 0.5, k: 10}
	x := dynamo.State{1.0}
	u := dynamo.Control{0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(dyn, x, u, 0, 0.01)
	}
}

func BenchmarkRK45(b *testing.B) {
	integrator := NewRK45()
	dyn := &logistic{r: 0.5, k: 10}
	x := dynamo.State{1.0}
	u := dynamo.Control{0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(dyn, x, u, 0, 0.01)
	}
}
