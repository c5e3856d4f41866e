// Package dynamo provides core primitives for the remodeling models.
//
// The package defines the fundamental interfaces and types shared by the
// plain simulator and the optimal-control solver:
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator]: numerical integrator interface
//   - [Controller]: control source for plain simulation runs
//   - [SimulationError]: error carrying the step, time and state of a failure
//
// # Example
//
//	dyn := bone.NewRemodeling()
//	integ := integrators.NewRK4()
//	s := sim.New(dyn, integ, control.NewNone(dyn.ControlDim()))
//	result, _ := s.Run(ctx, x0, cfg)
//
// # Thread Safety
//
// Systems are expected to be pure: Derive must not mutate shared state so
// that integrators can evaluate it at perturbed stage points and independent
// runs can share one model value.
package dynamo
