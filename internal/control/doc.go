// Package control provides dose schedules for the simulator.
//
// Controllers implement the [dynamo.Controller] interface:
//
//   - [None]: no treatment (zero control)
//   - [Constant]: fixed doses on every channel
//   - [Schedule]: replays an optimal control trajectory on its grid
//   - [PID]: feedback dosing that tracks a target population
//
// # Usage
//
//	sol, _ := solver.Solve(ctx, problem)
//	sched := control.NewSchedule(sol.Grid.Times(), sol.Control)
//	s := sim.New(model, integrators.NewRK4(), sched)
//
// [PID] implements [dynamo.Configurable] so sweeps can vary its gains.
package control
