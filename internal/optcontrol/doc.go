// Package optcontrol solves open-loop optimal control problems with the
// Forward-Backward Sweep Method.
//
// A [Problem] bundles three pluggable pieces with the time grid and the
// initial condition:
//
//   - the state model, a [dynamo.System] integrated forward by [Forward]
//   - the [AdjointModel], integrated backward from the terminal costate by [Backward]
//   - the [Updater], which maps state and costate trajectories to a new control
//
// [Solver.Solve] alternates the three until the averaged change of control,
// state and costate drops below the tolerance or the iteration cap is hit.
// Both outcomes return the last iterate; [Solution.Status] tells them apart.
//
//	grid, _ := optcontrol.NewGrid(250, 2500)
//	p, err := optcontrol.NewProblem(model, model, update, grid, x0)
//	sol, err := optcontrol.NewSolver(optcontrol.DefaultOptions()).Solve(ctx, p)
//	if !sol.Converged() { ... }
//
// Trajectories are stored as dim x N gonum matrices; column i holds the
// vector at grid point i.
package optcontrol
