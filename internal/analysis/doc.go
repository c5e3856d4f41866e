// Package analysis provides long-run analysis of the remodeling models.
//
//   - [SteadyStateSweep]: brute-force parameter sweep of long-run behaviour,
//     the black-box counterpart of a continuation diagram
//   - [GeneratePhasePortrait]: 2D phase space trajectories, e.g. osteoclasts
//     against osteoblasts
//   - [Crossings]: upward threshold crossings, used to measure the period of
//     remodeling cycles
//
// # Treatment thresholds
//
// Sweeping a background dose shows where the tumour is eliminated:
//
//	pts, _ := analysis.SteadyStateSweep(ctx, model, integrators.NewRK4(), analysis.SweepSpec{
//	    Param: "doseR", Min: 0, Max: 0.05, Steps: 50, Index: 2,
//	    X0: model.DefaultState(), Dt: 0.1, Transient: 2000, Record: 500,
//	})
package analysis
