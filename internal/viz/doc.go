// Package viz renders remodel output in the terminal.
//
//   - [ProgressModel]: Bubble Tea view of a running weight sweep, one progress
//     bar per solve and the error history of the selected one
//   - [LiveModel]: step a model interactively and tune its coefficients
//   - [Summary] and [Chart]: static tables and asciigraph plots for the CLI
//
// # Key Bindings
//
// Progress view:
//
//	Tab/J/K - Select solve
//	Q       - Cancel and quit
//
// Live view:
//
//	Space - Pause/Resume
//	R     - Reset to initial state and coefficients
//	Tab   - Cycle coefficients
//	Up/K  - Increase coefficient (+5%)
//	Down/J - Decrease coefficient (-5%)
//	S     - Cycle plotted population
//	[]    - Scrub through history
package viz
