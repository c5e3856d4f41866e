package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/remodel/internal/sweep"
)

// Summary renders one line per sweep outcome and marks the best converged one.
func Summary(outcomes []sweep.Outcome) string {
	best := sweep.Best(outcomes)

	var s strings.Builder
	fmt.Fprintf(&s, "%-28s %-15s %6s %12s %12s %12s\n", "RUN", "STATUS", "ITER", "J", "x3(T)", "x3(T) none")
	for i, o := range outcomes {
		status, iters := "failed", 0
		if o.Solution != nil {
			status, iters = o.Solution.Status.String(), o.Solution.Iterations
		}
		label := o.Job.String()
		if i == best {
			label = "* " + label
		}
		line := fmt.Sprintf("%-28s %-15s %6d %12.4e %12.4e %12.4e", label, status, iters, o.Objective, o.FinalTumour, o.Baseline)
		if o.Solution != nil {
			line = StatusStyle(o.Solution.Status).Render(line)
		} else {
			line = StatusFail.Render(line)
		}
		s.WriteString(line + "\n")
	}
	return s.String()
}

// Chart plots a series with asciigraph. Non-finite values are dropped and long
// series are downsampled to width points.
func Chart(values []float64, width, height int, caption string) string {
	data := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			data = append(data, v)
		}
	}
	if len(data) == 0 {
		return Subtle.Render("(no data)")
	}
	if width > 0 && len(data) > width {
		step := float64(len(data)) / float64(width)
		sampled := make([]float64, width)
		for i := range sampled {
			sampled[i] = data[int(float64(i)*step)]
		}
		data = sampled
	}
	return asciigraph.Plot(data, asciigraph.Height(height), asciigraph.Width(width), asciigraph.Caption(caption))
}
