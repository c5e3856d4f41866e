package analysis

import (
	"math"
	"strings"

	"github.com/san-kum/remodel/internal/dynamo"
)

// Point is one sample of a phase portrait.
type Point struct{ X, Y float64 }

// PhasePortrait2D holds data for a 2D phase space plot
type PhasePortrait2D struct {
	XIndex, YIndex int
	Points         []Point
}

// GeneratePhasePortrait runs the uncontrolled system and records the
// trajectory projected on two components. It stops early on a non-finite
// state.
func GeneratePhasePortrait(
	dyn dynamo.System,
	integ dynamo.Integrator,
	x0 dynamo.State,
	xIdx, yIdx int,
	dt, duration float64,
) *PhasePortrait2D {
	if xIdx >= len(x0) || yIdx >= len(x0) || dt <= 0 {
		return nil
	}

	portrait := &PhasePortrait2D{
		XIndex: xIdx,
		YIndex: yIdx,
		Points: make([]Point, 0, int(duration/dt)+1),
	}

	x := x0.Clone()
	ctrl := make(dynamo.Control, dyn.ControlDim())
	t := 0.0
	portrait.Points = append(portrait.Points, Point{X: x[xIdx], Y: x[yIdx]})

	for t < duration {
		x = integ.Step(dyn, x, ctrl, t, dt)
		t += dt
		if !x.IsValid() {
			break
		}

		portrait.Points = append(portrait.Points, Point{X: x[xIdx], Y: x[yIdx]})
	}

	return portrait
}

// FromTrajectory builds a portrait from recorded states.
func FromTrajectory(states []dynamo.State, xIdx, yIdx int) *PhasePortrait2D {
	portrait := &PhasePortrait2D{XIndex: xIdx, YIndex: yIdx, Points: make([]Point, 0, len(states))}
	for _, s := range states {
		if xIdx < len(s) && yIdx < len(s) {
			portrait.Points = append(portrait.Points, Point{X: s[xIdx], Y: s[yIdx]})
		}
	}
	return portrait
}

// PhasePortraitToASCII converts phase portrait to ASCII art
func PhasePortraitToASCII(portrait *PhasePortrait2D, width, height int) string {
	if portrait == nil || len(portrait.Points) == 0 || width <= 0 || height <= 0 {
		return ""
	}

	// Find bounds
	minX, maxX := portrait.Points[0].X, portrait.Points[0].X
	minY, maxY := portrait.Points[0].Y, portrait.Points[0].Y

	for _, p := range portrait.Points {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	// Add padding
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	// Create canvas
	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}

	// Plot points
	for _, p := range portrait.Points {
		col := int((p.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))

		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}

	// Draw axes if they cross the visible area
	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			if col >= 0 && col < width && canvas[row][col] == ' ' {
				canvas[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if row >= 0 && row < height && canvas[row][col] == ' ' {
				canvas[row][col] = '─'
			}
		}
	}

	// Convert to string
	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}

// Crossings returns the interpolated times at which component idx of the
// recorded states rises through threshold.
func Crossings(times []float64, states []dynamo.State, idx int, threshold float64) []float64 {
	var out []float64
	for i := 1; i < len(states) && i < len(times); i++ {
		prev, curr := states[i-1][idx], states[i][idx]
		if prev < threshold && curr >= threshold {
			frac := (threshold - prev) / (curr - prev)
			if math.IsNaN(frac) || math.IsInf(frac, 0) {
				frac = 0.5
			}
			out = append(out, times[i-1]+frac*(times[i]-times[i-1]))
		}
	}
	return out
}

// Period is the mean spacing of successive crossings, or 0 with fewer than
// two crossings.
func Period(crossings []float64) float64 {
	if len(crossings) < 2 {
		return 0
	}
	return (crossings[len(crossings)-1] - crossings[0]) / float64(len(crossings)-1)
}
