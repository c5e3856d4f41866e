package bone

import "math"

// Floor is the smallest base used for non-integer powers.
const Floor = 1e-12

func pow(base, exp float64) float64 {
	if base < Floor {
		base = Floor
	}
	return math.Pow(base, exp)
}

func positivePart(v float64) float64 {
	return math.Max(0, v)
}
