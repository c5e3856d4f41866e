package control

import (
	"sort"

	"github.com/san-kum/remodel/internal/dynamo"
)

// Rows is the read side of a control trajectory: one row per channel.
type Rows interface {
	Dim() int
	Row(k int) []float64
}

// Schedule replays a control known on a time grid, interpolating linearly
// between grid points and holding the end values outside the grid.
type Schedule struct {
	times []float64
	rows  [][]float64
}

func NewSchedule(times []float64, u Rows) *Schedule {
	s := &Schedule{times: append([]float64(nil), times...)}
	for k := 0; k < u.Dim(); k++ {
		s.rows = append(s.rows, u.Row(k))
	}
	return s
}

func (s *Schedule) Compute(_ dynamo.State, t float64) dynamo.Control {
	return s.At(t)
}

func (s *Schedule) At(t float64) dynamo.Control {
	out := make(dynamo.Control, len(s.rows))
	n := len(s.times)
	if n == 0 {
		return out
	}

	j := sort.SearchFloat64s(s.times, t)
	for k, row := range s.rows {
		switch {
		case j == 0:
			out[k] = row[0]
		case j >= n:
			out[k] = row[n-1]
		default:
			t0, t1 := s.times[j-1], s.times[j]
			w := (t - t0) / (t1 - t0)
			out[k] = (1-w)*row[j-1] + w*row[j]
		}
	}
	return out
}
