package optcontrol

import (
	"math"

	"github.com/san-kum/remodel/internal/dynamo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Trajectory is a dim x N array of grid values; column i is the vector at
// grid point i.
type Trajectory struct {
	m *mat.Dense
}

// NewTrajectory returns a zero trajectory. dim and n must be positive.
func NewTrajectory(dim, n int) *Trajectory {
	return &Trajectory{m: mat.NewDense(dim, n, nil)}
}

// TrajectoryFromRows builds a trajectory from one slice per component.
func TrajectoryFromRows(rows [][]float64) *Trajectory {
	tr := NewTrajectory(len(rows), len(rows[0]))
	for k, r := range rows {
		tr.m.SetRow(k, r)
	}
	return tr
}

func (tr *Trajectory) Dim() int {
	r, _ := tr.m.Dims()
	return r
}

func (tr *Trajectory) Len() int {
	_, c := tr.m.Dims()
	return c
}

func (tr *Trajectory) At(k, i int) float64 { return tr.m.At(k, i) }

func (tr *Trajectory) Set(k, i int, v float64) { tr.m.Set(k, i, v) }

// Col copies column i into dst, allocating when dst is nil.
func (tr *Trajectory) Col(i int, dst []float64) []float64 {
	return mat.Col(dst, i, tr.m)
}

func (tr *Trajectory) SetCol(i int, v []float64) { tr.m.SetCol(i, v) }

// Row returns a copy of component k over the whole grid.
func (tr *Trajectory) Row(k int) []float64 {
	return mat.Row(nil, k, tr.m)
}

// Last returns the vector at the final grid point.
func (tr *Trajectory) Last() dynamo.State {
	return tr.Col(tr.Len()-1, nil)
}

func (tr *Trajectory) Clone() *Trajectory {
	return &Trajectory{m: mat.DenseCopyOf(tr.m)}
}

// CopyFrom overwrites tr with other, which must have the same shape.
func (tr *Trajectory) CopyFrom(other *Trajectory) {
	tr.m.Copy(other.m)
}

// Distance is the Frobenius norm of tr - other.
func (tr *Trajectory) Distance(other *Trajectory) float64 {
	return floats.Distance(tr.data(), other.data(), 2)
}

func (tr *Trajectory) IsFinite() bool {
	for _, v := range tr.data() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Matrix exposes the underlying storage read-only for gonum consumers.
func (tr *Trajectory) Matrix() mat.Matrix { return tr.m }

func (tr *Trajectory) sameShape(other *Trajectory) bool {
	return tr.Dim() == other.Dim() && tr.Len() == other.Len()
}

func (tr *Trajectory) data() []float64 {
	return tr.m.RawMatrix().Data
}
