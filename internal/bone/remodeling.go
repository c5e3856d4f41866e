package bone

import (
	"math"

	"github.com/san-kum/remodel/internal/dynamo"
)

// Remodeling is the basic multicellular unit: osteoclasts x1, osteoblasts x2
// and bone mass z, which is resorbed or formed by the cells in excess of
// their steady state.
type Remodeling struct {
	A1, A2, B1, B2, G1, G2 float64
	K1, K2                 float64
}

func NewRemodeling() *Remodeling {
	return &Remodeling{A1: 0.3, A2: 0.1, B1: 0.2, B2: 0.02, G1: -0.3, G2: 0.5, K1: 0.07, K2: 0.0022}
}

func (r *Remodeling) StateDim() int   { return 3 }
func (r *Remodeling) ControlDim() int { return 0 }

func (r *Remodeling) DefaultState() dynamo.State { return dynamo.State{10, 5, 95} }

// Equilibrium is the non-trivial steady state of the cell populations.
func (r *Remodeling) Equilibrium() (x1, x2 float64) {
	return pow(r.B2/r.A2, 1/r.G2), pow(r.B1/r.A1, 1/r.G1)
}

func (r *Remodeling) Derive(s dynamo.State, _ dynamo.Control, _ float64) dynamo.State {
	x1, x2 := s[0], s[1]
	x1eq, x2eq := r.Equilibrium()
	return dynamo.State{
		r.A1*x1*pow(x2, r.G1) - r.B1*x1,
		r.A2*x2*pow(x1, r.G2) - r.B2*x2,
		-r.K1*math.Sqrt(positivePart(x1-x1eq)) + r.K2*math.Sqrt(positivePart(x2-x2eq)),
	}
}

func (r *Remodeling) fields() map[string]*float64 {
	return map[string]*float64{
		"a1": &r.A1, "a2": &r.A2, "b1": &r.B1, "b2": &r.B2,
		"g1": &r.G1, "g2": &r.G2, "k1": &r.K1, "k2": &r.K2,
	}
}

func (r *Remodeling) GetParams() map[string]float64          { return readFields(r.fields()) }
func (r *Remodeling) SetParam(name string, v float64) error { return writeField(r.fields(), name, v) }

// MetastasisBase couples a logistic tumour x3 to the remodeling unit through
// the power-law terms s3*x1^g3 and s4*x2^g4.
type MetastasisBase struct {
	Remodeling
	A3, B3, K      float64
	S1, S2, S3, S4 float64
	G3, G4         float64
}

// NewMetastasisBase returns the generalized model of the tumour scenario
// with exponents g3 = g2 and g4 = 0.3.
func NewMetastasisBase() *MetastasisBase {
	r := NewRemodeling()
	r.K1, r.K2 = 0.02, 0.003
	return &MetastasisBase{
		Remodeling: *r,
		A3:         0.055, B3: 0.05, K: 300,
		S1: 0.001, S2: -0.005, S3: 0.001, S4: 0.001,
		G3: r.G2, G4: 0.3,
	}
}

func (m *MetastasisBase) StateDim() int   { return 4 }
func (m *MetastasisBase) ControlDim() int { return 0 }

func (m *MetastasisBase) DefaultState() dynamo.State { return dynamo.State{5, 5, 1, 95} }

func (m *MetastasisBase) Derive(s dynamo.State, _ dynamo.Control, _ float64) dynamo.State {
	x1, x2, x3 := s[0], s[1], s[2]
	x1eq, x2eq := m.Equilibrium()
	return dynamo.State{
		m.A1*x1*pow(x2, m.G1) - m.B1*x1 + m.S1*x1*x3,
		m.A2*x2*pow(x1, m.G2) - m.B2*x2 + m.S2*x2*x3,
		m.A3*x3*(1-x3/m.K) - m.B3*x3 + m.S3*pow(x1, m.G3)*x3 + m.S4*pow(x2, m.G4)*x3,
		-m.K1*math.Sqrt(positivePart(x1-x1eq)) + m.K2*math.Sqrt(positivePart(x2-x2eq)),
	}
}

func (m *MetastasisBase) fields() map[string]*float64 {
	f := m.Remodeling.fields()
	for k, v := range map[string]*float64{
		"a3": &m.A3, "b3": &m.B3, "K": &m.K,
		"s1": &m.S1, "s2": &m.S2, "s3": &m.S3, "s4": &m.S4,
		"g3": &m.G3, "g4": &m.G4,
	} {
		f[k] = v
	}
	return f
}

func (m *MetastasisBase) GetParams() map[string]float64          { return readFields(m.fields()) }
func (m *MetastasisBase) SetParam(name string, v float64) error { return writeField(m.fields(), name, v) }
