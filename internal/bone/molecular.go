package bone

import "github.com/san-kum/remodel/internal/dynamo"

// Molecular is the RANKL/TGF-beta/Wnt remodeling model with osteoclasts xC,
// osteoblasts xB, TGF-beta xT and Wnt xW.
type Molecular struct {
	AC, BC, BCT float64
	ABW, BB     float64
	AT, BT      float64
	AW, BW      float64
}

func NewMolecular() *Molecular {
	return &Molecular{AC: 3, BC: 0.3, BCT: 0.13, ABW: 0.26, BB: 1, AT: 100, BT: 499.1, AW: 1, BW: 1}
}

func (m *Molecular) StateDim() int   { return 4 }
func (m *Molecular) ControlDim() int { return 0 }

func (m *Molecular) DefaultState() dynamo.State { return dynamo.State{5, 1, 0, 0} }

func (m *Molecular) Derive(s dynamo.State, _ dynamo.Control, _ float64) dynamo.State {
	xC, xB, xT, xW := s[0], s[1], s[2], s[3]
	return dynamo.State{
		m.AC*pow(xB, -1) - m.BC*xC - m.BCT*xC*xT,
		m.ABW*xB*xW - m.BB*xB,
		m.AT*xC - m.BT*xT,
		m.AW*xT*xC - m.BW*xW,
	}
}

func (m *Molecular) fields() map[string]*float64 {
	return map[string]*float64{
		"aC": &m.AC, "bC": &m.BC, "bCT": &m.BCT,
		"aBW": &m.ABW, "bB": &m.BB,
		"aT": &m.AT, "bT": &m.BT,
		"aW": &m.AW, "bW": &m.BW,
	}
}

func (m *Molecular) GetParams() map[string]float64          { return readFields(m.fields()) }
func (m *Molecular) SetParam(name string, v float64) error { return writeField(m.fields(), name, v) }

// MolecularMetastasis adds a tumour population xM that inhibits osteoclast
// formation and Wnt production and recruits osteoclasts directly.
type MolecularMetastasis struct {
	Molecular
	KC, KB, ACM float64
	AM, KM, AMT float64
}

func NewMolecularMetastasis() *MolecularMetastasis {
	return &MolecularMetastasis{
		Molecular: *NewMolecular(),
		KC:        0.5, KB: 0.2, ACM: 1.5,
		AM: 1e-3, KM: 1, AMT: 0.1,
	}
}

func (m *MolecularMetastasis) StateDim() int { return 5 }

func (m *MolecularMetastasis) DefaultState() dynamo.State { return dynamo.State{5, 1, 0, 0, 1e-2} }

func (m *MolecularMetastasis) Derive(s dynamo.State, _ dynamo.Control, _ float64) dynamo.State {
	xC, xB, xT, xW, xM := s[0], s[1], s[2], s[3], s[4]
	occ := xM / m.KM
	return dynamo.State{
		(1-m.KC*occ)*m.AC*pow(xB, -1) - m.BC*xC - m.BCT*xC*xT + m.ACM*xM,
		m.ABW*xB*xW - m.BB*xB,
		m.AT*xC - m.BT*xT,
		(1-m.KB*occ)*m.AW*xT*xC - m.BW*xW,
		xM * (m.AM + m.AMT*xT) * (1 - occ),
	}
}

func (m *MolecularMetastasis) fields() map[string]*float64 {
	f := m.Molecular.fields()
	for k, v := range map[string]*float64{
		"KC": &m.KC, "KB": &m.KB, "aCM": &m.ACM,
		"aM": &m.AM, "KM": &m.KM, "aMT": &m.AMT,
	} {
		f[k] = v
	}
	return f
}

func (m *MolecularMetastasis) GetParams() map[string]float64 { return readFields(m.fields()) }
func (m *MolecularMetastasis) SetParam(name string, v float64) error {
	return writeField(m.fields(), name, v)
}
