package bone

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/optcontrol"
)

// Channel is a treatment that can be optimised.
type Channel int

const (
	// Denosumab scales osteoclast formation by (1-uD).
	Denosumab Channel = iota
	// Radiotherapy adds uR to the death rate of every population, weighted
	// by u1 and u2 for the bone cells.
	Radiotherapy
)

func (c Channel) String() string {
	switch c {
	case Denosumab:
		return "denosumab"
	case Radiotherapy:
		return "radiotherapy"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// ParseChannel accepts the channel name or its one letter abbreviation.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(s) {
	case "denosumab", "d", "deno":
		return Denosumab, nil
	case "radiotherapy", "r", "radio":
		return Radiotherapy, nil
	}
	return 0, fmt.Errorf("unknown treatment channel %q", s)
}

// Metastasis is the three population model of osteoclasts (x1), osteoblasts
// (x2) and tumour cells (x3). Channels lists the optimised treatments in
// control order; treatments not listed run at their background dose.
type Metastasis struct {
	Params   Params
	Channels []Channel
}

func NewMetastasis(p Params, channels ...Channel) (*Metastasis, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	seen := map[Channel]bool{}
	for _, c := range channels {
		if c != Denosumab && c != Radiotherapy {
			return nil, fmt.Errorf("%w: %v", dynamo.ErrParameterBounds, c)
		}
		if seen[c] {
			return nil, fmt.Errorf("%w: channel %v listed twice", dynamo.ErrParameterBounds, c)
		}
		seen[c] = true
	}
	return &Metastasis{Params: p, Channels: append([]Channel(nil), channels...)}, nil
}

func (m *Metastasis) StateDim() int   { return 3 }
func (m *Metastasis) ControlDim() int { return len(m.Channels) }

func (m *Metastasis) DefaultState() dynamo.State { return dynamo.State{4.42e-6, 4.46, 1000} }

// doses resolves the denosumab and radiotherapy levels for a control vector.
func (m *Metastasis) doses(u dynamo.Control) (uD, uR float64) {
	uD, uR = m.Params.DoseD, m.Params.DoseR
	for k, c := range m.Channels {
		if k >= len(u) {
			break
		}
		switch c {
		case Denosumab:
			uD = u[k]
		case Radiotherapy:
			uR = u[k]
		}
	}
	return uD, uR
}

func (m *Metastasis) Derive(x dynamo.State, u dynamo.Control, _ float64) dynamo.State {
	p := &m.Params
	uD, uR := m.doses(u)
	x1, x2, x3 := x[0], x[1], x[2]

	x1g2 := pow(x1, p.G2)
	x2g1 := pow(x2, p.G1)

	return dynamo.State{
		p.A1*x1*x2g1*(1-uD) - (p.B1+p.U1*uR)*x1 + p.C1*x1*x3,
		p.A2*x1g2*x2 - (p.B2+p.U2*uR)*x2 + p.C2*x2*x3,
		p.A3*x3*(1-x3/p.K) - (p.B3+uR)*x3 + p.C3*x1g2*x3 + p.C4*x2g1*x3,
	}
}

// Costate is the adjoint of Derive for the running cost x3^2 + sum w_k u_k^2.
func (m *Metastasis) Costate(x dynamo.State, u dynamo.Control, l dynamo.State, _ float64) dynamo.State {
	p := &m.Params
	uD, uR := m.doses(u)
	x1, x2, x3 := x[0], x[1], x[2]
	l1, l2, l3 := l[0], l[1], l[2]

	x1g2 := pow(x1, p.G2)
	x2g1 := pow(x2, p.G1)
	x1g2m := pow(x1, p.G2-1)
	x2g1m := pow(x2, p.G1-1)

	return dynamo.State{
		-p.A2*p.G2*l2*x1g2m*x2 - p.C3*p.G2*l3*x1g2m*x3 -
			l1*(p.A1*x2g1*(1-uD)-p.B1+p.C1*x3-p.U1*uR),
		-p.A1*p.G1*l1*x1*x2g1m*(1-uD) - p.C4*p.G1*l3*x2g1m*x3 -
			l2*(p.A2*x1g2-p.B2+p.C2*x3-p.U2*uR),
		-p.C1*l1*x1 - p.C2*l2*x2 -
			l3*(p.A3*(1-x3/p.K)-p.A3*x3/p.K-p.B3+p.C3*x1g2+p.C4*x2g1-uR) - 2*x3,
	}
}

// Candidate returns the unconstrained Hamiltonian minimiser for the given
// per-channel weights.
func (m *Metastasis) Candidate(weights []float64) (optcontrol.CandidateFunc, error) {
	if len(weights) != len(m.Channels) {
		return nil, dynamo.DimensionError("weights", len(weights), len(m.Channels))
	}
	for k, w := range weights {
		if !(w > 0) {
			return nil, fmt.Errorf("%w: weight of %v must be positive, got %g", dynamo.ErrParameterBounds, m.Channels[k], w)
		}
	}
	p := m.Params
	channels := append([]Channel(nil), m.Channels...)
	w := append([]float64(nil), weights...)

	return func(x, l dynamo.State) dynamo.Control {
		out := make(dynamo.Control, len(channels))
		for k, c := range channels {
			switch c {
			case Denosumab:
				out[k] = p.A1 * l[0] * x[0] * pow(x[1], p.G1) / (2 * w[k])
			case Radiotherapy:
				out[k] = (p.U1*l[0]*x[0] + p.U2*l[1]*x[1] + l[2]*x[2]) / (2 * w[k])
			}
		}
		return out
	}, nil
}

// RunningCost is the integrand of the objective at one grid point.
func (m *Metastasis) RunningCost(x dynamo.State, u dynamo.Control, weights []float64) float64 {
	c := x[2] * x[2]
	for k := range u {
		if k < len(weights) {
			c += weights[k] * u[k] * u[k]
		}
	}
	return c
}

func (m *Metastasis) GetParams() map[string]float64 { return m.Params.Map() }

func (m *Metastasis) SetParam(name string, v float64) error {
	return writeField(m.Params.fields(), name, v)
}

// CancerFreeEquilibrium is the tumour-free steady state of the remodeling
// pair under constant doses uD < 1 and uR.
func CancerFreeEquilibrium(p Params, uD, uR float64) dynamo.State {
	return dynamo.State{
		pow((p.B2+p.U2*uR)/p.A2, 1/p.G2),
		pow((p.B1+p.U1*uR)/(p.A1*(1-uD)), 1/p.G1),
		0,
	}
}

// CoexistenceEquilibrium is the steady state with a positive tumour burden
// under constant doses. ok is false when the state does not exist or lies
// outside the positive orthant.
func CoexistenceEquilibrium(p Params, uD, uR float64) (x dynamo.State, ok bool) {
	a1 := p.A1 * (1 - uD)
	b1, b2, b3 := p.B1+p.U1*uR, p.B2+p.U2*uR, p.B3+uR
	r := p.A3 / p.K

	d := a1*p.A2*r + a1*p.C2*p.C3 + p.A2*p.C1*p.C4
	if d == 0 {
		return nil, false
	}
	v1 := (a1*(r*b2+b3*p.C2-p.A3*p.C2) - p.C4*(b1*p.C2-b2*p.C1)) / d
	v2 := (p.A2*(r*b1+b3*p.C1-p.A3*p.C1) + p.C3*(b1*p.C2-b2*p.C1)) / d
	x3 := (a1*p.A2*p.A3 - a1*p.A2*b3 + a1*p.C3*b2 + p.A2*p.C4*b1) / d
	if v1 <= 0 || v2 <= 0 || x3 <= 0 {
		return nil, false
	}
	return dynamo.State{math.Pow(v1, 1/p.G2), math.Pow(v2, 1/p.G1), x3}, true
}
