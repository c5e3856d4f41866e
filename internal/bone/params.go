package bone

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/remodel/internal/dynamo"
)

// Params are the coefficients of the controlled metastasis model. DoseD and
// DoseR are constant background doses applied on channels that are not
// optimised.
type Params struct {
	A1, A2 float64
	B1, B2 float64
	G1, G2 float64
	K      float64
	U1, U2 float64

	A3, B3         float64
	C1, C2, C3, C4 float64

	DoseD, DoseR float64
}

// BaseParams returns the remodeling coefficients shared by every scenario,
// with no tumour coupling.
func BaseParams() Params {
	return Params{
		A1: 0.5, A2: 0.05,
		B1: 0.2, B2: 0.02,
		G1: -0.3, G2: 0.7,
		K:  1e4,
		U1: 1, U2: 1,
	}
}

func (p *Params) fields() map[string]*float64 {
	return map[string]*float64{
		"a1": &p.A1, "a2": &p.A2,
		"b1": &p.B1, "b2": &p.B2,
		"g1": &p.G1, "g2": &p.G2,
		"K":  &p.K,
		"u1": &p.U1, "u2": &p.U2,
		"a3": &p.A3, "b3": &p.B3,
		"c1": &p.C1, "c2": &p.C2, "c3": &p.C3, "c4": &p.C4,
		"doseD": &p.DoseD, "doseR": &p.DoseR,
	}
}

func (p Params) Map() map[string]float64 {
	return readFields(p.fields())
}

// With returns a copy of p with one coefficient replaced.
func (p Params) With(name string, v float64) (Params, error) {
	if err := writeField(p.fields(), name, v); err != nil {
		return p, err
	}
	return p, nil
}

func (p Params) Validate() error {
	if p.K <= 0 {
		return fmt.Errorf("%w: carrying capacity K must be positive, got %g", dynamo.ErrParameterBounds, p.K)
	}
	if p.DoseD < 0 || p.DoseD > 1 {
		return fmt.Errorf("%w: denosumab dose must lie in [0,1], got %g", dynamo.ErrParameterBounds, p.DoseD)
	}
	if p.DoseR < 0 {
		return fmt.Errorf("%w: radiotherapy dose must be non-negative, got %g", dynamo.ErrParameterBounds, p.DoseR)
	}
	for name, v := range p.Map() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is %g", dynamo.ErrParameterBounds, name, v)
		}
	}
	return nil
}

func readFields(f map[string]*float64) map[string]float64 {
	out := make(map[string]float64, len(f))
	for k, v := range f {
		out[k] = *v
	}
	return out
}

func writeField(f map[string]*float64, name string, v float64) error {
	ptr, ok := f[name]
	if !ok {
		return fmt.Errorf("%w: %q (known: %v)", dynamo.ErrUnknownParameter, name, sortedKeys(f))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s = %g", dynamo.ErrParameterBounds, name, v)
	}
	*ptr = v
	return nil
}

func sortedKeys(f map[string]*float64) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
