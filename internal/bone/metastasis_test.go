package bone

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/remodel/internal/dynamo"
)

func mixedModel(t *testing.T) *Metastasis {
	t.Helper()
	p := withBase(scenario1)
	p.C2, p.C4 = 2e-4, -1e-4
	m, err := NewMetastasis(p, Denosumab, Radiotherapy)
	if err != nil {
		t.Fatalf("NewMetastasis failed: %v", err)
	}
	return m
}

func hamiltonian(m *Metastasis, x dynamo.State, u dynamo.Control, l dynamo.State, w []float64) float64 {
	f := m.Derive(x, u, 0)
	h := m.RunningCost(x, u, w)
	for i := range f {
		h += l[i] * f[i]
	}
	return h
}

func closeTo(got, want, rel float64) bool {
	return math.Abs(got-want) <= rel*(1+math.Abs(want))
}

func TestMetastasisDimensions(t *testing.T) {
	m := mixedModel(t)
	if m.StateDim() != 3 {
		t.Errorf("expected state dim 3, got %d", m.StateDim())
	}
	if m.ControlDim() != 2 {
		t.Errorf("expected control dim 2, got %d", m.ControlDim())
	}

	single, _ := NewMetastasis(BaseParams(), Radiotherapy)
	if single.ControlDim() != 1 {
		t.Errorf("expected control dim 1, got %d", single.ControlDim())
	}
}

func TestCostateIsHamiltonianGradient(t *testing.T) {
	m := mixedModel(t)
	x := dynamo.State{2, 3, 50}
	u := dynamo.Control{0.3, 0.02}
	l := dynamo.State{1.5, -0.7, 0.2}
	w := []float64{10, 20}

	got := m.Costate(x, u, l, 0)
	for j := range x {
		d := 1e-6 * math.Max(1, math.Abs(x[j]))
		xp, xm := x.Clone(), x.Clone()
		xp[j] += d
		xm[j] -= d
		want := -(hamiltonian(m, xp, u, l, w) - hamiltonian(m, xm, u, l, w)) / (2 * d)
		if !closeTo(got[j], want, 1e-5) {
			t.Errorf("dl%d = %.10g, finite difference gives %.10g", j+1, got[j], want)
		}
	}
}

func TestCandidateMinimisesHamiltonian(t *testing.T) {
	m := mixedModel(t)
	x := dynamo.State{2, 3, 50}
	l := dynamo.State{1.5, -0.7, 0.2}
	w := []float64{10, 20}

	cand, err := m.Candidate(w)
	if err != nil {
		t.Fatalf("Candidate failed: %v", err)
	}
	u := cand(x, l)
	for k := range u {
		d := 1e-4
		up, um := u.Clone(), u.Clone()
		up[k] += d
		um[k] -= d
		grad := (hamiltonian(m, x, up, l, w) - hamiltonian(m, x, um, l, w)) / (2 * d)
		if math.Abs(grad) > 1e-6 {
			t.Errorf("dH/du%d = %g at the candidate", k, grad)
		}
	}
}

func TestCandidateRejectsBadWeights(t *testing.T) {
	m := mixedModel(t)
	if _, err := m.Candidate([]float64{1}); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := m.Candidate([]float64{1, 0}); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds, got %v", err)
	}
}

func TestInactiveChannelUsesBackgroundDose(t *testing.T) {
	p := withBase(scenario3)
	p.DoseD = 0.4
	radio, _ := NewMetastasis(p, Radiotherapy)
	both, _ := NewMetastasis(p, Denosumab, Radiotherapy)

	x := dynamo.State{1, 2, 300}
	a := radio.Derive(x, dynamo.Control{0.01}, 0)
	b := both.Derive(x, dynamo.Control{0.4, 0.01}, 0)
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("component %d differs: %g vs %g", i, a[i], b[i])
		}
	}
}

func TestCancerFreeEquilibrium(t *testing.T) {
	m := mixedModel(t)
	uD, uR := 0.2, 0.01
	eq := CancerFreeEquilibrium(m.Params, uD, uR)

	dx := m.Derive(eq, dynamo.Control{uD, uR}, 0)
	for i, v := range dx {
		if math.Abs(v) > 1e-12 {
			t.Errorf("dx%d = %g at the cancer-free equilibrium", i+1, v)
		}
	}
}

func TestCoexistenceEquilibrium(t *testing.T) {
	m, _ := NewMetastasis(withBase(scenario3), Denosumab)
	eq, ok := CoexistenceEquilibrium(m.Params, 0, 0)
	if !ok {
		t.Fatal("expected a coexistence state for the osteoblast-inhibited tumour")
	}
	if eq[2] < 5000 || eq[2] > 7000 {
		t.Errorf("expected tumour burden near 6000, got %g", eq[2])
	}

	dx := m.Derive(eq, dynamo.Control{0}, 0)
	for i, v := range dx {
		if math.Abs(v) > 1e-8*(1+eq[i]) {
			t.Errorf("dx%d = %g at the coexistence equilibrium", i+1, v)
		}
	}

	if _, ok := CoexistenceEquilibrium(BaseParams(), 0, 0); ok {
		t.Error("expected no coexistence state without a tumour")
	}
}

func TestCoexistenceEquilibriumUnderRadiotherapy(t *testing.T) {
	m, _ := NewMetastasis(withBase(scenario1), Radiotherapy)
	for _, uR := range []float64{0, 0.01} {
		eq, ok := CoexistenceEquilibrium(m.Params, 0, uR)
		if !ok {
			t.Fatalf("uR=%g: expected a coexistence state for the osteoclast-recruiting tumour", uR)
		}
		dx := m.Derive(eq, dynamo.Control{uR}, 0)
		for i, v := range dx {
			if math.Abs(v) > 1e-8*(1+math.Abs(eq[i])) {
				t.Errorf("uR=%g: dx%d = %g at the coexistence equilibrium %v", uR, i+1, v, eq)
			}
		}
	}

	untreated, _ := CoexistenceEquilibrium(m.Params, 0, 0)
	treated, _ := CoexistenceEquilibrium(m.Params, 0, 0.01)
	if treated[2] >= untreated[2] {
		t.Errorf("radiotherapy should lower the steady tumour burden: %g >= %g", treated[2], untreated[2])
	}
}

func TestPowFloor(t *testing.T) {
	if v := pow(-3, 0.7); math.IsNaN(v) || v != math.Pow(Floor, 0.7) {
		t.Errorf("expected floored power, got %g", v)
	}
	if v := pow(4, 0.5); v != 2 {
		t.Errorf("expected 2, got %g", v)
	}

	m := mixedModel(t)
	dx := m.Derive(dynamo.State{-1e-3, 4, 100}, dynamo.Control{0, 0}, 0)
	if !dx.IsValid() {
		t.Errorf("negative osteoclasts should not produce NaN: %v", dx)
	}
}

func TestMetastasisParams(t *testing.T) {
	m := mixedModel(t)

	params := m.GetParams()
	params["a1"] = 99
	if m.Params.A1 != 0.5 {
		t.Error("GetParams exposed internal state")
	}

	if err := m.SetParam("doseR", 0.02); err != nil {
		t.Fatalf("SetParam failed: %v", err)
	}
	if m.Params.DoseR != 0.02 {
		t.Errorf("expected doseR 0.02, got %g", m.Params.DoseR)
	}
	if err := m.SetParam("zeta", 1); !errors.Is(err, dynamo.ErrUnknownParameter) {
		t.Errorf("expected ErrUnknownParameter, got %v", err)
	}
	if err := m.SetParam("a1", math.NaN()); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds, got %v", err)
	}

	base := BaseParams()
	changed, err := base.With("K", 500)
	if err != nil {
		t.Fatalf("With failed: %v", err)
	}
	if base.K != 1e4 || changed.K != 500 {
		t.Errorf("With mutated the receiver: base %g, changed %g", base.K, changed.K)
	}
}

func TestNewMetastasisValidation(t *testing.T) {
	if _, err := NewMetastasis(BaseParams(), Radiotherapy, Radiotherapy); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected duplicate channel to fail, got %v", err)
	}
	p := BaseParams()
	p.K = 0
	if _, err := NewMetastasis(p); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected zero carrying capacity to fail, got %v", err)
	}
	p = BaseParams()
	p.DoseD = 1.5
	if _, err := NewMetastasis(p); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected denosumab dose above 1 to fail, got %v", err)
	}
}

func TestParseChannel(t *testing.T) {
	for in, want := range map[string]Channel{"radio": Radiotherapy, "D": Denosumab, "denosumab": Denosumab} {
		got, err := ParseChannel(in)
		if err != nil || got != want {
			t.Errorf("ParseChannel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseChannel("surgery"); err == nil {
		t.Error("expected unknown channel to fail")
	}
}
