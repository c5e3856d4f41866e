package metrics

import (
	"fmt"

	"github.com/san-kum/remodel/internal/dynamo"
)

// Containment is the fraction of observed steps in which one population
// stays at or below a threshold.
type Containment struct {
	name       string
	index      int
	threshold  float64
	violations int
	samples    int
}

func NewContainment(index int, threshold float64) *Containment {
	return &Containment{
		name:      fmt.Sprintf("containment_x%d", index+1),
		index:     index,
		threshold: threshold,
	}
}

func (s *Containment) Name() string {
	return s.name
}

func (s *Containment) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if s.index >= len(x) {
		return
	}
	s.samples++
	if x[s.index] > s.threshold {
		s.violations++
	}
}

func (s *Containment) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Containment) Reset() {
	s.violations = 0
	s.samples = 0
}

// Peak is the largest value one population reaches.
type Peak struct {
	index int
	max   float64
	seen  bool
}

func NewPeak(index int) *Peak { return &Peak{index: index} }

func (p *Peak) Name() string { return fmt.Sprintf("peak_x%d", p.index+1) }

func (p *Peak) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if p.index >= len(x) {
		return
	}
	if !p.seen || x[p.index] > p.max {
		p.max = x[p.index]
		p.seen = true
	}
}

func (p *Peak) Value() float64 { return p.max }

func (p *Peak) Reset() {
	p.max = 0
	p.seen = false
}
