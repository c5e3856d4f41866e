package bone_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/remodel/internal/bone"
	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/optcontrol"
)

func solve(s bone.Scenario, weights ...float64) (*optcontrol.Problem, *optcontrol.Solution) {
	p, err := s.Problem(weights)
	Expect(err).NotTo(HaveOccurred())
	sol, err := optcontrol.NewSolver(optcontrol.DefaultOptions()).Solve(context.Background(), p)
	Expect(err).NotTo(HaveOccurred())
	return p, sol
}

var _ = Describe("Scenarios", func() {
	It("lists the built-in scenarios in order", func() {
		Expect(bone.ScenarioNames()).To(Equal([]string{"deno-sc3", "mixed-sc3", "radio-sc1"}))
		_, err := bone.LookupScenario("chemo")
		Expect(err).To(HaveOccurred())
	})

	It("returns independent copies", func() {
		s, err := bone.LookupScenario("radio-sc1")
		Expect(err).NotTo(HaveOccurred())
		s.Max[0] = 1
		s.X0[2] = 0

		again, _ := bone.LookupScenario("radio-sc1")
		Expect(again.Max[0]).To(Equal(0.05))
		Expect(again.X0[2]).To(Equal(1000.0))
	})

	DescribeTable("builds consistent problems",
		func(name string, controls int) {
			s, err := bone.LookupScenario(name)
			Expect(err).NotTo(HaveOccurred())
			for _, w := range s.Weights {
				p, err := s.Problem(w)
				Expect(err).NotTo(HaveOccurred())
				Expect(p.Model.ControlDim()).To(Equal(controls))
				Expect(p.Grid.H).To(BeNumerically("~", 0.1, 1e-12))
			}
		},
		Entry("radiotherapy", "radio-sc1", 1),
		Entry("denosumab", "deno-sc3", 1),
		Entry("mixed", "mixed-sc3", 2),
	)

	It("rejects a weight vector of the wrong length", func() {
		s, _ := bone.LookupScenario("mixed-sc3")
		_, err := s.Problem([]float64{1e6})
		Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
	})

	Describe("radiotherapy in scenario 1", func() {
		var scenario bone.Scenario

		BeforeEach(func() {
			var err error
			scenario, err = bone.LookupScenario("radio-sc1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("reduces to the untreated course under a zero update", func() {
			p, err := scenario.Problem([]float64{1e9})
			Expect(err).NotTo(HaveOccurred())
			p.Updater = optcontrol.ZeroUpdate{}

			sol, err := optcontrol.NewSolver(optcontrol.DefaultOptions()).Solve(context.Background(), p)
			Expect(err).NotTo(HaveOccurred())
			base, err := optcontrol.Baseline(p)
			Expect(err).NotTo(HaveOccurred())
			Expect(sol.State.Distance(base)).To(BeZero())
		})

		It("converges for B = 1e11", func() {
			_, sol := solve(scenario, 1e11)
			Expect(sol.Status).To(Equal(optcontrol.StatusConverged))
			Expect(sol.Iterations).To(BeNumerically("<", optcontrol.DefaultMaxIterations))
			Expect(sol.History[len(sol.History)-1]).To(BeNumerically("<", sol.History[0]))
		})

		It("suppresses the tumour for B = 1e9", func() {
			p, sol := solve(scenario, 1e9)
			Expect(sol.Status).To(Equal(optcontrol.StatusConverged))

			for _, v := range sol.Control.Row(0) {
				Expect(v).To(BeNumerically(">=", 0))
				Expect(v).To(BeNumerically("<=", 0.05))
			}

			base, err := optcontrol.Baseline(p)
			Expect(err).NotTo(HaveOccurred())
			Expect(sol.State.Last()[2]).To(BeNumerically("<", base.Last()[2]))

			model := p.Model.(*bone.Metastasis)
			treated, err := model.Objective(p.Grid, sol.State, sol.Control, []float64{1e9})
			Expect(err).NotTo(HaveOccurred())
			untreated, err := model.Objective(p.Grid, base, p.ZeroControl(), []float64{1e9})
			Expect(err).NotTo(HaveOccurred())
			Expect(treated).To(BeNumerically("<", untreated))

			Expect(sol.State.Col(0, nil)).To(Equal([]float64{4.42e-6, 4.46, 1000}))
			Expect(sol.Costate.Last()).To(Equal(dynamo.State{0, 0, 0}))
		})
	})
})
