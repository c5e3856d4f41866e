package optcontrol_test

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/remodel/internal/dynamo"
	"github.com/san-kum/remodel/internal/optcontrol"
)

// kill is x' = -u x with running cost x^2 + w u^2.
type kill struct{}

func (kill) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{-u[0] * x[0]}
}
func (kill) StateDim() int   { return 1 }
func (kill) ControlDim() int { return 1 }

const killWeight = 4.0

var killAdjoint = optcontrol.AdjointFunc(func(x dynamo.State, u dynamo.Control, l dynamo.State, t float64) dynamo.State {
	return dynamo.State{-2*x[0] + l[0]*u[0]}
})

func killCandidate(x, l dynamo.State) dynamo.Control {
	return dynamo.Control{l[0] * x[0] / (2 * killWeight)}
}

func killProblem(relax float64) *optcontrol.Problem {
	grid, err := optcontrol.NewGrid(2, 200)
	Expect(err).NotTo(HaveOccurred())
	upd, err := optcontrol.NewRelaxedUpdate(killCandidate, []float64{1}, relax)
	Expect(err).NotTo(HaveOccurred())
	p, err := optcontrol.NewProblem(kill{}, killAdjoint, upd, grid, dynamo.State{1})
	Expect(err).NotTo(HaveOccurred())
	return p
}

var _ = Describe("Solver", func() {
	var solver *optcontrol.Solver

	BeforeEach(func() {
		solver = optcontrol.NewSolver(optcontrol.DefaultOptions())
	})

	Describe("with a zero control updater", func() {
		It("reduces to the uncontrolled simulation", func() {
			grid, _ := optcontrol.NewGrid(5, 200)
			p, err := optcontrol.NewProblem(kill{}, killAdjoint, optcontrol.ZeroUpdate{}, grid, dynamo.State{1})
			Expect(err).NotTo(HaveOccurred())

			sol, err := solver.Solve(context.Background(), p)
			Expect(err).NotTo(HaveOccurred())
			Expect(sol.Status).To(Equal(optcontrol.StatusConverged))
			Expect(sol.Iterations).To(Equal(2))

			base, err := optcontrol.Baseline(p)
			Expect(err).NotTo(HaveOccurred())
			Expect(sol.State.Distance(base)).To(BeZero())
			Expect(sol.Control.Distance(p.ZeroControl())).To(BeZero())
		})
	})

	Describe("on a scalar treatment problem", func() {
		var (
			p   *optcontrol.Problem
			sol *optcontrol.Solution
		)

		BeforeEach(func() {
			p = killProblem(0.5)
			var err error
			sol, err = solver.Solve(context.Background(), p)
			Expect(err).NotTo(HaveOccurred())
		})

		It("converges below the tolerance", func() {
			Expect(sol.Converged()).To(BeTrue())
			Expect(sol.Err()).NotTo(HaveOccurred())
			Expect(sol.Last.ErrorMax).To(BeNumerically("<", optcontrol.DefaultTolerance))
			Expect(sol.History).To(HaveLen(sol.Iterations))
		})

		It("keeps the control inside its bounds", func() {
			for _, v := range sol.Control.Row(0) {
				Expect(v).To(BeNumerically(">=", 0))
				Expect(v).To(BeNumerically("<=", 1))
			}
		})

		It("leaves the boundary columns untouched", func() {
			Expect(sol.State.At(0, 0)).To(Equal(1.0))
			Expect(sol.Costate.At(0, p.Grid.N-1)).To(Equal(0.0))
		})

		It("satisfies the optimality condition", func() {
			x := make(dynamo.State, 1)
			l := make(dynamo.State, 1)
			for _, i := range []int{0, 50, 150} {
				sol.State.Col(i, x)
				sol.Costate.Col(i, l)
				want := optcontrol.Clip(killCandidate(x, l)[0], 0, 1)
				Expect(sol.Control.At(0, i)).To(BeNumerically("~", want, 1e-3))
			}
		})

		It("ends below the uncontrolled trajectory", func() {
			base, err := optcontrol.Baseline(p)
			Expect(err).NotTo(HaveOccurred())
			Expect(sol.State.Last()[0]).To(BeNumerically("<", base.Last()[0]))
		})

		It("uses independent snapshots for the state error", func() {
			Expect(sol.History[0]).To(BeNumerically(">", 0))
		})
	})

	It("reports every iteration to the observer", func() {
		var seen []optcontrol.Progress
		opts := optcontrol.DefaultOptions()
		opts.Observer = func(pr optcontrol.Progress) { seen = append(seen, pr) }

		sol, err := optcontrol.NewSolver(opts).Solve(context.Background(), killProblem(0.5))
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(HaveLen(sol.Iterations))
		Expect(seen[0].Iteration).To(Equal(1))
		Expect(seen[0].ErrorState).To(BeNumerically(">", 0))
		Expect(seen[len(seen)-1]).To(Equal(sol.Last))
	})

	It("stops at the iteration cap without an error", func() {
		opts := optcontrol.DefaultOptions()
		opts.MaxIterations = 3

		sol, err := optcontrol.NewSolver(opts).Solve(context.Background(), killProblem(0.9))
		Expect(err).NotTo(HaveOccurred())
		Expect(sol.Status).To(Equal(optcontrol.StatusMaxIterations))
		Expect(sol.Iterations).To(Equal(3))
		Expect(errors.Is(sol.Err(), optcontrol.ErrNotConverged)).To(BeTrue())
	})

	It("stops on a canceled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		sol, err := solver.Solve(ctx, killProblem(0.5))
		Expect(err).To(MatchError(dynamo.ErrContextCanceled))
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		Expect(sol.Status).To(Equal(optcontrol.StatusCanceled))
		Expect(sol.Iterations).To(BeZero())
	})

	It("reports a non-finite state as divergence", func() {
		grid, _ := optcontrol.NewGrid(1, 10)
		upd, _ := optcontrol.NewRelaxedUpdate(killCandidate, []float64{1}, 0.5)
		p, err := optcontrol.NewProblem(blowUp{}, killAdjoint, upd, grid, dynamo.State{1})
		Expect(err).NotTo(HaveOccurred())

		sol, err := solver.Solve(context.Background(), p)
		Expect(err).To(MatchError(dynamo.ErrInvalidState))
		Expect(sol.Status).To(Equal(optcontrol.StatusDiverged))

		var simErr *dynamo.SimulationError
		Expect(errors.As(err, &simErr)).To(BeTrue())
		Expect(simErr.Step).To(BeNumerically(">", 0))
	})

	DescribeTable("rejects inconsistent problems",
		func(mutate func(p *optcontrol.Problem), target error) {
			p := killProblem(0.5)
			mutate(p)
			_, err := solver.Solve(context.Background(), p)
			Expect(err).To(MatchError(target))
		},
		Entry("short initial condition", func(p *optcontrol.Problem) { p.X0 = dynamo.State{} }, dynamo.ErrDimensionMismatch),
		Entry("long terminal costate", func(p *optcontrol.Problem) { p.Terminal = dynamo.State{0, 0} }, dynamo.ErrDimensionMismatch),
		Entry("non-finite initial condition", func(p *optcontrol.Problem) { p.X0 = dynamo.State{math.NaN()} }, dynamo.ErrInvalidState),
		Entry("missing adjoint", func(p *optcontrol.Problem) { p.Adjoint = nil }, optcontrol.ErrIncompleteProblem),
		Entry("extra control channel", func(p *optcontrol.Problem) {
			p.Updater, _ = optcontrol.NewRelaxedUpdate(killCandidate, []float64{1, 1}, 0.5)
		}, dynamo.ErrDimensionMismatch),
		Entry("degenerate grid", func(p *optcontrol.Problem) { p.Grid.N = 1 }, dynamo.ErrParameterBounds),
	)
})

type blowUp struct{}

func (blowUp) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{math.Sqrt(0.5 - x[0])}
}
func (blowUp) StateDim() int   { return 1 }
func (blowUp) ControlDim() int { return 1 }
