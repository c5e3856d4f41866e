package viz

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/remodel/internal/optcontrol"
	"github.com/san-kum/remodel/internal/sweep"
)

const (
	historyCapacity = 600
	sparkWidth      = 16
)

// ProgressMsg reports one solver iteration of job Job.
type ProgressMsg struct {
	Job      int
	Progress optcontrol.Progress
}

// DoneMsg ends the progress view.
type DoneMsg struct {
	Outcomes []sweep.Outcome
	Err      error
}

type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second/10, func(t time.Time) tea.Msg { return TickMsg(t) })
}

type jobView struct {
	label   string
	last    optcontrol.Progress
	history []float64
}

// ProgressModel shows a weight sweep while it runs.
type ProgressModel struct {
	jobs     []jobView
	maxIter  int
	tol      float64
	selected int
	frame    int
	done     bool
	cancel   context.CancelFunc

	Outcomes []sweep.Outcome
	Err      error
}

func NewProgressModel(labels []string, opts optcontrol.Options, cancel context.CancelFunc) ProgressModel {
	jobs := make([]jobView, len(labels))
	for i, l := range labels {
		jobs[i] = jobView{label: l, history: make([]float64, 0, 64)}
	}
	return ProgressModel{jobs: jobs, maxIter: opts.MaxIterations, tol: opts.Tolerance, cancel: cancel}
}

func (m ProgressModel) Init() tea.Cmd { return tick() }

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case "tab", "down", "j":
			if len(m.jobs) > 0 {
				m.selected = (m.selected + 1) % len(m.jobs)
			}
		case "up", "k":
			if len(m.jobs) > 0 {
				m.selected = (m.selected + len(m.jobs) - 1) % len(m.jobs)
			}
		}
	case ProgressMsg:
		if msg.Job < 0 || msg.Job >= len(m.jobs) {
			return m, nil
		}
		j := &m.jobs[msg.Job]
		j.last = msg.Progress
		j.history = append(j.history, math.Log10(msg.Progress.ErrorMax))
		if len(j.history) > historyCapacity {
			j.history = j.history[1:]
		}
	case DoneMsg:
		m.done = true
		m.Outcomes, m.Err = msg.Outcomes, msg.Err
		return m, tea.Quit
	case TickMsg:
		if m.done {
			return m, nil
		}
		m.frame++
		return m, tick()
	}
	return m, nil
}

func (m ProgressModel) View() string {
	var s strings.Builder
	s.WriteString(Title.Render("forward-backward sweep") + "\n\n")

	for i, j := range m.jobs {
		marker := "  "
		if i == m.selected {
			marker = Selected.Render("> ")
		}
		frac := 0.0
		if m.maxIter > 0 {
			frac = float64(j.last.Iteration) / float64(m.maxIter)
		}
		fmt.Fprintf(&s, "%s%s %-24s %s %s %s %s\n",
			marker,
			AnimatedSpinner(m.frame+i),
			j.label,
			ProgressBar(frac, 24),
			MetricLabel.Render(fmt.Sprintf("it %4d", j.last.Iteration)),
			MetricValue.Render(fmt.Sprintf("err %.3e", j.last.ErrorMax)),
			SparklineChart(j.history, sparkWidth))
	}

	if len(m.jobs) > 0 {
		if h := m.jobs[m.selected].history; len(h) > 1 {
			chart := asciigraph.Plot(h,
				asciigraph.Height(8),
				asciigraph.Width(60),
				asciigraph.Caption(fmt.Sprintf("log10 error, tolerance %.0e", m.tol)))
			s.WriteString("\n" + chart + "\n")
		}
	}

	s.WriteString("\n" + KeyHint.Render("tab: select  q: cancel"))
	return Panel.Render(s.String())
}

// RunProgress runs the sweep behind a progress view and returns its outcomes.
// Quitting the view cancels the sweep.
func RunProgress(ctx context.Context, runner *sweep.Runner, jobs []sweep.Job, opts ...tea.ProgramOption) ([]sweep.Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	labels := make([]string, len(jobs))
	for i, j := range jobs {
		labels[i] = j.String()
	}

	p := tea.NewProgram(NewProgressModel(labels, runner.Options, cancel), opts...)
	r := *runner
	r.Observe = func(job int, pr optcontrol.Progress) { p.Send(ProgressMsg{Job: job, Progress: pr}) }

	go func() {
		outcomes, err := r.Run(ctx, jobs)
		p.Send(DoneMsg{Outcomes: outcomes, Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	m := final.(ProgressModel)
	if !m.done {
		return nil, fmt.Errorf("sweep interrupted: %w", context.Canceled)
	}
	return m.Outcomes, m.Err
}
