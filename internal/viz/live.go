package viz

import (
	"fmt"
	"math"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/remodel/internal/dynamo"
)

// stepsPerFrame keeps a 250 day run at dt 0.1 to a few seconds of wall time.
const stepsPerFrame = 20

var (
	barsStyle  = lipgloss.NewStyle().Padding(1, 2)
	statsStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(1, 2).Width(48)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

// Snapshot stores state at a specific time for replay.
type Snapshot struct {
	State dynamo.State
	Time  float64
}

// LiveModel steps a model on every frame and lets the user tune its
// coefficients while it runs.
type LiveModel struct {
	dyn           dynamo.System
	integrator    dynamo.Integrator
	controller    dynamo.Controller
	state         dynamo.State
	t, dt         float64
	running       bool
	modelName     string
	params        map[string]float64
	initialParams map[string]float64
	paramKeys     []string
	selected      int
	plotted       int
	initialState  dynamo.State
	history       []Snapshot
	playHead      int
	err           error
}

func NewLiveModel(dyn dynamo.System, integ dynamo.Integrator, ctrl dynamo.Controller, initState dynamo.State, dt float64, modelName string) LiveModel {
	params := make(map[string]float64)
	if t, ok := dyn.(dynamo.Configurable); ok {
		for k, v := range t.GetParams() {
			params[k] = v
		}
	}
	keys := make([]string, 0, len(params))
	initialParams := make(map[string]float64, len(params))
	for k, v := range params {
		keys = append(keys, k)
		initialParams[k] = v
	}
	sort.Strings(keys)

	return LiveModel{
		dyn:           dyn,
		integrator:    integ,
		controller:    ctrl,
		state:         initState.Clone(),
		dt:            dt,
		running:       true,
		modelName:     modelName,
		params:        params,
		initialParams: initialParams,
		paramKeys:     keys,
		plotted:       dyn.StateDim() - 1,
		initialState:  initState.Clone(),
		history:       make([]Snapshot, 0, historyCapacity),
		playHead:      -1,
	}
}

func (m LiveModel) Init() tea.Cmd { return tick() }

func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		case "[":
			m.scrub(-1)
		case "]":
			m.scrub(1)
		case "tab":
			m.cycleParam()
		case "s":
			m.plotted = (m.plotted + 1) % len(m.state)
		case "up", "k":
			m.adjustParam(1.05)
		case "down", "j":
			m.adjustParam(0.95)
		}
	case TickMsg:
		if m.running {
			if m.playHead == -1 {
				for i := 0; i < stepsPerFrame && m.err == nil; i++ {
					m.step()
				}
			} else {
				m.playHead++
				if m.playHead >= len(m.history) {
					m.playHead = -1
				}
			}
		}
		return m, tick()
	}
	return m, nil
}

func (m *LiveModel) cycleParam() {
	if len(m.paramKeys) == 0 {
		return
	}
	m.selected = (m.selected + 1) % len(m.paramKeys)
}

// adjustParam scales the selected coefficient; zero coefficients step away
// from zero by a small absolute amount so they can be tuned at all.
func (m *LiveModel) adjustParam(factor float64) {
	if len(m.paramKeys) == 0 {
		return
	}
	key := m.paramKeys[m.selected]
	val := m.params[key]
	newVal := val * factor
	if val == 0 {
		newVal = (factor - 1) * 1e-3
	}
	t, ok := m.dyn.(dynamo.Configurable)
	if !ok {
		return
	}
	if err := t.SetParam(key, newVal); err != nil {
		return
	}
	m.params[key] = newVal
}

func (m *LiveModel) step() {
	u := m.controller.Compute(m.state, m.t)
	next := m.integrator.Step(m.dyn, m.state, u, m.t, m.dt)
	if !next.IsValid() {
		m.err = &dynamo.SimulationError{Time: m.t + m.dt, State: next, Wrapped: dynamo.ErrInvalidState}
		m.running = false
		return
	}
	m.state = next
	m.t += m.dt

	m.history = append(m.history, Snapshot{State: m.state.Clone(), Time: m.t})
	if len(m.history) > historyCapacity {
		m.history = m.history[1:]
	}
}

func (m *LiveModel) scrub(dir int) {
	if m.playHead == -1 {
		if len(m.history) == 0 {
			return
		}
		m.playHead = len(m.history) - 1
		m.running = false
	}
	m.playHead += dir
	if m.playHead < 0 {
		m.playHead = 0
	}
	if m.playHead >= len(m.history) {
		m.playHead = -1
	}
}

func (m *LiveModel) reset() {
	m.t = 0
	m.err = nil
	m.state = m.initialState.Clone()
	m.history = m.history[:0]
	m.playHead = -1
	t, ok := m.dyn.(dynamo.Configurable)
	for k, v := range m.initialParams {
		m.params[k] = v
		if ok {
			_ = t.SetParam(k, v)
		}
	}
}

// populationBars draws one bar per state component on a log10 scale from
// 1e-6 to 1e4, the range the bone models span.
func populationBars(x dynamo.State, width int) string {
	var b strings.Builder
	for i, v := range x {
		frac := 0.0
		if v > 0 {
			frac = (math.Log10(v) + 6) / 10
		}
		frac = math.Max(0, math.Min(1, frac))
		filled := int(frac * float64(width))
		fmt.Fprintf(&b, "x%d %s %10.3e\n", i+1, strings.Repeat("█", filled)+strings.Repeat("░", width-filled), v)
	}
	return b.String()
}

func (m LiveModel) View() string {
	state, t, status := m.state, m.t, "RUNNING"
	if m.playHead >= 0 && m.playHead < len(m.history) {
		snap := m.history[m.playHead]
		state, t = snap.State, snap.Time
		status = fmt.Sprintf("REPLAY (%.1f days back)", m.t-t)
	} else if !m.running {
		status = "PAUSED"
	}
	if m.err != nil {
		status = StatusFail.Render("STOPPED: " + m.err.Error())
	}

	var s strings.Builder
	s.WriteString(Title.Render(strings.ToUpper(m.modelName)) + "\n")
	s.WriteString(status + "\n\n")

	if len(m.history) > 1 && m.plotted < len(state) {
		series := make([]float64, len(m.history))
		for i, snap := range m.history {
			series[i] = snap.State[m.plotted]
		}
		s.WriteString(Chart(series, 36, 5, fmt.Sprintf("x%d", m.plotted+1)) + "\n\n")
	}

	s.WriteString(labelStyle.Render("Time") + valueStyle.Render(fmt.Sprintf("%.1f days", t)) + "\n")
	s.WriteString("\n" + Separator(36) + "\nCOEFFICIENTS\n")
	if len(m.paramKeys) == 0 {
		s.WriteString(labelStyle.Render("  (none)") + "\n")
	}
	for i, k := range m.paramKeys {
		line := fmt.Sprintf("%-8s %12.4g", k, m.params[k])
		if i == m.selected {
			s.WriteString(Selected.Render("> "+line) + "\n")
		} else {
			s.WriteString("  " + MetricLabel.Render(line) + "\n")
		}
	}
	s.WriteString(KeyHint.Render("\nSP:Pause R:Reset Q:Quit S:Plot\n[ ]:Scrub Tab ↑↓:Tune"))

	return lipgloss.JoinHorizontal(lipgloss.Top, barsStyle.Render(populationBars(state, 30)), statsStyle.Render(s.String()))
}

// RunLive opens the live view until the user quits.
func RunLive(m LiveModel) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
