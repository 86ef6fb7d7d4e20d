// Package tui renders a control loop in the terminal: a bubbletea dashboard
// for interactive tuning and a plain renderer for unattended runs.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/experiment"
	"github.com/san-kum/seesaw/internal/rig"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	badge   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
)

const (
	historyLen     = 120
	requestTimeout = 500 * time.Millisecond
)

type knob struct {
	name string
	step float64
}

var knobs = []knob{
	{"kp", 0.05},
	{"ki", 0.05},
	{"kd", 0.01},
	{"setpoint", 10},
	{"base", 10},
	{"delta_max", 10},
	{"duration_ms", 1000},
}

func knobValue(t config.Tuning, name string) float64 {
	v, _ := t.Field(name)
	return v
}

type statusMsg experiment.Status

type runMsg RunDone

type tuningMsg struct {
	tuning config.Tuning
	err    error
}

type startMsg struct {
	err error
}

// Dashboard is the interactive view. Status arrives through a Feed; tuning
// writes and run starts go through the loop's client and only succeed while
// the loop is idle.
type Dashboard struct {
	client *experiment.Client
	feed   *Feed
	rig    config.Rig

	st      experiment.Status
	tuning  config.Tuning
	history []float64
	cursor  int
	note    string

	width  int
	height int
}

func NewDashboard(client *experiment.Client, feed *Feed, r config.Rig, t config.Tuning) *Dashboard {
	return &Dashboard{
		client:  client,
		feed:    feed,
		rig:     r,
		tuning:  t,
		history: make([]float64, 0, historyLen),
		width:   80,
		height:  30,
	}
}

func (m *Dashboard) Init() tea.Cmd {
	return tea.Batch(waitStatus(m.feed), waitRun(m.feed))
}

func waitStatus(f *Feed) tea.Cmd {
	return func() tea.Msg { return statusMsg(<-f.Status()) }
}

func waitRun(f *Feed) tea.Cmd {
	return func() tea.Msg { return runMsg(<-f.Runs()) }
}

func (m *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case statusMsg:
		m.observe(experiment.Status(msg))
		return m, waitStatus(m.feed)
	case runMsg:
		done := RunDone(msg)
		m.note = fmt.Sprintf("run %d finished: %d samples", done.Run, len(done.Result.Samples))
		if done.Result.Aborted {
			m.note = fmt.Sprintf("run %d aborted while staging", done.Run)
		}
		return m, waitRun(m.feed)
	case tuningMsg:
		if msg.err != nil {
			m.note = "tuning: " + msg.err.Error()
		} else {
			m.tuning = msg.tuning
			m.note = ""
		}
	case startMsg:
		if msg.err != nil {
			m.note = "start: " + msg.err.Error()
		} else {
			m.note = "run started"
			m.history = m.history[:0]
		}
	}
	return m, nil
}

func (m *Dashboard) observe(st experiment.Status) {
	m.st = st
	if st.Phase != rig.Running || st.Staging {
		return
	}
	m.history = append(m.history, st.Error)
	if len(m.history) > historyLen {
		m.history = m.history[1:]
	}
}

func (m *Dashboard) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c":
		return tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j", "tab":
		if m.cursor < len(knobs)-1 {
			m.cursor++
		}
	case "left", "h":
		return m.adjust(-1)
	case "right", "l":
		return m.adjust(1)
	case "s", "enter":
		return m.start()
	}
	return nil
}

func (m *Dashboard) adjust(dir float64) tea.Cmd {
	k := knobs[m.cursor]
	patch, err := config.PatchField(k.name, knobValue(m.tuning, k.name)+dir*k.step)
	if err != nil {
		return func() tea.Msg { return tuningMsg{err: err} }
	}
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		t, err := client.SetTuning(ctx, patch)
		return tuningMsg{tuning: t, err: err}
	}
}

func (m *Dashboard) start() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := client.Start(ctx)
		return startMsg{err: err}
	}
}

func phaseBadge(st experiment.Status) string {
	switch {
	case st.Unsafe:
		return badge.Background(lipgloss.Color("196")).Render("UNSAFE")
	case st.Phase == rig.Running && st.Staging:
		return badge.Background(lipgloss.Color("220")).Foreground(lipgloss.Color("0")).Render("STAGING")
	case st.Phase == rig.Running:
		return badge.Background(lipgloss.Color("28")).Render("RUNNING")
	case st.Phase == rig.Idle:
		return badge.Background(lipgloss.Color("24")).Render("IDLE")
	}
	return badge.Background(lipgloss.Color("238")).Render(strings.ToUpper(st.Phase.String()))
}

func (m *Dashboard) View() string {
	var b strings.Builder
	st := m.st

	b.WriteString("\n   " + cyan.Render("s e e s a w") + "  " + phaseBadge(st))
	b.WriteString(dim.Render(fmt.Sprintf("  runs %d  trips %d", st.Runs, st.Trips)) + "\n")

	if st.Phase == rig.Running && st.DurationMs > 0 && !st.Staging {
		progress := min(float64(st.ElapsedMs)/float64(st.DurationMs), 1)
		barWidth := 36
		filled := int(progress * float64(barWidth))
		bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
		b.WriteString(fmt.Sprintf("   %s %s\n", bar, dim.Render(fmt.Sprintf("%.1fs/%.1fs", float64(st.ElapsedMs)/1000, float64(st.DurationMs)/1000))))
	} else {
		b.WriteString("\n")
	}

	cw := max(m.width-8, 40)
	c := newCanvas(cw, 9)
	drawBeam(c, Tilt(st.Filtered, m.rig))
	b.WriteString("\n" + c.String("   "))

	b.WriteString(fmt.Sprintf("\n   %s %s  %s %s  %s %s\n",
		dim.Render("raw"), white.Render(fmt.Sprintf("%4d", st.Raw)),
		dim.Render("filtered"), white.Render(fmt.Sprintf("%7.1f", st.Filtered)),
		dim.Render("error"), errorStyle(st.Error).Render(fmt.Sprintf("%+7.1f", st.Error))))
	b.WriteString(fmt.Sprintf("   %s %s  %s %s %s\n",
		dim.Render("cmd"), white.Render(st.Command.String()),
		dim.Render("P/I/D"), magenta.Render(fmt.Sprintf("%+.1f/%+.1f/%+.1f", st.Terms.P, st.Terms.I, st.Terms.D)),
		dim.Render(fmt.Sprintf("int %.1f", st.Integral))))

	if len(m.history) > 1 {
		plot := asciigraph.Plot(m.history,
			asciigraph.Height(6),
			asciigraph.Width(min(cw, historyLen)),
			asciigraph.Caption("error (counts)"))
		b.WriteString("\n" + indent(plot, "   ") + "\n")
	}

	b.WriteString("\n")
	for i, k := range knobs {
		val := fmt.Sprintf("%9.2f", knobValue(m.tuning, k.name))
		if i == m.cursor {
			b.WriteString("   " + cyan.Render("▸ ") + white.Render(fmt.Sprintf("%-11s", k.name)) + magenta.Render(val) + "\n")
		} else {
			b.WriteString("     " + dim.Render(fmt.Sprintf("%-11s", k.name)) + dim.Render(val) + "\n")
		}
	}

	if m.note != "" {
		b.WriteString("\n   " + yellow.Render(m.note) + "\n")
	}
	b.WriteString("\n" + dim.Render("   ↑↓ select  ←→ adjust  s start  q quit") + "\n")
	return b.String()
}

func errorStyle(e float64) lipgloss.Style {
	switch a := max(e, -e); {
	case a < 10:
		return green
	case a < 50:
		return yellow
	}
	return red
}

func indent(s, pad string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = pad + lines[i]
	}
	return strings.Join(lines, "\n")
}
