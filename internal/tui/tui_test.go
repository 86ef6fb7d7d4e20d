package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/experiment"
	"github.com/san-kum/seesaw/internal/rig"
)

func TestTilt(t *testing.T) {
	r := config.DefaultRig()
	mid := float64(r.SafeMin+r.SafeMax) / 2

	assert.InDelta(t, 0, Tilt(mid, r), 1e-12)
	assert.InDelta(t, maxTilt, Tilt(float64(r.SafeMax), r), 1e-12)
	assert.InDelta(t, -maxTilt, Tilt(0, r), 1e-12)
	assert.Greater(t, Tilt(mid+50, r), 0.0)
}

func TestCanvasLine(t *testing.T) {
	c := newCanvas(10, 5)
	c.line(0, 0, 9, 4, '*')
	assert.Equal(t, '*', c[0][0])
	assert.Equal(t, '*', c[4][9])

	c.set(-1, 2, 'x')
	c.set(10, 2, 'x')
	assert.NotContains(t, c.String(""), "x")
}

func TestDrawBeamLevel(t *testing.T) {
	c := newCanvas(30, 9)
	drawBeam(c, 0)
	rows := strings.Split(c.String(""), "\n")
	pivot := rows[len(c)-3]
	assert.Contains(t, pivot, "◆")
	assert.Contains(t, pivot, "═")
}

func TestFeedKeepsLatest(t *testing.T) {
	f := NewFeed()
	for i := 1; i <= 5; i++ {
		f.OnStep(experiment.Status{Raw: i})
	}
	select {
	case st := <-f.Status():
		assert.Equal(t, 5, st.Raw)
	default:
		t.Fatal("expected a status")
	}

	f.OnRunComplete(2, experiment.Result{ElapsedMs: 100})
	done := <-f.Runs()
	assert.Equal(t, 2, done.Run)
}

func TestKnobsAdjust(t *testing.T) {
	r := config.DefaultRig()
	before := config.DefaultTuning()

	for _, k := range knobs {
		v := knobValue(before, k.name) + k.step
		p, err := config.PatchField(k.name, v)
		require.NoError(t, err)
		after := before.Apply(p, r)
		assert.InDelta(t, v, knobValue(after, k.name), 1e-9, k.name)
	}
}

func TestDashboardTracksRunningError(t *testing.T) {
	m := NewDashboard(experiment.NewClient(), NewFeed(), config.DefaultRig(), config.DefaultTuning())

	m.Update(statusMsg(experiment.Status{Phase: rig.Idle, Error: 3}))
	assert.Empty(t, m.history)

	m.Update(statusMsg(experiment.Status{Phase: rig.Running, Staging: true, Error: 4}))
	assert.Empty(t, m.history)

	for i := 0; i < historyLen+10; i++ {
		m.Update(statusMsg(experiment.Status{Phase: rig.Running, Error: float64(i)}))
	}
	require.Len(t, m.history, historyLen)
	assert.Equal(t, float64(historyLen+9), m.history[historyLen-1])

	view := m.View()
	assert.Contains(t, view, "RUNNING")
	assert.Contains(t, view, "error (counts)")
}

func TestDashboardKeys(t *testing.T) {
	m := NewDashboard(experiment.NewClient(), NewFeed(), config.DefaultRig(), config.DefaultTuning())

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.cursor)
	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.cursor)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	tuned := config.DefaultTuning()
	tuned.Kp = 1.5
	m.Update(tuningMsg{tuning: tuned})
	assert.Equal(t, 1.5, m.tuning.Kp)

	m.Update(startMsg{err: experiment.ErrAlreadyRunning})
	assert.Contains(t, m.View(), experiment.ErrAlreadyRunning.Error())
}

func TestDashboardAdjustWithoutLoopTimesOut(t *testing.T) {
	m := NewDashboard(experiment.NewClient(), NewFeed(), config.DefaultRig(), config.DefaultTuning())
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRight})
	require.NotNil(t, cmd)

	msg, ok := cmd().(tuningMsg)
	require.True(t, ok)
	assert.ErrorIs(t, msg.err, experiment.ErrServicePaused)
}

func TestLiveRendererThrottles(t *testing.T) {
	var out bytes.Buffer
	r := NewLiveRenderer(&out, config.DefaultRig(), 10)
	now := time.Unix(1000, 0)
	r.now = func() time.Time { return now }

	r.OnStep(experiment.Status{Phase: rig.Running, Raw: 512, Filtered: 512})
	first := out.Len()
	assert.Positive(t, first)
	assert.Contains(t, out.String(), "raw=512")

	now = now.Add(50 * time.Millisecond)
	r.OnStep(experiment.Status{Phase: rig.Running})
	assert.Equal(t, first, out.Len())

	now = now.Add(60 * time.Millisecond)
	r.OnStep(experiment.Status{Phase: rig.Running, Unsafe: true})
	assert.Greater(t, out.Len(), first)
	assert.Contains(t, out.String(), "UNSAFE")
}
