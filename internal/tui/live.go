package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/experiment"
)

const (
	liveWidth   = 60
	liveHeight  = 9
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer redraws the beam on a plain terminal at a fixed frame rate.
// It is an experiment.Observer and runs on the loop's goroutine, so frames
// between ticks are skipped rather than queued.
type LiveRenderer struct {
	out       io.Writer
	rig       config.Rig
	interval  time.Duration
	lastFrame time.Time
	now       func() time.Time
	canvas    canvas
}

func NewLiveRenderer(out io.Writer, r config.Rig, frameRate int) *LiveRenderer {
	if frameRate <= 0 {
		frameRate = 20
	}
	return &LiveRenderer{
		out:      out,
		rig:      r,
		interval: time.Second / time.Duration(frameRate),
		now:      time.Now,
		canvas:   newCanvas(liveWidth, liveHeight),
	}
}

func (r *LiveRenderer) OnStep(st experiment.Status) {
	now := r.now()
	if now.Sub(r.lastFrame) < r.interval {
		return
	}
	r.lastFrame = now

	for _, row := range r.canvas {
		for x := range row {
			row[x] = ' '
		}
	}
	drawBeam(r.canvas, Tilt(st.Filtered, r.rig))

	var b strings.Builder
	b.WriteString(clearScreen)
	phase := st.Phase.String()
	if st.Staging {
		phase = "staging"
	}
	if st.Unsafe {
		phase += " UNSAFE"
	}
	b.WriteString(fmt.Sprintf("  %s  t=%.2fs  samples=%d/%d\n", phase, float64(st.ElapsedMs)/1000, st.Samples, st.Capacity))
	b.WriteString("  " + strings.Repeat("-", liveWidth) + "\n")
	b.WriteString(r.canvas.String("  "))
	b.WriteString("  " + strings.Repeat("-", liveWidth) + "\n")
	b.WriteString(fmt.Sprintf("  raw=%d filt=%.1f err=%+.1f cmd=%s\n", st.Raw, st.Filtered, st.Error, st.Command))
	io.WriteString(r.out, b.String())
}

func (r *LiveRenderer) Start() { io.WriteString(r.out, hideCursor) }
func (r *LiveRenderer) Stop()  { io.WriteString(r.out, showCursor) }
