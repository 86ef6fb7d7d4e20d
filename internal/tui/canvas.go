package tui

import (
	"math"
	"strings"

	"github.com/san-kum/seesaw/internal/config"
)

// maxTilt is the drawn angle at either edge of the safe window.
const maxTilt = 0.45

type canvas [][]rune

func newCanvas(w, h int) canvas {
	c := make(canvas, h)
	for i := range c {
		c[i] = []rune(strings.Repeat(" ", w))
	}
	return c
}

func (c canvas) set(x, y int, r rune) {
	if y >= 0 && y < len(c) && x >= 0 && x < len(c[y]) {
		c[y][x] = r
	}
}

func (c canvas) line(x1, y1, x2, y2 int, r rune) {
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		c.set(x1, y1, r)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func (c canvas) String(indent string) string {
	var b strings.Builder
	for _, row := range c {
		b.WriteString(indent)
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

// Tilt maps a filtered reading onto a drawing angle. The centre of the safe
// window is level and the window edges are ±maxTilt.
func Tilt(filtered float64, r config.Rig) float64 {
	mid := float64(r.SafeMin+r.SafeMax) / 2
	half := float64(r.SafeMax-r.SafeMin) / 2
	if half <= 0 {
		return 0
	}
	t := (filtered - mid) / half * maxTilt
	return math.Max(-maxTilt, math.Min(maxTilt, t))
}

// drawBeam draws the beam about a pivot in the lower middle of the canvas.
// A positive tilt raises the right end.
func drawBeam(c canvas, tilt float64) {
	h := len(c)
	if h == 0 {
		return
	}
	w := len(c[0])
	px, py := w/2, h-3
	half := float64(w)/2 - 4
	// terminal cells are about twice as tall as they are wide
	dx := int(half * math.Cos(tilt))
	dy := int(half * math.Sin(tilt) / 2)

	for x := 2; x < w-2; x++ {
		c.set(x, h-1, '─')
	}
	c.line(px, py+1, px, h-2, '│')
	c.line(px-dx, py+dy, px+dx, py-dy, '═')
	c.set(px, py, '◆')
	c.set(px-dx, py+dy-1, '▲')
	c.set(px+dx, py-dy-1, '▲')
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
