// Package export renders finished runs as images.
package export

import (
	"bufio"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/san-kum/seesaw/internal/sampling"
)

var (
	colorMeasured = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	colorSetpoint = color.RGBA{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff}
	colorP        = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	colorI        = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
	colorD        = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
)

const dpi = 150

// ResponsePlot shows the filtered measurement against the setpoint.
func ResponsePlot(samples []sampling.Sample, setpoint float64, title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "counts"

	measured := make(plotter.XYs, len(samples))
	target := make(plotter.XYs, len(samples))
	for i, s := range samples {
		t := float64(s.OffsetMs) / 1000
		measured[i] = plotter.XY{X: t, Y: s.Filtered}
		target[i] = plotter.XY{X: t, Y: setpoint}
	}

	if err := addLine(p, "filtered", measured, colorMeasured, false); err != nil {
		return nil, err
	}
	if err := addLine(p, "setpoint", target, colorSetpoint, true); err != nil {
		return nil, err
	}
	p.Legend.Top = true
	return p, nil
}

// TermsPlot shows the proportional, integral and derivative contributions.
func TermsPlot(samples []sampling.Sample) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "µs"

	terms := []struct {
		name string
		c    color.Color
		get  func(sampling.Sample) float64
	}{
		{"P", colorP, func(s sampling.Sample) float64 { return s.P }},
		{"I", colorI, func(s sampling.Sample) float64 { return s.I }},
		{"D", colorD, func(s sampling.Sample) float64 { return s.D }},
	}
	for _, term := range terms {
		pts := make(plotter.XYs, len(samples))
		for i, s := range samples {
			pts[i] = plotter.XY{X: float64(s.OffsetMs) / 1000, Y: term.get(s)}
		}
		if err := addLine(p, term.name, pts, term.c, false); err != nil {
			return nil, err
		}
	}
	p.Legend.Top = true
	return p, nil
}

func addLine(p *plot.Plot, name string, pts plotter.XYs, c color.Color, dashed bool) error {
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("export: %s: %w", name, err)
	}
	line.LineStyle.Color = c
	line.LineStyle.Width = vg.Points(1.2)
	if dashed {
		line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	}
	p.Add(line)
	p.Legend.Add(name, line)
	return nil
}

// WritePNG renders the response and terms plots stacked in one image.
func WritePNG(w io.Writer, samples []sampling.Sample, setpoint float64, title string) error {
	if len(samples) == 0 {
		return fmt.Errorf("export: no samples to plot")
	}
	resp, err := ResponsePlot(samples, setpoint, title)
	if err != nil {
		return err
	}
	terms, err := TermsPlot(samples)
	if err != nil {
		return err
	}

	c := vgimg.NewWith(
		vgimg.UseWH(8*vg.Inch, 8*vg.Inch),
		vgimg.UseDPI(dpi),
	)
	dc := draw.New(c)
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadY: vg.Points(8)}
	canvases := plot.Align([][]*plot.Plot{{resp}, {terms}}, tiles, dc)
	resp.Draw(canvases[0][0])
	terms.Draw(canvases[1][0])

	bw := bufio.NewWriter(w)
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(bw); err != nil {
		return err
	}
	return bw.Flush()
}

func SavePNG(path string, samples []sampling.Sample, setpoint float64, title string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("export: cannot create directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: cannot create png: %w", err)
	}
	if err := WritePNG(f, samples, setpoint, title); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
