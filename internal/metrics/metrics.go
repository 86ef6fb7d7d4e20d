// Package metrics scores finished runs from their captured samples.
package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/seesaw/internal/sampling"
)

type Metric interface {
	Name() string
	Observe(s sampling.Sample)
	Value() float64
	Reset()
}

// Standard returns a fresh set of the metrics reported for every run.
func Standard() []Metric {
	return []Metric{
		NewControlEffort(),
		NewMeanAbsError(),
		NewRMSError(),
		NewErrorStdDev(),
		NewPeakError(),
		NewSettledError(),
	}
}

// Evaluate runs every standard metric over samples.
func Evaluate(samples []sampling.Sample) map[string]float64 {
	out := make(map[string]float64)
	for _, m := range Standard() {
		for _, s := range samples {
			m.Observe(s)
		}
		out[m.Name()] = m.Value()
	}
	return out
}

// Names lists the standard metric names in display order.
func Names() []string {
	var names []string
	for _, m := range Standard() {
		names = append(names, m.Name())
	}
	return names
}

// Sorted returns the keys of a result map in a stable order.
func Sorted(result map[string]float64) []string {
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ControlEffort is the mean absolute differential command.
type ControlEffort struct {
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort { return &ControlEffort{} }

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(s sampling.Sample) {
	c.sum += math.Abs(s.Delta())
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

type MeanAbsError struct {
	sum     float64
	samples int
}

func NewMeanAbsError() *MeanAbsError { return &MeanAbsError{} }

func (m *MeanAbsError) Name() string { return "mean_abs_error" }

func (m *MeanAbsError) Observe(s sampling.Sample) {
	m.sum += math.Abs(s.Error)
	m.samples++
}

func (m *MeanAbsError) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *MeanAbsError) Reset() {
	m.sum = 0
	m.samples = 0
}

type RMSError struct {
	sumSq   float64
	samples int
}

func NewRMSError() *RMSError { return &RMSError{} }

func (r *RMSError) Name() string { return "rms_error" }

func (r *RMSError) Observe(s sampling.Sample) {
	r.sumSq += s.Error * s.Error
	r.samples++
}

func (r *RMSError) Value() float64 {
	if r.samples == 0 {
		return 0
	}
	return math.Sqrt(r.sumSq / float64(r.samples))
}

func (r *RMSError) Reset() {
	r.sumSq = 0
	r.samples = 0
}

// ErrorStdDev is the sample standard deviation of the error, a measure of
// oscillation around whatever offset the loop settled at.
type ErrorStdDev struct {
	errs []float64
}

func NewErrorStdDev() *ErrorStdDev { return &ErrorStdDev{} }

func (e *ErrorStdDev) Name() string { return "error_stddev" }

func (e *ErrorStdDev) Observe(s sampling.Sample) {
	e.errs = append(e.errs, s.Error)
}

func (e *ErrorStdDev) Value() float64 {
	if len(e.errs) < 2 {
		return 0
	}
	_, std := stat.MeanStdDev(e.errs, nil)
	return std
}

func (e *ErrorStdDev) Reset() { e.errs = e.errs[:0] }

type PeakError struct {
	peak float64
}

func NewPeakError() *PeakError { return &PeakError{} }

func (p *PeakError) Name() string { return "peak_error" }

func (p *PeakError) Observe(s sampling.Sample) {
	p.peak = math.Max(p.peak, math.Abs(s.Error))
}

func (p *PeakError) Value() float64 { return p.peak }

func (p *PeakError) Reset() { p.peak = 0 }

// SettledError is the mean error over the last quarter of the run.
type SettledError struct {
	errs []float64
}

func NewSettledError() *SettledError { return &SettledError{} }

func (s *SettledError) Name() string { return "settled_error" }

func (s *SettledError) Observe(smp sampling.Sample) {
	s.errs = append(s.errs, smp.Error)
}

func (s *SettledError) Value() float64 {
	if len(s.errs) == 0 {
		return 0
	}
	tail := s.errs[len(s.errs)*3/4:]
	return stat.Mean(tail, nil)
}

func (s *SettledError) Reset() { s.errs = s.errs[:0] }
