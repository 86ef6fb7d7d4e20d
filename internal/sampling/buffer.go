// Package sampling holds the instrumentation captured during a run.
package sampling

import "errors"

var ErrNotFinalized = errors.New("sampling: buffer not finalized")

// Sample is one instrumentation point. P, I and D are in output units.
type Sample struct {
	OffsetMs uint32  `json:"offset_ms"`
	Raw      int     `json:"raw"`
	Filtered float64 `json:"filtered"`
	Error    float64 `json:"error"`
	P        float64 `json:"p"`
	I        float64 `json:"i"`
	D        float64 `json:"d"`
}

// Delta is the unclamped controller output the sample was taken with.
func (s Sample) Delta() float64 { return s.P + s.I + s.D }

// Buffer is a fixed-capacity sample store. Once full it keeps the oldest
// samples and drops later ones; it never overwrites.
type Buffer struct {
	samples   []Sample
	n         int
	finalized bool
}

func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{samples: make([]Sample, capacity)}
}

// Reset empties the buffer for a new run. Storage is reused.
func (b *Buffer) Reset() {
	b.n = 0
	b.finalized = false
}

// Add appends s and reports whether it was kept.
func (b *Buffer) Add(s Sample) bool {
	if b.finalized || b.n == len(b.samples) {
		return false
	}
	b.samples[b.n] = s
	b.n++
	return true
}

// Finalize marks the run complete; the buffer becomes readable and stops
// accepting samples until the next Reset.
func (b *Buffer) Finalize() {
	b.finalized = true
}

func (b *Buffer) Finalized() bool { return b.finalized }
func (b *Buffer) Len() int         { return b.n }
func (b *Buffer) Cap() int         { return len(b.samples) }
func (b *Buffer) Full() bool       { return b.n == len(b.samples) }

// Samples returns a copy of the captured samples of a finished run.
func (b *Buffer) Samples() ([]Sample, error) {
	if !b.finalized {
		return nil, ErrNotFinalized
	}
	out := make([]Sample, b.n)
	copy(out, b.samples[:b.n])
	return out, nil
}

// Last returns the most recent sample, if any.
func (b *Buffer) Last() (Sample, bool) {
	if b.n == 0 {
		return Sample{}, false
	}
	return b.samples[b.n-1], true
}
