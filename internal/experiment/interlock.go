package experiment

import "github.com/san-kum/seesaw/internal/rig"

// Interlock decides whether a reading is safe to control on. A failed read
// counts as unsafe.
type Interlock struct {
	Min, Max rig.Measurement

	tripped bool
	trips   int
}

func NewInterlock(lo, hi int) *Interlock {
	return &Interlock{Min: rig.Measurement(lo), Max: rig.Measurement(hi)}
}

// Check reports whether m is usable and whether the safe state changed since
// the previous call.
func (i *Interlock) Check(m rig.Measurement, err error) (safe, changed bool) {
	safe = err == nil && m >= i.Min && m <= i.Max
	changed = safe == i.tripped
	i.tripped = !safe
	if changed && !safe {
		i.trips++
	}
	return safe, changed
}

func (i *Interlock) Tripped() bool { return i.tripped }

// Trips counts transitions into the unsafe state.
func (i *Interlock) Trips() int { return i.trips }
