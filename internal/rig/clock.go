package rig

import "time"

// SystemClock reads wall time relative to the moment it was created.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

func (c *SystemClock) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// ManualClock only moves when told to. Tests start it near the wrap point to
// exercise the modular arithmetic.
type ManualClock struct {
	Now uint32
}

func (c *ManualClock) Millis() uint32 { return c.Now }

func (c *ManualClock) Sleep(d time.Duration) {
	c.Advance(uint32(d / time.Millisecond))
}

func (c *ManualClock) Advance(ms uint32) {
	c.Now += ms
}
