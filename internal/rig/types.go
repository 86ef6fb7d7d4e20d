package rig

import (
	"fmt"
	"time"
)

// Measurement is a raw reading from the position sensor in device counts.
type Measurement int

// Command is the pulse width, in microseconds, sent to each actuator.
type Command struct {
	Left  int `json:"left" yaml:"left"`
	Right int `json:"right" yaml:"right"`
}

// Both returns a command with the same value on both channels.
func Both(v int) Command {
	return Command{Left: v, Right: v}
}

// Differential returns base+delta on the left channel and base-delta on the right.
func Differential(base, delta int) Command {
	return Command{Left: base + delta, Right: base - delta}
}

// Delta is half the difference between the two channels.
func (c Command) Delta() int {
	return (c.Left - c.Right) / 2
}

func (c Command) String() string {
	return fmt.Sprintf("L=%d R=%d", c.Left, c.Right)
}

type Phase int

const (
	Booting Phase = iota
	Arming
	Idle
	Running
)

func (p Phase) String() string {
	switch p {
	case Booting:
		return "booting"
	case Arming:
		return "arming"
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "booting":
		*p = Booting
	case "arming":
		*p = Arming
	case "idle":
		*p = Idle
	case "running":
		*p = Running
	default:
		return fmt.Errorf("rig: unknown phase %q", string(b))
	}
	return nil
}

// Actuators drives the two thrust actuators. A write takes effect before the
// next control period.
type Actuators interface {
	Attach() error
	Write(cmd Command) error
}

// Relay switches actuator power. There is deliberately no way to switch it
// off again.
type Relay interface {
	Energize() error
}

type Sensor interface {
	Read() (Measurement, error)
}

// Clock is a monotonic millisecond source.
type Clock interface {
	Millis() uint32
	Sleep(d time.Duration)
}

// Since returns the milliseconds elapsed from then to now, correct across a
// single wraparound of the 32-bit counter.
func Since(now, then uint32) uint32 {
	return now - then
}

// Hardware bundles the collaborators the control loop needs.
type Hardware struct {
	Actuators Actuators
	Relay     Relay
	Sensor    Sensor
	Clock     Clock
}

func (h Hardware) Validate() error {
	switch {
	case h.Actuators == nil:
		return fmt.Errorf("%w: actuators", ErrMissingCollaborator)
	case h.Relay == nil:
		return fmt.Errorf("%w: relay", ErrMissingCollaborator)
	case h.Sensor == nil:
		return fmt.Errorf("%w: sensor", ErrMissingCollaborator)
	case h.Clock == nil:
		return fmt.Errorf("%w: clock", ErrMissingCollaborator)
	}
	return nil
}
