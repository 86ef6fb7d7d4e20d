// Package hw drives the physical rig from a Raspberry Pi: PWM outputs for
// the two actuators, a GPIO line for the power relay and a serial link to
// the microcontroller that samples the pivot potentiometer.
package hw

import (
	"errors"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/control"
	"github.com/san-kum/seesaw/internal/rig"
)

var ErrNotAttached = errors.New("hw: pwm outputs not attached")

// multiplier sets the PWM clock to hz*multiplier so one cycle is
// multiplier ticks long. Larger values overflow the divider.
const multiplier = 20000

// Open maps the GPIO registers. It must be called before any pin is used.
func Open() error { return rpio.Open() }

func Close() error { return rpio.Close() }

// DutyFor converts a pulse width in microseconds to PWM ticks at hz. A
// non-positive rate yields zero.
func DutyFor(us, hz int) uint32 {
	if hz <= 0 {
		return 0
	}
	usPerCycle := uint32(1_000_000 / hz)
	return uint32(us) * multiplier / usPerCycle
}

// PWM drives both actuators. Pulses are clamped to the arming range, the
// widest the actuators accept.
type PWM struct {
	left, right rpio.Pin
	hz          int
	lo, hi      int
	attached    bool
}

func NewPWM(cfg config.HardwareConfig, r config.Rig) *PWM {
	return &PWM{
		left:  rpio.Pin(cfg.LeftPin),
		right: rpio.Pin(cfg.RightPin),
		hz:    cfg.PWMHz,
		lo:    r.ArmMin,
		hi:    r.ArmMax,
	}
}

func (p *PWM) Attach() error {
	p.left.Mode(rpio.Pwm)
	p.right.Mode(rpio.Pwm)
	// Param freq should be in range 4688Hz - 19.2MHz
	p.left.Freq(p.hz * multiplier)
	p.right.Freq(p.hz * multiplier)
	p.attached = true
	return nil
}

func (p *PWM) Write(cmd rig.Command) error {
	if !p.attached {
		return ErrNotAttached
	}
	cmd = control.ClampCommand(cmd, p.lo, p.hi)
	p.left.DutyCycle(DutyFor(cmd.Left, p.hz), multiplier)
	p.right.DutyCycle(DutyFor(cmd.Right, p.hz), multiplier)
	return nil
}

// Relay switches actuator power. It can be energized once and has no way
// to switch off; power is removed by stopping the process.
type Relay struct {
	pin       rpio.Pin
	activeLow bool
	on        bool
}

func NewRelay(cfg config.HardwareConfig) *Relay {
	return &Relay{pin: rpio.Pin(cfg.RelayPin), activeLow: cfg.RelayActiveLow}
}

func (r *Relay) Energize() error {
	if r.on {
		return rig.ErrRelayEnergized
	}
	r.pin.Output()
	if r.activeLow {
		r.pin.Low()
	} else {
		r.pin.High()
	}
	r.on = true
	return nil
}
