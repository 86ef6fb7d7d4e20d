// Package plant simulates a seesaw rig: a beam on a central pivot with a
// thrust actuator at each end and a potentiometer on the pivot.
//
// A Plant satisfies every hardware collaborator of the control loop. Its
// clock is virtual; Sleep advances the physics instead of waiting.
package plant

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/control"
	"github.com/san-kum/seesaw/internal/rig"
)

var ErrNotAttached = errors.New("plant: actuators not attached")

const (
	stateAngle = iota
	stateRate
	stateLeft
	stateRight
	stateDim
)

// substep is the physics resolution; Sleep integrates in chunks of this size.
const substep = time.Millisecond

type Params struct {
	Inertia     float64 // kg·m²
	Arm         float64 // pivot to actuator, m
	Damping     float64 // N·m·s/rad
	MaxThrust   float64 // N at full throttle
	MotorTau    float64 // thrust time constant, s
	Imbalance   float64 // constant torque, N·m
	Topple      float64 // destabilizing torque per rad of tilt, N·m
	Stop        float64 // mechanical end stop, rad
	Restitution float64

	PulseIdle int // pulse width below which an actuator produces no thrust
	PulseFull int

	CountsCenter float64
	CountsPerRad float64
	CountsMax    int
	Noise        float64 // sensor noise, counts (1σ)
}

func DefaultParams() Params {
	return Params{
		Inertia:      0.012,
		Arm:          0.25,
		Damping:      0.04,
		MaxThrust:    4.0,
		MotorTau:     0.03,
		Imbalance:    0.02,
		Topple:       0.05,
		Stop:         0.55,
		Restitution:  0.3,
		PulseIdle:    1050,
		PulseFull:    2000,
		CountsCenter: 512,
		CountsPerRad: 700,
		CountsMax:    1023,
		Noise:        1.5,
	}
}

// ParamsFromSim overlays the configurable simulation knobs on the defaults.
func ParamsFromSim(c config.SimConfig) Params {
	p := DefaultParams()
	p.Noise = c.Noise
	p.Imbalance = c.Imbalance
	return p
}

type Plant struct {
	mu sync.Mutex

	prm   Params
	x     []float64
	now   time.Duration
	cmd   rig.Command
	rng   *rand.Rand
	stepr rk4

	energized bool
	attached  bool
	energizes int
	disturb   float64
	fault     *rig.Measurement
}

// New returns a plant resting at angle theta0 radians.
func New(prm Params, theta0 float64, seed int64) *Plant {
	p := &Plant{
		prm: prm,
		x:   make([]float64, stateDim),
		rng: rand.New(rand.NewSource(seed)),
	}
	p.x[stateAngle] = control.Clamp(theta0, -prm.Stop, prm.Stop)
	return p
}

// FromConfig builds the simulated rig described by cfg.
func FromConfig(c config.SimConfig) *Plant {
	return New(ParamsFromSim(c), c.InitialAngle, c.Seed)
}

// Hardware exposes p as the loop's collaborators.
func (p *Plant) Hardware() rig.Hardware {
	return rig.Hardware{Actuators: p, Relay: p, Sensor: p, Clock: p}
}

func (p *Plant) Energize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.energizes++
	if p.energized {
		return rig.ErrRelayEnergized
	}
	p.energized = true
	return nil
}

func (p *Plant) Attach() error {
	p.mu.Lock()
	p.attached = true
	p.mu.Unlock()
	return nil
}

func (p *Plant) Write(cmd rig.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.attached {
		return ErrNotAttached
	}
	p.cmd = cmd
	return nil
}

func (p *Plant) Read() (rig.Measurement, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fault != nil {
		return *p.fault, nil
	}
	v := p.prm.CountsCenter + p.prm.CountsPerRad*p.x[stateAngle] + p.rng.NormFloat64()*p.prm.Noise
	return rig.Measurement(control.Clamp(int(math.Round(v)), 0, p.prm.CountsMax)), nil
}

func (p *Plant) Millis() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return uint32(p.now / time.Millisecond)
}

// Sleep advances simulated time by d.
func (p *Plant) Sleep(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for d > 0 {
		h := min(d, substep)
		p.advance(h.Seconds())
		d -= h
	}
}

// Disturb applies an angular velocity kick in rad/s, like a tap on the beam.
func (p *Plant) Disturb(rate float64) {
	p.mu.Lock()
	p.x[stateRate] += rate
	p.mu.Unlock()
}

// SetDisturbance applies a constant external torque until changed.
func (p *Plant) SetDisturbance(torque float64) {
	p.mu.Lock()
	p.disturb = torque
	p.mu.Unlock()
}

// ForceReading makes the sensor report v regardless of the beam, emulating a
// loose wire. ClearFault restores normal readings.
func (p *Plant) ForceReading(v int) {
	m := rig.Measurement(v)
	p.mu.Lock()
	p.fault = &m
	p.mu.Unlock()
}

func (p *Plant) ClearFault() {
	p.mu.Lock()
	p.fault = nil
	p.mu.Unlock()
}

type State struct {
	Time      time.Duration
	Angle     float64
	Rate      float64
	ThrustL   float64
	ThrustR   float64
	Command   rig.Command
	Energized bool
	Energizes int
}

func (p *Plant) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		Time:      p.now,
		Angle:     p.x[stateAngle],
		Rate:      p.x[stateRate],
		ThrustL:   p.x[stateLeft],
		ThrustR:   p.x[stateRight],
		Command:   p.cmd,
		Energized: p.energized,
		Energizes: p.energizes,
	}
}

// throttle maps a pulse width to the thrust the actuator settles at.
func (p *Plant) throttle(pulse int) float64 {
	if !p.energized || !p.attached {
		return 0
	}
	f := float64(pulse-p.prm.PulseIdle) / float64(p.prm.PulseFull-p.prm.PulseIdle)
	f = control.Clamp(f, 0, 1)
	return p.prm.MaxThrust * f * f
}

func (p *Plant) derive(x, dx []float64) {
	tl := p.throttle(p.cmd.Left)
	tr := p.throttle(p.cmd.Right)

	torque := p.prm.Arm*(x[stateLeft]-x[stateRight]) -
		p.prm.Damping*x[stateRate] +
		p.prm.Topple*math.Sin(x[stateAngle]) -
		p.prm.Imbalance +
		p.disturb

	dx[stateAngle] = x[stateRate]
	dx[stateRate] = torque / p.prm.Inertia
	dx[stateLeft] = (tl - x[stateLeft]) / p.prm.MotorTau
	dx[stateRight] = (tr - x[stateRight]) / p.prm.MotorTau
}

func (p *Plant) advance(dt float64) {
	p.stepr.step(p.derive, p.x, dt)
	p.now += time.Duration(dt * float64(time.Second))

	stop := p.prm.Stop
	if p.x[stateAngle] > stop {
		p.x[stateAngle] = stop
		if p.x[stateRate] > 0 {
			p.x[stateRate] = -p.x[stateRate] * p.prm.Restitution
		}
	} else if p.x[stateAngle] < -stop {
		p.x[stateAngle] = -stop
		if p.x[stateRate] < 0 {
			p.x[stateRate] = -p.x[stateRate] * p.prm.Restitution
		}
	}
}
