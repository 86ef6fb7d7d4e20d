package control

import "math"

const (
	// MinDt floors the step interval so the derivative never divides by zero.
	MinDt = 1e-4

	// MinAlpha is the smallest filter coefficient accepted.
	MinAlpha = 1e-3

	// AntiWindupMargin is the fraction of DeltaMax below saturation at which
	// integration stops.
	AntiWindupMargin = 0.05
)

// Params is the controller's view of the tuning, read once per step.
type Params struct {
	Kp, Ki, Kd  float64
	Invert      bool
	DerivAlpha  float64
	IntegralMax float64
	DeltaMax    float64
	Setpoint    float64
}

// Terms are the individual contributions of the last step, in output units.
type Terms struct {
	P float64 `json:"p"`
	I float64 `json:"i"`
	D float64 `json:"d"`
}

func (t Terms) Sum() float64 { return t.P + t.I + t.D }

// PID computes the differential command that balances the beam.
//
// The derivative acts on the measurement rather than the error so that a
// setpoint change produces no kick, and it is low-pass filtered before use.
// The integrator is bounded to ±IntegralMax and frozen while the
// proportional and derivative terms alone already saturate the output.
type PID struct {
	integral   float64
	derivative float64
	prevY      float64
	primed     bool
	err        float64
	terms      Terms
}

func NewPID() *PID {
	return &PID{}
}

// Reset clears integral and derivative state
func (p *PID) Reset() {
	p.integral = 0
	p.derivative = 0
	p.prevY = 0
	p.primed = false
	p.err = 0
	p.terms = Terms{}
}

// Error returns the signed control error for a filtered measurement.
func Error(y float64, prm Params) float64 {
	e := prm.Setpoint - y
	if prm.Invert {
		e = -e
	}
	return e
}

// Step advances the controller by dt seconds given the filtered measurement y
// and returns the clamped differential command.
func (p *PID) Step(y, dt float64, prm Params) float64 {
	if dt < MinDt || math.IsNaN(dt) {
		dt = MinDt
	}
	dir := 1.0
	if prm.Invert {
		dir = -1.0
	}

	e := Error(y, prm)
	p.err = e

	if p.primed {
		raw := (y - p.prevY) / dt
		alpha := Clamp(prm.DerivAlpha, MinAlpha, 1)
		p.derivative += alpha * (raw - p.derivative)
	}
	p.prevY = y
	p.primed = true

	pTerm := prm.Kp * e
	dTerm := -prm.Kd * dir * p.derivative

	limit := math.Abs(prm.DeltaMax)
	if math.Abs(pTerm+dTerm) < limit*(1-AntiWindupMargin) {
		p.integral += prm.Ki * e * dt
	}
	p.ClampIntegral(prm.IntegralMax)

	p.terms = Terms{P: pTerm, I: p.integral, D: dTerm}
	return Clamp(p.terms.Sum(), -limit, limit)
}

// ClampIntegral re-applies the integral bound, used when IntegralMax shrinks
// between steps.
func (p *PID) ClampIntegral(limit float64) {
	limit = math.Abs(limit)
	p.integral = Clamp(p.integral, -limit, limit)
}

func (p *PID) Integral() float64 { return p.integral }

// Derivative returns the filtered dY/dt estimate.
func (p *PID) Derivative() float64 { return p.derivative }

func (p *PID) LastError() float64 { return p.err }

func (p *PID) Terms() Terms { return p.terms }
