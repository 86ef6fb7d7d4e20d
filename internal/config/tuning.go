package config

import (
	"math"

	"github.com/san-kum/seesaw/internal/control"
)

// Tuning is the externally writable part of the configuration. Every write
// goes through Clamp, so an out-of-range request saturates instead of failing.
type Tuning struct {
	Kp          float64 `yaml:"kp" json:"kp"`
	Ki          float64 `yaml:"ki" json:"ki"`
	Kd          float64 `yaml:"kd" json:"kd"`
	Invert      bool    `yaml:"invert" json:"invert"`
	SensorAlpha float64 `yaml:"sensor_alpha" json:"sensor_alpha"`
	DerivAlpha  float64 `yaml:"deriv_alpha" json:"deriv_alpha"`
	IntegralMax float64 `yaml:"integral_max" json:"integral_max"`
	Setpoint    float64 `yaml:"setpoint" json:"setpoint"`
	Base        int     `yaml:"base" json:"base"`
	DeltaMax    int     `yaml:"delta_max" json:"delta_max"`
	SlewStep    int     `yaml:"slew_step" json:"slew_step"`
	DurationMs  int     `yaml:"duration_ms" json:"duration_ms"`
}

// Patch is a partial tuning write; nil fields are left unchanged.
type Patch struct {
	Kp          *float64 `yaml:"kp,omitempty" json:"kp,omitempty"`
	Ki          *float64 `yaml:"ki,omitempty" json:"ki,omitempty"`
	Kd          *float64 `yaml:"kd,omitempty" json:"kd,omitempty"`
	Invert      *bool    `yaml:"invert,omitempty" json:"invert,omitempty"`
	SensorAlpha *float64 `yaml:"sensor_alpha,omitempty" json:"sensor_alpha,omitempty"`
	DerivAlpha  *float64 `yaml:"deriv_alpha,omitempty" json:"deriv_alpha,omitempty"`
	IntegralMax *float64 `yaml:"integral_max,omitempty" json:"integral_max,omitempty"`
	Setpoint    *float64 `yaml:"setpoint,omitempty" json:"setpoint,omitempty"`
	Base        *int     `yaml:"base,omitempty" json:"base,omitempty"`
	DeltaMax    *int     `yaml:"delta_max,omitempty" json:"delta_max,omitempty"`
	SlewStep    *int     `yaml:"slew_step,omitempty" json:"slew_step,omitempty"`
	DurationMs  *int     `yaml:"duration_ms,omitempty" json:"duration_ms,omitempty"`
}

type Range struct {
	Min, Max float64
}

// Limits are the documented safe ranges for rig-independent fields. Setpoint,
// Base and DeltaMax are bounded by the rig instead.
var Limits = struct {
	Kp, Ki, Kd              Range
	SensorAlpha, DerivAlpha Range
	IntegralMax             Range
	SlewStep                Range
	DurationMs              Range
}{
	Kp:          Range{0, 20},
	Ki:          Range{0, 20},
	Kd:          Range{0, 5},
	SensorAlpha: Range{control.MinAlpha, 1},
	DerivAlpha:  Range{control.MinAlpha, 1},
	IntegralMax: Range{0, 500},
	SlewStep:    Range{1, 100},
	DurationMs:  Range{100, 600000},
}

func DefaultTuning() Tuning {
	return Tuning{
		Kp:          DefaultKp,
		Ki:          DefaultKi,
		Kd:          DefaultKd,
		SensorAlpha: 0.3,
		DerivAlpha:  0.2,
		IntegralMax: 60,
		Setpoint:    DefaultSetpoint,
		Base:        DefaultBase,
		DeltaMax:    150,
		SlewStep:    8,
		DurationMs:  DefaultDurationMs,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// clamp saturates v into the range. A NaN or infinite value has no
// direction to saturate in and lands on Min.
func (r Range) clamp(v float64) float64 {
	if !finite(v) {
		return r.Min
	}
	return control.Clamp(v, r.Min, r.Max)
}

func (r Range) clampInt(v int) int {
	return control.Clamp(v, int(r.Min), int(r.Max))
}

// Clamp returns the tuning saturated into its safe ranges for the given rig.
// DeltaMax is additionally limited so Base±DeltaMax never leaves the output
// range, which keeps the two commands symmetric.
func (t Tuning) Clamp(r Rig) Tuning {
	t.Kp = Limits.Kp.clamp(t.Kp)
	t.Ki = Limits.Ki.clamp(t.Ki)
	t.Kd = Limits.Kd.clamp(t.Kd)
	t.SensorAlpha = Limits.SensorAlpha.clamp(t.SensorAlpha)
	t.DerivAlpha = Limits.DerivAlpha.clamp(t.DerivAlpha)
	t.IntegralMax = Limits.IntegralMax.clamp(t.IntegralMax)
	t.SlewStep = Limits.SlewStep.clampInt(t.SlewStep)
	t.DurationMs = Limits.DurationMs.clampInt(t.DurationMs)

	if !finite(t.Setpoint) {
		t.Setpoint = float64(r.SafeMin+r.SafeMax) / 2
	}
	t.Setpoint = control.Clamp(t.Setpoint, float64(r.SafeMin), float64(r.SafeMax))
	t.Base = control.Clamp(t.Base, r.OutMin, r.OutMax)
	headroom := min(t.Base-r.OutMin, r.OutMax-t.Base)
	t.DeltaMax = control.Clamp(t.DeltaMax, 0, headroom)
	return t
}

// Apply writes the non-nil fields of p and clamps the result. Non-finite
// float fields are ignored and keep their current value.
func (t Tuning) Apply(p Patch, r Rig) Tuning {
	setFloat := func(dst *float64, v *float64) {
		if v != nil && finite(*v) {
			*dst = *v
		}
	}
	setFloat(&t.Kp, p.Kp)
	setFloat(&t.Ki, p.Ki)
	setFloat(&t.Kd, p.Kd)
	if p.Invert != nil {
		t.Invert = *p.Invert
	}
	setFloat(&t.SensorAlpha, p.SensorAlpha)
	setFloat(&t.DerivAlpha, p.DerivAlpha)
	setFloat(&t.IntegralMax, p.IntegralMax)
	setFloat(&t.Setpoint, p.Setpoint)
	if p.Base != nil {
		t.Base = *p.Base
	}
	if p.DeltaMax != nil {
		t.DeltaMax = *p.DeltaMax
	}
	if p.SlewStep != nil {
		t.SlewStep = *p.SlewStep
	}
	if p.DurationMs != nil {
		t.DurationMs = *p.DurationMs
	}
	return t.Clamp(r)
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}
