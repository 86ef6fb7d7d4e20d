package config

import (
	"fmt"
	"sort"
)

// field binds a tuning name, as used in yaml and on the wire, to its value.
type field struct {
	get func(Tuning) float64
	set func(*Patch, float64)
}

func intp(v float64) *int {
	n := int(v)
	return &n
}

var fields = map[string]field{
	"kp":           {func(t Tuning) float64 { return t.Kp }, func(p *Patch, v float64) { p.Kp = &v }},
	"ki":           {func(t Tuning) float64 { return t.Ki }, func(p *Patch, v float64) { p.Ki = &v }},
	"kd":           {func(t Tuning) float64 { return t.Kd }, func(p *Patch, v float64) { p.Kd = &v }},
	"sensor_alpha": {func(t Tuning) float64 { return t.SensorAlpha }, func(p *Patch, v float64) { p.SensorAlpha = &v }},
	"deriv_alpha":  {func(t Tuning) float64 { return t.DerivAlpha }, func(p *Patch, v float64) { p.DerivAlpha = &v }},
	"integral_max": {func(t Tuning) float64 { return t.IntegralMax }, func(p *Patch, v float64) { p.IntegralMax = &v }},
	"setpoint":     {func(t Tuning) float64 { return t.Setpoint }, func(p *Patch, v float64) { p.Setpoint = &v }},
	"base":         {func(t Tuning) float64 { return float64(t.Base) }, func(p *Patch, v float64) { p.Base = intp(v) }},
	"delta_max":    {func(t Tuning) float64 { return float64(t.DeltaMax) }, func(p *Patch, v float64) { p.DeltaMax = intp(v) }},
	"slew_step":    {func(t Tuning) float64 { return float64(t.SlewStep) }, func(p *Patch, v float64) { p.SlewStep = intp(v) }},
	"duration_ms":  {func(t Tuning) float64 { return float64(t.DurationMs) }, func(p *Patch, v float64) { p.DurationMs = intp(v) }},
}

// Fields lists the numeric tuning names accepted by Field and PatchField.
func Fields() []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Field reads a numeric tuning value by name.
func (t Tuning) Field(name string) (float64, error) {
	f, ok := fields[name]
	if !ok {
		return 0, fmt.Errorf("config: unknown tuning field %q", name)
	}
	return f.get(t), nil
}

// PatchField returns a patch writing v to the named field. Integer fields
// truncate.
func PatchField(name string, v float64) (Patch, error) {
	var p Patch
	f, ok := fields[name]
	if !ok {
		return p, fmt.Errorf("config: unknown tuning field %q", name)
	}
	f.set(&p, v)
	return p, nil
}
