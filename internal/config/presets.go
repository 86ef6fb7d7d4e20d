package config

import "sort"

// Presets are named tunings for the default rig.
var Presets = map[string]Tuning{
	"default": DefaultTuning(),
	"gentle": {
		Kp: 0.3, Ki: 0.1, Kd: 0.04,
		SensorAlpha: 0.2, DerivAlpha: 0.15, IntegralMax: 40,
		Setpoint: DefaultSetpoint, Base: 1250, DeltaMax: 90, SlewStep: 4,
		DurationMs: 15000,
	},
	"aggressive": {
		Kp: 1.2, Ki: 0.6, Kd: 0.15,
		SensorAlpha: 0.5, DerivAlpha: 0.3, IntegralMax: 100,
		Setpoint: DefaultSetpoint, Base: 1350, DeltaMax: 250, SlewStep: 15,
		DurationMs: 8000,
	},
	"integral_only": {
		Ki: 0.8,
		SensorAlpha: 0.3, DerivAlpha: 0.2, IntegralMax: 120,
		Setpoint: DefaultSetpoint, Base: DefaultBase, DeltaMax: 150, SlewStep: 8,
		DurationMs: DefaultDurationMs,
	},
	"step_response": {
		Kp: DefaultKp, Ki: DefaultKi, Kd: DefaultKd,
		SensorAlpha: 0.3, DerivAlpha: 0.2, IntegralMax: 60,
		Setpoint: 600, Base: DefaultBase, DeltaMax: 150, SlewStep: 8,
		DurationMs: 5000,
	},
}

func GetPreset(name string) (Tuning, bool) {
	t, ok := Presets[name]
	return t, ok
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
