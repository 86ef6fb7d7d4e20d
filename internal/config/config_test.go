package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Rig.Validate(); err != nil {
		t.Fatalf("default rig invalid: %v", err)
	}
	if cfg.Rig.PeriodMs != 10 {
		t.Errorf("expected 10ms period, got %d", cfg.Rig.PeriodMs)
	}
	if cfg.Tuning != cfg.Tuning.Clamp(cfg.Rig) {
		t.Error("default tuning should already be within limits")
	}
}

func TestRigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Rig)
	}{
		{"inverted safe window", func(r *Rig) { r.SafeMin, r.SafeMax = 900, 100 }},
		{"inverted output range", func(r *Rig) { r.OutMin = r.OutMax }},
		{"arming narrower than output", func(r *Rig) { r.ArmMax = r.OutMax - 1 }},
		{"zero period", func(r *Rig) { r.PeriodMs = 0 }},
		{"zero sample divider", func(r *Rig) { r.SampleEvery = 0 }},
		{"zero capacity", func(r *Rig) { r.BufferCapacity = 0 }},
		{"negative dwell", func(r *Rig) { r.LowDwellMs = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DefaultRig()
			tt.mutate(&r)
			if err := r.Validate(); !errors.Is(err, ErrInvalidRig) {
				t.Errorf("expected ErrInvalidRig, got %v", err)
			}
		})
	}
}

func TestTuningApply_ClampsOutOfRange(t *testing.T) {
	r := DefaultRig()
	kp := 1000.0
	alpha := 0.0
	setpoint := 5000.0
	base := 1650
	delta := 400
	dur := 5

	got := DefaultTuning().Apply(Patch{
		Kp:          &kp,
		SensorAlpha: &alpha,
		Setpoint:    &setpoint,
		Base:        &base,
		DeltaMax:    &delta,
		DurationMs:  &dur,
	}, r)

	if got.Kp != Limits.Kp.Max {
		t.Errorf("expected kp clamped to %f, got %f", Limits.Kp.Max, got.Kp)
	}
	if got.SensorAlpha != Limits.SensorAlpha.Min {
		t.Errorf("expected alpha clamped to %f, got %f", Limits.SensorAlpha.Min, got.SensorAlpha)
	}
	if got.Setpoint != float64(r.SafeMax) {
		t.Errorf("expected setpoint clamped to %d, got %f", r.SafeMax, got.Setpoint)
	}
	if got.DeltaMax != r.OutMax-base {
		t.Errorf("expected delta clamped to headroom %d, got %d", r.OutMax-base, got.DeltaMax)
	}
	if got.DurationMs != int(Limits.DurationMs.Min) {
		t.Errorf("expected duration clamped to %f, got %d", Limits.DurationMs.Min, got.DurationMs)
	}
}

func TestTuningApply_PartialLeavesOthers(t *testing.T) {
	r := DefaultRig()
	before := DefaultTuning()
	ki := 0.9
	invert := true

	got := before.Apply(Patch{Ki: &ki, Invert: &invert}, r)
	if got.Ki != 0.9 || !got.Invert {
		t.Errorf("expected ki=0.9 invert=true, got %+v", got)
	}

	got.Ki, got.Invert = before.Ki, before.Invert
	if got != before {
		t.Errorf("untouched fields changed: %+v vs %+v", got, before)
	}

	if !(Patch{}).IsEmpty() {
		t.Error("expected empty patch")
	}
}

func TestGetPreset(t *testing.T) {
	p, ok := GetPreset("gentle")
	if !ok {
		t.Fatal("expected preset, got none")
	}
	if p.Kp != 0.3 {
		t.Errorf("expected kp 0.3, got %f", p.Kp)
	}

	if _, ok := GetPreset("nonexistent"); ok {
		t.Error("expected no preset for nonexistent name")
	}
}

func TestPresetsWithinLimits(t *testing.T) {
	r := DefaultRig()
	for _, name := range ListPresets() {
		p, _ := GetPreset(name)
		if p != p.Clamp(r) {
			t.Errorf("preset %s exceeds safe limits", name)
		}
	}
}

func TestLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seesaw.yaml")

	cfg := DefaultConfig()
	cfg.Tuning.Kp = 1.1
	cfg.Telemetry.MQTT.Broker = "localhost"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Tuning.Kp != 1.1 {
		t.Errorf("expected kp 1.1, got %f", loaded.Tuning.Kp)
	}
	if loaded.Telemetry.MQTT.Broker != "localhost" {
		t.Errorf("expected broker localhost, got %q", loaded.Telemetry.MQTT.Broker)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("tuning:\n  kd: 99\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Tuning.Kd != Limits.Kd.Max {
		t.Errorf("expected kd clamped to %f, got %f", Limits.Kd.Max, cfg.Tuning.Kd)
	}
	if cfg.Rig.OutMin != DefaultRig().OutMin {
		t.Errorf("expected default rig, got %+v", cfg.Rig)
	}
}

func TestHardwareDefaults(t *testing.T) {
	hw := DefaultConfig().Hardware
	if hw.LeftPin == hw.RightPin || hw.RelayPin == hw.LeftPin || hw.RelayPin == hw.RightPin {
		t.Errorf("expected distinct pins, got %+v", hw)
	}
	if hw.PWMHz <= 0 || hw.Baud <= 0 {
		t.Errorf("expected positive pwm rate and baud, got %+v", hw)
	}
	if hw.StaleMs <= DefaultPeriodMs {
		t.Errorf("expected stale limit above one period, got %d", hw.StaleMs)
	}
}

func TestHardwareValidate(t *testing.T) {
	if err := DefaultConfig().Hardware.Validate(); err != nil {
		t.Fatalf("default hardware invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*HardwareConfig)
	}{
		{"zero pwm rate", func(h *HardwareConfig) { h.PWMHz = 0 }},
		{"negative pwm rate", func(h *HardwareConfig) { h.PWMHz = -50 }},
		{"zero baud", func(h *HardwareConfig) { h.Baud = 0 }},
		{"zero stale limit", func(h *HardwareConfig) { h.StaleMs = 0 }},
		{"no serial port", func(h *HardwareConfig) { h.SerialPort = "" }},
		{"shared pin", func(h *HardwareConfig) { h.RelayPin = h.LeftPin }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := DefaultConfig().Hardware
			tt.mutate(&h)
			if err := h.Validate(); !errors.Is(err, ErrInvalidHardware) {
				t.Errorf("expected ErrInvalidHardware, got %v", err)
			}
		})
	}
}

func TestTuning_NonFiniteValues(t *testing.T) {
	r := DefaultRig()
	nan := math.NaN()
	inf := math.Inf(1)
	current := DefaultTuning()

	t.Run("patch keeps current value", func(t *testing.T) {
		got := current.Apply(Patch{Kp: &nan, IntegralMax: &nan, Setpoint: &inf, Kd: &inf}, r)
		if got != current {
			t.Errorf("expected tuning unchanged, got %+v", got)
		}
	})

	t.Run("clamp saturates fresh values", func(t *testing.T) {
		bad := current
		bad.Kp = nan
		bad.IntegralMax = nan
		bad.SensorAlpha = math.Inf(-1)
		bad.Setpoint = nan
		got := bad.Clamp(r)

		if got.Kp != Limits.Kp.Min {
			t.Errorf("expected kp %f, got %f", Limits.Kp.Min, got.Kp)
		}
		if got.IntegralMax != Limits.IntegralMax.Min {
			t.Errorf("expected integral_max %f, got %f", Limits.IntegralMax.Min, got.IntegralMax)
		}
		if got.SensorAlpha != Limits.SensorAlpha.Min {
			t.Errorf("expected sensor_alpha %f, got %f", Limits.SensorAlpha.Min, got.SensorAlpha)
		}
		if got.Setpoint < float64(r.SafeMin) || got.Setpoint > float64(r.SafeMax) {
			t.Errorf("expected setpoint inside the safe window, got %f", got.Setpoint)
		}
	})

	t.Run("load from yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nan.yaml")
		if err := os.WriteFile(path, []byte("tuning:\n  kp: .nan\n  integral_max: .inf\n"), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Tuning.Kp != Limits.Kp.Min {
			t.Errorf("expected kp %f, got %f", Limits.Kp.Min, cfg.Tuning.Kp)
		}
		if cfg.Tuning.IntegralMax != Limits.IntegralMax.Min {
			t.Errorf("expected integral_max %f, got %f", Limits.IntegralMax.Min, cfg.Tuning.IntegralMax)
		}
	})
}

func TestFields(t *testing.T) {
	r := DefaultRig()
	base := DefaultTuning()

	for _, name := range Fields() {
		v, err := base.Field(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		p, err := PatchField(name, v)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if p.IsEmpty() {
			t.Errorf("%s: expected a non-empty patch", name)
		}
		if got := base.Apply(p, r); got != base {
			t.Errorf("%s: writing the current value changed the tuning: %+v", name, got)
		}
	}

	if _, err := base.Field("gain"); err == nil {
		t.Error("expected error for unknown field")
	}
	if _, err := PatchField("gain", 1); err == nil {
		t.Error("expected error for unknown field")
	}
}
