package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/seesaw/internal/control"
)

const (
	DefaultPeriodMs    = 10
	DefaultDurationMs  = 10000
	DefaultSetpoint    = 512
	DefaultBase        = 1300
	DefaultKp          = 0.6
	DefaultKi          = 0.3
	DefaultKd          = 0.08
	DefaultDataDir     = ".seesaw"
	DefaultHTTPAddr    = ":8080"
	DefaultMQTTPort    = 1883
	DefaultMQTTPrefix  = "seesaw"
	DefaultSampleEvery = 5
)

var (
	ErrInvalidRig      = errors.New("config: invalid rig parameters")
	ErrInvalidHardware = errors.New("config: invalid hardware parameters")
)

type Config struct {
	Rig       Rig             `yaml:"rig"`
	Tuning    Tuning          `yaml:"tuning"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Storage   StorageConfig   `yaml:"storage"`
	Sim       SimConfig       `yaml:"sim"`
	Hardware  HardwareConfig  `yaml:"hardware"`
}

// Rig holds device constants. They are fixed for the life of the process.
type Rig struct {
	SafeMin        int `yaml:"safe_min" json:"safe_min"`
	SafeMax        int `yaml:"safe_max" json:"safe_max"`
	OutMin         int `yaml:"out_min" json:"out_min"`
	OutMax         int `yaml:"out_max" json:"out_max"`
	ArmMin         int `yaml:"arm_min" json:"arm_min"`
	ArmMax         int `yaml:"arm_max" json:"arm_max"`
	ArmSlewStep    int `yaml:"arm_slew_step" json:"arm_slew_step"`
	HighDwellMs    int `yaml:"high_dwell_ms" json:"high_dwell_ms"`
	LowDwellMs     int `yaml:"low_dwell_ms" json:"low_dwell_ms"`
	PeriodMs       int `yaml:"period_ms" json:"period_ms"`
	SampleEvery    int `yaml:"sample_every" json:"sample_every"`
	BufferCapacity int `yaml:"buffer_capacity" json:"buffer_capacity"`
}

type TelemetryConfig struct {
	HTTPAddr string     `yaml:"http_addr"`
	MQTT     MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig describes the optional broker bridge. An empty Broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Prefix   string `yaml:"prefix"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// SimConfig parameterizes the simulated rig.
type SimConfig struct {
	Seed         int64   `yaml:"seed"`
	Noise        float64 `yaml:"noise"`
	InitialAngle float64 `yaml:"initial_angle"`
	Imbalance    float64 `yaml:"imbalance"`
}

// HardwareConfig describes the physical rig: two PWM channels driving the
// actuators, a GPIO line switching their power and a serial link to the
// position sensor. Pins use BCM numbering.
type HardwareConfig struct {
	SerialPort     string `yaml:"serial_port"`
	Baud           int    `yaml:"baud"`
	LeftPin        int    `yaml:"left_pin"`
	RightPin       int    `yaml:"right_pin"`
	RelayPin       int    `yaml:"relay_pin"`
	RelayActiveLow bool   `yaml:"relay_active_low"`
	PWMHz          int    `yaml:"pwm_hz"`
	StaleMs        int    `yaml:"stale_ms"`
}

func DefaultRig() Rig {
	return Rig{
		SafeMin:        80,
		SafeMax:        940,
		OutMin:         1000,
		OutMax:         1700,
		ArmMin:         1000,
		ArmMax:         2000,
		ArmSlewStep:    50,
		HighDwellMs:    2000,
		LowDwellMs:     2000,
		PeriodMs:       DefaultPeriodMs,
		SampleEvery:    DefaultSampleEvery,
		BufferCapacity: 400,
	}
}

func DefaultConfig() *Config {
	return &Config{
		Rig:    DefaultRig(),
		Tuning: DefaultTuning(),
		Telemetry: TelemetryConfig{
			HTTPAddr: DefaultHTTPAddr,
			MQTT: MQTTConfig{
				Port:     DefaultMQTTPort,
				ClientID: "seesaw",
				Prefix:   DefaultMQTTPrefix,
			},
		},
		Storage: StorageConfig{DataDir: DefaultDataDir},
		Sim: SimConfig{
			Seed:         1,
			Noise:        1.5,
			InitialAngle: 0.15,
			Imbalance:    0.02,
		},
		Hardware: HardwareConfig{
			SerialPort: "/dev/ttyACM0",
			Baud:       115200,
			LeftPin:    12,
			RightPin:   13,
			RelayPin:   17,
			PWMHz:      50,
			StaleMs:    100,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Rig.Validate(); err != nil {
		return nil, err
	}
	cfg.Tuning = cfg.Tuning.Clamp(cfg.Rig)
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (h HardwareConfig) Validate() error {
	switch {
	case h.SerialPort == "":
		return fmt.Errorf("%w: serial_port is required", ErrInvalidHardware)
	case h.Baud <= 0:
		return fmt.Errorf("%w: baud must be positive", ErrInvalidHardware)
	case h.PWMHz <= 0:
		return fmt.Errorf("%w: pwm_hz must be positive", ErrInvalidHardware)
	case h.StaleMs <= 0:
		return fmt.Errorf("%w: stale_ms must be positive", ErrInvalidHardware)
	case h.LeftPin == h.RightPin || h.RelayPin == h.LeftPin || h.RelayPin == h.RightPin:
		return fmt.Errorf("%w: pins %d, %d and %d must be distinct", ErrInvalidHardware, h.LeftPin, h.RightPin, h.RelayPin)
	}
	return nil
}

func (r Rig) Validate() error {
	switch {
	case r.SafeMin >= r.SafeMax:
		return fmt.Errorf("%w: safe_min %d >= safe_max %d", ErrInvalidRig, r.SafeMin, r.SafeMax)
	case r.OutMin >= r.OutMax:
		return fmt.Errorf("%w: out_min %d >= out_max %d", ErrInvalidRig, r.OutMin, r.OutMax)
	case r.ArmMin > r.OutMin || r.ArmMax < r.OutMax:
		return fmt.Errorf("%w: arming range [%d, %d] must contain [%d, %d]", ErrInvalidRig, r.ArmMin, r.ArmMax, r.OutMin, r.OutMax)
	case r.ArmSlewStep <= 0:
		return fmt.Errorf("%w: arm_slew_step must be positive", ErrInvalidRig)
	case r.HighDwellMs < 0 || r.LowDwellMs < 0:
		return fmt.Errorf("%w: dwell times must not be negative", ErrInvalidRig)
	case r.PeriodMs <= 0:
		return fmt.Errorf("%w: period_ms must be positive", ErrInvalidRig)
	case r.SampleEvery <= 0:
		return fmt.Errorf("%w: sample_every must be positive", ErrInvalidRig)
	case r.BufferCapacity <= 0:
		return fmt.Errorf("%w: buffer_capacity must be positive", ErrInvalidRig)
	}
	return nil
}

// Params maps the tuning onto the controller's parameter set.
func (t Tuning) Params() control.Params {
	return control.Params{
		Kp:          t.Kp,
		Ki:          t.Ki,
		Kd:          t.Kd,
		Invert:      t.Invert,
		DerivAlpha:  t.DerivAlpha,
		IntegralMax: t.IntegralMax,
		DeltaMax:    float64(t.DeltaMax),
		Setpoint:    t.Setpoint,
	}
}
