// Package arming runs the one-shot actuator calibration that precedes any
// closed-loop control.
//
// The sequence energizes actuator power, attaches both outputs, ramps them to
// the top of the arming range and holds, then ramps to the bottom and holds.
// Actuator power is switched on exactly once per process and never off again:
// cycling it would desynchronize the actuators' own calibration from the
// pulse range the host assumes.
package arming

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/control"
	"github.com/san-kum/seesaw/internal/diag"
	"github.com/san-kum/seesaw/internal/rig"
)

var ErrAlreadyArmed = errors.New("arming: sequence already ran")

type Stage int

const (
	NotStarted Stage = iota
	RampHigh
	HoldHigh
	RampLow
	HoldLow
	Parked
)

func (s Stage) String() string {
	return [...]string{"not started", "ramp high", "hold high", "ramp low", "hold low", "parked"}[s]
}

type Params struct {
	ArmMin, ArmMax int
	OutMin         int
	SlewStep       int
	Period         time.Duration
	HighDwell      time.Duration
	LowDwell       time.Duration
}

func ParamsFromRig(r config.Rig) Params {
	return Params{
		ArmMin:    r.ArmMin,
		ArmMax:    r.ArmMax,
		OutMin:    r.OutMin,
		SlewStep:  r.ArmSlewStep,
		Period:    time.Duration(r.PeriodMs) * time.Millisecond,
		HighDwell: time.Duration(r.HighDwellMs) * time.Millisecond,
		LowDwell:  time.Duration(r.LowDwellMs) * time.Millisecond,
	}
}

type Sequencer struct {
	prm   Params
	act   rig.Actuators
	relay rig.Relay
	clock rig.Clock
	log   diag.Sink

	ran   bool
	stage Stage
	cmd   rig.Command
}

func New(prm Params, act rig.Actuators, relay rig.Relay, clock rig.Clock, log diag.Sink) *Sequencer {
	if log == nil {
		log = diag.Discard
	}
	if prm.Period <= 0 {
		prm.Period = time.Duration(config.DefaultPeriodMs) * time.Millisecond
	}
	return &Sequencer{prm: prm, act: act, relay: relay, clock: clock, log: log}
}

// Run performs the sequence and returns the parked command. Any call after
// the first returns ErrAlreadyArmed without touching the hardware, even if
// the first call failed part way.
func (s *Sequencer) Run(ctx context.Context) (rig.Command, error) {
	if s.ran {
		return s.cmd, ErrAlreadyArmed
	}
	s.ran = true

	if err := s.relay.Energize(); err != nil {
		return s.cmd, fmt.Errorf("arming: energize relay: %w", err)
	}
	if err := s.act.Attach(); err != nil {
		return s.cmd, fmt.Errorf("arming: attach actuators: %w", err)
	}
	s.log.Logf("arming: power on, outputs attached")

	s.cmd = rig.Both(s.prm.ArmMin)
	if err := s.act.Write(s.cmd); err != nil {
		return s.cmd, fmt.Errorf("arming: initial write: %w", err)
	}

	steps := []struct {
		stage Stage
		run   func(context.Context) error
	}{
		{RampHigh, func(ctx context.Context) error { return s.ramp(ctx, s.prm.ArmMax) }},
		{HoldHigh, func(ctx context.Context) error { return s.hold(ctx, s.prm.HighDwell) }},
		{RampLow, func(ctx context.Context) error { return s.ramp(ctx, s.prm.ArmMin) }},
		{HoldLow, func(ctx context.Context) error { return s.hold(ctx, s.prm.LowDwell) }},
		{Parked, func(ctx context.Context) error { return s.ramp(ctx, s.prm.OutMin) }},
	}
	for _, step := range steps {
		s.stage = step.stage
		if err := step.run(ctx); err != nil {
			return s.cmd, fmt.Errorf("arming: %s: %w", step.stage, err)
		}
	}

	s.log.Logf("arming: complete, parked at %d", s.prm.OutMin)
	return s.cmd, nil
}

func (s *Sequencer) ramp(ctx context.Context, target int) error {
	for {
		next, done := control.SlewPair(s.cmd, rig.Both(target), s.prm.SlewStep)
		if next != s.cmd {
			if err := s.act.Write(next); err != nil {
				return err
			}
			s.cmd = next
		}
		if done {
			return nil
		}
		if err := s.wait(ctx, s.prm.Period); err != nil {
			return err
		}
	}
}

// hold keeps refreshing the current command until d has elapsed.
func (s *Sequencer) hold(ctx context.Context, d time.Duration) error {
	start := s.clock.Millis()
	total := uint32(d / time.Millisecond)
	for rig.Since(s.clock.Millis(), start) < total {
		if err := s.act.Write(s.cmd); err != nil {
			return err
		}
		remaining := time.Duration(total-rig.Since(s.clock.Millis(), start)) * time.Millisecond
		if err := s.wait(ctx, min(remaining, s.prm.Period)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.clock.Sleep(d)
	return nil
}

func (s *Sequencer) Stage() Stage { return s.stage }

// Armed reports whether the sequence completed.
func (s *Sequencer) Armed() bool { return s.stage == Parked && s.ran }

func (s *Sequencer) Command() rig.Command { return s.cmd }
