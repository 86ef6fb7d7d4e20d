// Package experiment owns the control loop: the safety interlock, the
// Idle/Running state machine, the balance controller and the sample buffer.
//
// A Loop is single-owner. Step, Start and ApplyTuning must be called from one
// goroutine; Run does that and services external requests between steps while
// the loop is idle.
package experiment

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/seesaw/internal/arming"
	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/control"
	"github.com/san-kum/seesaw/internal/diag"
	"github.com/san-kum/seesaw/internal/metrics"
	"github.com/san-kum/seesaw/internal/rig"
	"github.com/san-kum/seesaw/internal/sampling"
)

// Result is a finished run.
type Result struct {
	Tuning    config.Tuning     `json:"tuning"`
	Samples   []sampling.Sample `json:"samples"`
	ElapsedMs uint32            `json:"elapsed_ms"`
	Trips     int               `json:"trips"`
	Aborted   bool              `json:"aborted"`
}

type Loop struct {
	rig    config.Rig
	tuning config.Tuning
	hw     rig.Hardware
	log    diag.Sink

	seq       *arming.Sequencer
	filter    *control.Smoother
	pid       *control.PID
	buf       *sampling.Buffer
	interlock *Interlock
	timing    *metrics.Durations

	phase   rig.Phase
	staging bool
	cmd     rig.Command
	raw     rig.Measurement

	lastMs    uint32
	requestMs uint32
	startMs   uint32
	elapsedMs uint32
	steps     int
	runs      int
	runTrips  int

	observers []Observer
}

func New(cfg *config.Config, hw rig.Hardware, log diag.Sink) (*Loop, error) {
	if err := hw.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Rig.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = diag.Discard
	}
	t := cfg.Tuning.Clamp(cfg.Rig)
	return &Loop{
		rig:       cfg.Rig,
		tuning:    t,
		hw:        hw,
		log:       log,
		seq:       arming.New(arming.ParamsFromRig(cfg.Rig), hw.Actuators, hw.Relay, hw.Clock, log),
		filter:    control.NewSmoother(t.SensorAlpha),
		pid:       control.NewPID(),
		buf:       sampling.NewBuffer(cfg.Rig.BufferCapacity),
		interlock: NewInterlock(cfg.Rig.SafeMin, cfg.Rig.SafeMax),
		timing:    metrics.NewDurations(256),
		phase:     rig.Booting,
	}, nil
}

func (l *Loop) AddObserver(o Observer) { l.observers = append(l.observers, o) }

// Arm runs the one-shot arming sequence and leaves the loop Idle with both
// outputs parked at the minimum command.
func (l *Loop) Arm(ctx context.Context) error {
	if l.phase != rig.Booting {
		return arming.ErrAlreadyArmed
	}
	l.phase = rig.Arming
	l.notify()

	cmd, err := l.seq.Run(ctx)
	l.cmd = cmd
	if err != nil {
		return err
	}

	l.filter.Reset(l.tuning.Setpoint)
	l.lastMs = l.hw.Clock.Millis()
	l.phase = rig.Idle
	l.log.Logf("loop: armed, idle at %s", l.cmd)
	l.notify()
	return nil
}

// Start requests a run. The outputs are first slewed to the base command;
// the controller and the duration timer start once they arrive.
func (l *Loop) Start() error {
	switch l.phase {
	case rig.Booting, rig.Arming:
		return ErrNotArmed
	case rig.Running:
		return ErrAlreadyRunning
	}

	l.pid.Reset()
	l.buf.Reset()
	l.filter.Reset(l.tuning.Setpoint)
	l.phase = rig.Running
	l.staging = true
	l.requestMs = l.hw.Clock.Millis()
	l.elapsedMs = 0
	l.steps = 0
	l.runTrips = 0
	l.log.Logf("loop: run %d requested, staging to base %d", l.runs+1, l.tuning.Base)
	l.notify()
	return nil
}

// Step performs one control period.
func (l *Loop) Step() {
	if l.phase == rig.Booting || l.phase == rig.Arming {
		return
	}

	now := l.hw.Clock.Millis()
	dt := float64(rig.Since(now, l.lastMs)) / 1000
	l.lastMs = now

	raw, err := l.hw.Sensor.Read()
	if err == nil {
		l.raw = raw
	}
	safe, changed := l.interlock.Check(raw, err)
	if !safe {
		l.park()
		if changed {
			l.runTrips++
			if err != nil {
				l.log.Logf("loop: sensor read failed, outputs parked: %v", err)
			} else {
				l.log.Logf("loop: measurement %d outside [%d, %d], outputs parked", raw, l.rig.SafeMin, l.rig.SafeMax)
			}
		}
	} else if changed {
		l.log.Logf("loop: measurement %d back in range", raw)
	}

	if l.phase == rig.Running && l.expired(now) {
		l.finish(now)
		return
	}
	if !safe {
		l.notify()
		return
	}

	f := l.filter.Update(float64(raw))
	if l.phase != rig.Running {
		l.notify()
		return
	}

	if l.staging {
		l.stage(now)
		l.notify()
		return
	}

	l.elapsedMs = rig.Since(now, l.startMs)
	prm := l.tuning.Params()
	delta := l.pid.Step(f, dt, prm)
	target := control.ClampCommand(
		rig.Differential(l.tuning.Base, int(math.Round(delta))),
		l.rig.OutMin, l.rig.OutMax,
	)
	next, _ := control.SlewPair(l.cmd, target, l.tuning.SlewStep)
	l.write(next)

	if l.steps%l.rig.SampleEvery == 0 {
		terms := l.pid.Terms()
		l.buf.Add(sampling.Sample{
			OffsetMs: l.elapsedMs,
			Raw:      int(raw),
			Filtered: f,
			Error:    l.pid.LastError(),
			P:        terms.P,
			I:        terms.I,
			D:        terms.D,
		})
	}
	l.steps++
	l.notify()
}

func (l *Loop) stage(now uint32) {
	next, done := control.SlewPair(l.cmd, rig.Both(l.tuning.Base), l.tuning.SlewStep)
	l.write(next)
	if !done {
		return
	}
	l.staging = false
	l.pid.Reset()
	l.startMs = now
	l.elapsedMs = 0
	l.log.Logf("loop: run %d started at base %d for %dms", l.runs+1, l.tuning.Base, l.tuning.DurationMs)
}

// expired reports whether the run has reached its duration. Staging that
// cannot reach the base within one duration, for instance because the
// interlock keeps the outputs parked, ends the run as aborted.
func (l *Loop) expired(now uint32) bool {
	d := uint32(l.tuning.DurationMs)
	if l.staging {
		return rig.Since(now, l.requestMs) >= d
	}
	return rig.Since(now, l.startMs) >= d
}

// finish is the hard stop at the end of a run: outputs go straight to the
// minimum without slewing.
func (l *Loop) finish(now uint32) {
	aborted := l.staging
	if !aborted {
		l.elapsedMs = rig.Since(now, l.startMs)
	}
	l.park()
	l.buf.Finalize()
	l.phase = rig.Idle
	l.staging = false
	l.runs++

	if aborted {
		l.log.Logf("loop: run %d aborted, outputs never reached base", l.runs)
	} else {
		l.log.Logf("loop: run %d finished after %dms with %d samples", l.runs, l.elapsedMs, l.buf.Len())
	}

	st := l.Status()
	var res *Result
	for _, o := range l.observers {
		o.OnStep(st)
		ro, ok := o.(RunObserver)
		if !ok {
			continue
		}
		if res == nil {
			samples, _ := l.buf.Samples()
			res = &Result{
				Tuning:    l.tuning,
				Samples:   samples,
				ElapsedMs: l.elapsedMs,
				Trips:     l.runTrips,
				Aborted:   aborted,
			}
		}
		ro.OnRunComplete(l.runs, *res)
	}
}

func (l *Loop) park() {
	l.write(rig.Both(l.rig.OutMin))
}

func (l *Loop) write(cmd rig.Command) {
	if err := l.hw.Actuators.Write(cmd); err != nil {
		l.log.Logf("loop: actuator write %s failed: %v", cmd, err)
	}
	l.cmd = cmd
}

func (l *Loop) notify() {
	if len(l.observers) == 0 {
		return
	}
	st := l.Status()
	for _, o := range l.observers {
		o.OnStep(st)
	}
}

func (l *Loop) Tuning() config.Tuning { return l.tuning }

func (l *Loop) Rig() config.Rig { return l.rig }

// ApplyTuning writes the non-nil fields of p, saturating each into its safe
// range, and returns the tuning now in effect.
func (l *Loop) ApplyTuning(p config.Patch) config.Tuning {
	l.tuning = l.tuning.Apply(p, l.rig)
	l.filter.SetAlpha(l.tuning.SensorAlpha)
	l.pid.ClampIntegral(l.tuning.IntegralMax)
	if !p.IsEmpty() {
		l.log.Logf("loop: tuning updated: kp=%.3f ki=%.3f kd=%.3f setpoint=%.0f base=%d",
			l.tuning.Kp, l.tuning.Ki, l.tuning.Kd, l.tuning.Setpoint, l.tuning.Base)
	}
	return l.tuning
}

// Samples returns the buffer of the last finished run.
func (l *Loop) Samples() ([]sampling.Sample, error) {
	return l.buf.Samples()
}

func (l *Loop) Phase() rig.Phase { return l.phase }

// ServiceEnabled reports whether external requests may be serviced. It is
// false for the whole of a run, staging included.
func (l *Loop) ServiceEnabled() bool { return l.phase == rig.Idle }

func (l *Loop) Command() rig.Command { return l.cmd }

func (l *Loop) Integral() float64 { return l.pid.Integral() }

func (l *Loop) Status() Status {
	return Status{
		Phase:          l.phase,
		Staging:        l.staging,
		Raw:            int(l.raw),
		Filtered:       l.filter.Value(),
		Error:          l.pid.LastError(),
		Command:        l.cmd,
		Terms:          l.pid.Terms(),
		Integral:       l.pid.Integral(),
		ElapsedMs:      l.elapsedMs,
		DurationMs:     l.tuning.DurationMs,
		Samples:        l.buf.Len(),
		Capacity:       l.buf.Cap(),
		Unsafe:         l.interlock.Tripped(),
		Trips:          l.interlock.Trips(),
		ServiceEnabled: l.ServiceEnabled(),
		Runs:           l.runs,
		StepAvg:        l.timing.Average(),
		StepMax:        l.timing.Max(),
	}
}

func (l *Loop) String() string {
	return fmt.Sprintf("loop(%s %s)", l.phase, l.cmd)
}
