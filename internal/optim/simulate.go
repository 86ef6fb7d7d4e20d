// Package optim tunes the controller offline against the simulated rig:
// grid searches over tuning fields and Monte Carlo robustness checks.
package optim

import (
	"context"
	"errors"
	"time"

	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/experiment"
	"github.com/san-kum/seesaw/internal/plant"
)

var ErrNoResult = errors.New("optim: run did not finish")

type waiter struct {
	done   bool
	result experiment.Result
}

func (w *waiter) OnStep(experiment.Status) {}

func (w *waiter) OnRunComplete(_ int, res experiment.Result) {
	w.done = true
	w.result = res
}

// Simulate arms a fresh simulated rig built from cfg.Sim and records one
// run. The loop is stepped directly on simulated time, so a run takes a
// fraction of its wall-clock duration.
func Simulate(ctx context.Context, cfg config.Config) (experiment.Result, error) {
	p := plant.FromConfig(cfg.Sim)
	loop, err := experiment.New(&cfg, p.Hardware(), nil)
	if err != nil {
		return experiment.Result{}, err
	}
	w := &waiter{}
	loop.AddObserver(w)

	if err := loop.Arm(ctx); err != nil {
		return experiment.Result{}, err
	}
	if err := loop.Start(); err != nil {
		return experiment.Result{}, err
	}

	period := time.Duration(cfg.Rig.PeriodMs) * time.Millisecond
	// staging and running are each bounded by the run duration
	limit := 2*loop.Tuning().DurationMs/cfg.Rig.PeriodMs + 100
	for i := 0; !w.done; i++ {
		if i >= limit {
			return experiment.Result{}, ErrNoResult
		}
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return experiment.Result{}, err
			}
		}
		loop.Step()
		p.Sleep(period)
	}
	return w.result, nil
}
