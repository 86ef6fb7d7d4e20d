package optim

import (
	"context"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/seesaw/internal/config"
)

// MonteCarloConfig perturbs the simulated rig around cfg.Sim.
type MonteCarloConfig struct {
	Trials    int
	Seed      int64
	Angle     float64 // initial angle is drawn from ±Angle rad
	Imbalance float64 // imbalance torque is drawn from ±Imbalance
	Workers   int
}

type Trial struct {
	Sim config.SimConfig `json:"sim"`
	Candidate
}

// MonteCarlo runs one tuning against randomly perturbed rigs.
func MonteCarlo(ctx context.Context, base config.Config, mc MonteCarloConfig, metricName string) ([]Trial, error) {
	if err := checkMetric(metricName); err != nil {
		return nil, err
	}
	workers := mc.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	rng := rand.New(rand.NewSource(mc.Seed))
	sims := make([]config.SimConfig, mc.Trials)
	for i := range sims {
		s := base.Sim
		s.Seed = rng.Int63()
		s.InitialAngle = (rng.Float64()*2 - 1) * mc.Angle
		s.Imbalance = (rng.Float64()*2 - 1) * mc.Imbalance
		sims[i] = s
	}

	trials := make([]Trial, len(sims))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, s := range sims {
		eg.Go(func() error {
			cfg := base
			cfg.Sim = s
			c, err := evaluate(ctx, cfg, metricName)
			if err != nil {
				return err
			}
			trials[i] = Trial{Sim: s, Candidate: c}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return trials, nil
}

type Summary struct {
	Trials  int
	Stable  int
	Tripped int
	Aborted int
	Mean    float64 // mean score over stable trials
	Worst   float64
}

// Summarize counts a trial as stable when it finished without tripping and
// scored within limit.
func Summarize(trials []Trial, limit float64) Summary {
	s := Summary{Trials: len(trials)}
	var sum float64
	for _, t := range trials {
		switch {
		case t.Aborted:
			s.Aborted++
			continue
		case t.Trips > 0:
			s.Tripped++
			continue
		}
		if !math.IsInf(t.Score, 1) {
			s.Worst = math.Max(s.Worst, t.Score)
		}
		if t.Score <= limit {
			s.Stable++
			sum += t.Score
		}
	}
	if s.Stable > 0 {
		s.Mean = sum / float64(s.Stable)
	}
	return s
}
