package optim

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/metrics"
)

// Candidate is one evaluated tuning. Runs that tripped the interlock or
// aborted while staging score +Inf.
type Candidate struct {
	Point   map[string]float64 `json:"point"`
	Tuning  config.Tuning      `json:"tuning"`
	Metrics map[string]float64 `json:"metrics"`
	Trips   int                `json:"trips"`
	Aborted bool               `json:"aborted"`
	Score   float64            `json:"score"`
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, fmt.Errorf("optim: %d parameters with %d value lists", len(params), len(ranges))
	}
	for i, name := range params {
		if _, err := config.PatchField(name, 0); err != nil {
			return nil, err
		}
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("optim: no values for %s", name)
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Points enumerates every combination, the last parameter varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.collect(0, map[string]float64{}, &out)
	return out
}

func (g *GridSearch) collect(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}
	name := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		next := make(map[string]float64, len(current)+1)
		for k, v := range current {
			next[k] = v
		}
		next[name] = val
		g.collect(depth+1, next, out)
	}
}

// Search runs every grid point on the simulated rig and returns the
// candidates ordered best first by the named metric.
func (g *GridSearch) Search(ctx context.Context, base config.Config, metricName string, workers int) ([]Candidate, error) {
	if err := checkMetric(metricName); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	points := g.Points()
	results := make([]Candidate, len(points))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, pt := range points {
		eg.Go(func() error {
			cfg := base
			for _, name := range g.paramNames {
				p, _ := config.PatchField(name, pt[name])
				cfg.Tuning = cfg.Tuning.Apply(p, cfg.Rig)
			}
			c, err := evaluate(ctx, cfg, metricName)
			if err != nil {
				return err
			}
			c.Point = pt
			results[i] = c
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score < results[j].Score
	})
	return results, nil
}

func evaluate(ctx context.Context, cfg config.Config, metricName string) (Candidate, error) {
	res, err := Simulate(ctx, cfg)
	if err != nil {
		return Candidate{}, err
	}
	c := Candidate{
		Tuning:  res.Tuning,
		Metrics: metrics.Evaluate(res.Samples),
		Trips:   res.Trips,
		Aborted: res.Aborted,
		Score:   math.Inf(1),
	}
	if !c.Aborted && c.Trips == 0 && len(res.Samples) > 0 {
		c.Score = c.Metrics[metricName]
	}
	return c, nil
}

func checkMetric(name string) error {
	for _, n := range metrics.Names() {
		if n == name {
			return nil
		}
	}
	return fmt.Errorf("optim: unknown metric %q (available: %v)", name, metrics.Names())
}
