package optim

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/seesaw/internal/config"
)

func shortConfig() config.Config {
	cfg := *config.DefaultConfig()
	cfg.Tuning.DurationMs = 3000
	return cfg
}

func TestSimulate(t *testing.T) {
	res, err := Simulate(context.Background(), shortConfig())
	require.NoError(t, err)

	assert.False(t, res.Aborted)
	assert.Zero(t, res.Trips)
	assert.NotEmpty(t, res.Samples)
	assert.Equal(t, 3000, res.Tuning.DurationMs)
}

func TestSimulate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Simulate(ctx, shortConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGridSearch_Points(t *testing.T) {
	g, err := NewGridSearch([]string{"kp", "kd"}, [][]float64{{0.1, 0.2}, {1, 2, 3}})
	require.NoError(t, err)

	pts := g.Points()
	require.Len(t, pts, 6)
	assert.Equal(t, map[string]float64{"kp": 0.1, "kd": 1}, pts[0])
	assert.Equal(t, map[string]float64{"kp": 0.1, "kd": 2}, pts[1])
	assert.Equal(t, map[string]float64{"kp": 0.2, "kd": 3}, pts[5])
}

func TestNewGridSearch_Rejects(t *testing.T) {
	_, err := NewGridSearch([]string{"gain"}, [][]float64{{1}})
	assert.Error(t, err)

	_, err = NewGridSearch([]string{"kp", "kd"}, [][]float64{{1}})
	assert.Error(t, err)

	_, err = NewGridSearch([]string{"kp"}, [][]float64{{}})
	assert.Error(t, err)

	_, err = NewGridSearch(nil, nil)
	assert.Error(t, err)
}

func TestGridSearch_Search(t *testing.T) {
	g, err := NewGridSearch([]string{"kp"}, [][]float64{{0.3, 0.6}})
	require.NoError(t, err)

	got, err := g.Search(context.Background(), shortConfig(), "mean_abs_error", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.LessOrEqual(t, got[0].Score, got[1].Score)
	for _, c := range got {
		assert.Equal(t, c.Point["kp"], c.Tuning.Kp)
		assert.Contains(t, c.Metrics, "mean_abs_error")
	}

	_, err = g.Search(context.Background(), shortConfig(), "happiness", 1)
	assert.Error(t, err)
}

func TestMonteCarlo_Reproducible(t *testing.T) {
	mc := MonteCarloConfig{Trials: 3, Seed: 42, Angle: 0.1, Imbalance: 0.01, Workers: 3}

	a, err := MonteCarlo(context.Background(), shortConfig(), mc, "settled_error")
	require.NoError(t, err)
	b, err := MonteCarlo(context.Background(), shortConfig(), mc, "settled_error")
	require.NoError(t, err)

	require.Len(t, a, 3)
	for i := range a {
		assert.Equal(t, a[i].Sim, b[i].Sim)
		assert.Equal(t, a[i].Score, b[i].Score)
		assert.LessOrEqual(t, math.Abs(a[i].Sim.InitialAngle), 0.1)
		assert.LessOrEqual(t, math.Abs(a[i].Sim.Imbalance), 0.01)
	}

	s := Summarize(a, math.Inf(1))
	assert.Equal(t, 3, s.Trials)
	assert.Equal(t, s.Trials, s.Stable+s.Tripped+s.Aborted)
}

func TestSummarize(t *testing.T) {
	trials := []Trial{
		{Candidate: Candidate{Score: 2}},
		{Candidate: Candidate{Score: 4}},
		{Candidate: Candidate{Score: 30}},
		{Candidate: Candidate{Score: math.Inf(1), Trips: 1}},
		{Candidate: Candidate{Score: math.Inf(1), Aborted: true}},
	}
	s := Summarize(trials, 10)

	assert.Equal(t, Summary{Trials: 5, Stable: 2, Tripped: 1, Aborted: 1, Mean: 3, Worst: 30}, s)
}

func TestLoadSweep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	data := "workers: 2\nparams:\n  kp: [0.3, 0.6]\n  integral_max: [40, 60, 80]\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	sweep, err := LoadSweep(path)
	require.NoError(t, err)
	assert.Equal(t, "mean_abs_error", sweep.Metric)
	assert.Equal(t, 2, sweep.Workers)

	g, err := sweep.Grid()
	require.NoError(t, err)
	assert.Equal(t, []string{"integral_max", "kp"}, g.paramNames)
	assert.Len(t, g.Points(), 6)
}
