package experiment_test

import (
	"sync"
	"time"

	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/experiment"
	"github.com/san-kum/seesaw/internal/rig"
)

type fakeRig struct {
	value     rig.Measurement
	readErr   error
	writes    []rig.Command
	energized int
	attached  bool
}

func (f *fakeRig) Energize() error {
	f.energized++
	return nil
}

func (f *fakeRig) Attach() error {
	f.attached = true
	return nil
}

func (f *fakeRig) Write(cmd rig.Command) error {
	f.writes = append(f.writes, cmd)
	return nil
}

func (f *fakeRig) Read() (rig.Measurement, error) {
	return f.value, f.readErr
}

func (f *fakeRig) last() rig.Command {
	return f.writes[len(f.writes)-1]
}

// slowClock advances virtual time on Sleep but also yields real time, so a
// loop driven by Run stays busy long enough to observe from another goroutine.
type slowClock struct {
	mu  sync.Mutex
	now uint32
}

func (c *slowClock) Millis() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *slowClock) Sleep(d time.Duration) {
	time.Sleep(50 * time.Microsecond)
	c.mu.Lock()
	c.now += uint32(d / time.Millisecond)
	c.mu.Unlock()
}

type recorder struct {
	steps   int
	phases  []rig.Phase
	results []experiment.Result
}

func (r *recorder) OnStep(st experiment.Status) {
	r.steps++
	if len(r.phases) == 0 || r.phases[len(r.phases)-1] != st.Phase {
		r.phases = append(r.phases, st.Phase)
	}
}

func (r *recorder) OnRunComplete(run int, res experiment.Result) {
	r.results = append(r.results, res)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Rig.HighDwellMs = 20
	cfg.Rig.LowDwellMs = 20
	cfg.Tuning.DurationMs = 1000
	return cfg
}
