package storage

import (
	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/diag"
	"github.com/san-kum/seesaw/internal/experiment"
	"github.com/san-kum/seesaw/internal/metrics"
)

// Recorder saves every finished run of a loop.
type Recorder struct {
	store  *Store
	rig    config.Rig
	source string
	log    diag.Sink

	// LastID is the id of the most recently saved run.
	LastID string
}

func NewRecorder(store *Store, rig config.Rig, source string, log diag.Sink) *Recorder {
	if log == nil {
		log = diag.Discard
	}
	return &Recorder{store: store, rig: rig, source: source, log: log}
}

func (r *Recorder) OnStep(experiment.Status) {}

func (r *Recorder) OnRunComplete(run int, res experiment.Result) {
	id, err := r.store.Save(RunMetadata{
		Run:       run,
		Source:    r.source,
		Tuning:    res.Tuning,
		Rig:       r.rig,
		ElapsedMs: res.ElapsedMs,
		Trips:     res.Trips,
		Aborted:   res.Aborted,
		Metrics:   metrics.Evaluate(res.Samples),
	}, res.Samples)
	if err != nil {
		r.log.Logf("storage: saving run %d: %v", run, err)
		return
	}
	r.LastID = id
	r.log.Logf("storage: run %d saved as %s", run, id)
}
