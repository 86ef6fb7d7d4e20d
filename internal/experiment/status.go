package experiment

import (
	"time"

	"github.com/san-kum/seesaw/internal/control"
	"github.com/san-kum/seesaw/internal/rig"
)

// Status is a read-only snapshot of the loop for reporting.
type Status struct {
	Phase          rig.Phase     `json:"phase"`
	Staging        bool          `json:"staging"`
	Raw            int           `json:"raw"`
	Filtered       float64       `json:"filtered"`
	Error          float64       `json:"error"`
	Command        rig.Command   `json:"command"`
	Terms          control.Terms `json:"terms"`
	Integral       float64       `json:"integral"`
	ElapsedMs      uint32        `json:"elapsed_ms"`
	DurationMs     int           `json:"duration_ms"`
	Samples        int           `json:"samples"`
	Capacity       int           `json:"capacity"`
	Unsafe         bool          `json:"unsafe"`
	Trips          int           `json:"trips"`
	ServiceEnabled bool          `json:"service_enabled"`
	Runs           int           `json:"runs"`
	StepAvg        time.Duration `json:"step_avg_ns"`
	StepMax        time.Duration `json:"step_max_ns"`
}

// Observer is notified after every control step.
type Observer interface {
	OnStep(st Status)
}

// RunObserver is additionally told when a run finishes.
type RunObserver interface {
	Observer
	OnRunComplete(run int, result Result)
}
