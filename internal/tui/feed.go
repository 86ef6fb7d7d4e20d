package tui

import (
	"github.com/san-kum/seesaw/internal/experiment"
)

// Feed hands the latest status from the control loop to a view running on
// another goroutine. Older snapshots are dropped, so the loop never waits.
type Feed struct {
	status chan experiment.Status
	runs   chan RunDone
}

type RunDone struct {
	Run    int
	Result experiment.Result
}

func NewFeed() *Feed {
	return &Feed{
		status: make(chan experiment.Status, 1),
		runs:   make(chan RunDone, 4),
	}
}

func (f *Feed) OnStep(st experiment.Status) {
	for {
		select {
		case f.status <- st:
			return
		default:
		}
		select {
		case <-f.status:
		default:
		}
	}
}

func (f *Feed) OnRunComplete(run int, res experiment.Result) {
	select {
	case f.runs <- RunDone{Run: run, Result: res}:
	default:
	}
}

func (f *Feed) Status() <-chan experiment.Status { return f.status }

func (f *Feed) Runs() <-chan RunDone { return f.runs }
