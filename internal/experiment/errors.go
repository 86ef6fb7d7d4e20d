package experiment

import "errors"

var (
	// ErrAlreadyRunning rejects a start request while a run is in progress.
	ErrAlreadyRunning = errors.New("experiment: run already in progress")

	// ErrNotArmed rejects a start request before the arming sequence completed.
	ErrNotArmed = errors.New("experiment: actuators not armed")

	// ErrServicePaused is returned to a client whose request could not be
	// delivered before its deadline, typically because a run is in progress.
	ErrServicePaused = errors.New("experiment: service paused")
)
