package rig

import "errors"

var (
	// ErrMissingCollaborator indicates a Hardware bundle with a nil member.
	ErrMissingCollaborator = errors.New("rig: missing hardware collaborator")

	// ErrRelayEnergized indicates a second attempt to energize actuator power.
	ErrRelayEnergized = errors.New("rig: relay already energized")
)
