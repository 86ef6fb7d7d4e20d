// Package rig defines the shared vocabulary of the balance rig.
//
// The package holds the types every other package agrees on and the
// collaborator interfaces the control loop talks to:
//
//   - [Measurement]: raw sample from the position sensor
//   - [Command]: commanded pulse width for the left and right actuator
//   - [Phase]: experiment phase (Booting, Arming, Idle, Running)
//   - [Actuators], [Relay], [Sensor]: hardware collaborators
//   - [Clock]: monotonic millisecond source that wraps at 2^32
//
// # Clock Arithmetic
//
// Millisecond timestamps are uint32 and wrap after roughly 49.7 days.
// Always compare them through [Since], never with < or >.
package rig
