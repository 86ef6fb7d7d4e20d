// Package control provides the numerical building blocks of the balance loop.
//
//   - [Smoother]: exponential filter for the raw sensor reading
//   - [PID]: differential balance controller with anti-windup and a filtered
//     derivative on measurement
//   - [Slew] and [SlewPair]: rate limiting for actuator commands
//
// # Usage
//
//	f := control.NewSmoother(0.2)
//	pid := control.NewPID()
//	y := f.Update(float64(raw))
//	delta := pid.Step(y, dt, params)
//	next, _ := control.SlewPair(cmd, rig.Differential(base, int(math.Round(delta))), slew)
//
// None of the types are safe for concurrent use; the control loop owns them.
package control
