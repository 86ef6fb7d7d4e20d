package control

import (
	"golang.org/x/exp/constraints"

	"github.com/san-kum/seesaw/internal/rig"
)

type number interface {
	constraints.Integer | constraints.Float
}

// Clamp limits v to [lo, hi].
func Clamp[T number](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Slew moves current toward target by at most maxStep. A non-positive
// maxStep holds the output where it is.
func Slew(current, target, maxStep int) int {
	if maxStep <= 0 {
		return current
	}
	diff := target - current
	switch {
	case diff > maxStep:
		return current + maxStep
	case diff < -maxStep:
		return current - maxStep
	default:
		return target
	}
}

// SlewPair drives both channels toward their targets and reports whether both
// have arrived.
func SlewPair(current, target rig.Command, maxStep int) (rig.Command, bool) {
	next := rig.Command{
		Left:  Slew(current.Left, target.Left, maxStep),
		Right: Slew(current.Right, target.Right, maxStep),
	}
	return next, next == target
}

// ClampCommand limits both channels to [lo, hi].
func ClampCommand(c rig.Command, lo, hi int) rig.Command {
	return rig.Command{
		Left:  Clamp(c.Left, lo, hi),
		Right: Clamp(c.Right, lo, hi),
	}
}
