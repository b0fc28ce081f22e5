package game

import (
	"math"
	"time"
)

// Clock converts elapsed round time into the current multiplier. It is a
// pure step function so the engine, tests and replay tooling all compute
// identical values from the same elapsed time.
type Clock struct {
	Step      time.Duration
	Increment float64
}

func NewClock(step time.Duration, increment float64) Clock {
	return Clock{Step: step, Increment: increment}
}

// MultiplierAt returns the multiplier after the given elapsed time:
// 1.00 plus one increment per full step, rounded to 2 decimals, never below
// 1.00 and monotonically non-decreasing.
func (c Clock) MultiplierAt(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 1.00
	}
	steps := int64(elapsed / c.Step)
	mult := 1.0 + c.Increment*float64(steps)
	return math.Round(mult*100) / 100.0
}

// HasCrashed reports whether the multiplier has reached the crash point.
func (c Clock) HasCrashed(elapsed time.Duration, crashPoint float64) bool {
	return c.MultiplierAt(elapsed) >= crashPoint
}

// ElapsedToReach returns the smallest elapsed time at which the multiplier
// is at least target. Useful for audit tooling working back from a payout.
func (c Clock) ElapsedToReach(target float64) time.Duration {
	if target <= 1.00 {
		return 0
	}
	steps := int64((target - 1.0) / c.Increment)
	for c.MultiplierAt(time.Duration(steps)*c.Step) < target {
		steps++
	}
	return time.Duration(steps) * c.Step
}
