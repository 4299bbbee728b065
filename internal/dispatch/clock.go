package dispatch

import "time"

// SimulationClock tracks the current simulated instant. It only ever moves
// forward; attempts to set it backwards are ignored by the orchestrator's
// advancement loop.
type SimulationClock struct {
	now time.Time
	set bool
}

// Now returns the current simulation time. Zero until the clock is set.
func (c *SimulationClock) Now() time.Time {
	return c.now
}

// IsSet reports whether the clock has been given an initial time
func (c *SimulationClock) IsSet() bool {
	return c.set
}

// Set moves the clock to t
func (c *SimulationClock) Set(t time.Time) {
	c.now = t
	c.set = true
}

// Reset clears the clock back to its unset state
func (c *SimulationClock) Reset() {
	c.now = time.Time{}
	c.set = false
}
