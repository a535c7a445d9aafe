package lifecycle

import "time"

// Clock is the time source for deadline math and countdown ticks.
type Clock interface {
	Now() time.Time
	// NewTicker returns a tick channel and its stop function.
	NewTicker(d time.Duration) (<-chan time.Time, func())
}

type systemClock struct{}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}
