package engine

import "time"

// Clock supplies the wall-clock instant a run treats as "now".
//
// The Builder reads the clock once per Build. Tests and suites pin it with
// testutil.FixedClock so interval_time is reproducible.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time {
	return f()
}
