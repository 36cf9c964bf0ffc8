// Package clock abstracts the one-shot timers that drive pattern schedulers so
// the scheduling logic can run against the wall clock or a manually advanced
// fake.
package clock

import "time"

// Clock creates one-shot timers
type Clock interface {
	Now() time.Time
	// AfterFunc calls f on its own goroutine once d has elapsed
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call
type Timer interface {
	// Stop prevents the call if it has not started yet. It returns false if the
	// timer already fired or was stopped.
	Stop() bool
}

type realClock struct{}

// Real returns a Clock backed by the time package
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
