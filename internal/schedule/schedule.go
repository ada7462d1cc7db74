// Package schedule abstracts one-shot timers so the coordination core can run
// timer callbacks on its own event loop and tests can drive time by hand.
package schedule

import "time"

// Timer is a pending one-shot callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer; false means it already fired or was stopped.
	Stop() bool
}

// Scheduler creates one-shot timers.
type Scheduler interface {
	// AfterFunc arranges for f to be called once after d.
	AfterFunc(d time.Duration, f func()) Timer
}

// Func adapts an ordinary function to the [Scheduler] interface.
type Func func(d time.Duration, f func()) Timer

// AfterFunc calls fn(d, f).
func (fn Func) AfterFunc(d time.Duration, f func()) Timer { return fn(d, f) }

// Real schedules callbacks with [time.AfterFunc]. Callbacks run on their own
// goroutine.
var Real Scheduler = Func(func(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
})

// Posting returns a Scheduler whose callbacks are handed to post instead of
// being run directly. Event loops use it to run timer callbacks on the loop
// goroutine.
func Posting(base Scheduler, post func(func())) Scheduler {
	return Func(func(d time.Duration, f func()) Timer {
		return base.AfterFunc(d, func() { post(f) })
	})
}
