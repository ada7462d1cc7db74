// Package mock provides a manually driven [schedule.Scheduler].
//
// Scheduler keeps a virtual clock that only moves when the test calls
// Advance. Timers whose deadline is reached fire synchronously, in deadline
// order, on the goroutine calling Advance.
package mock

import (
	"sort"
	"sync"
	"time"

	"github.com/AichiroFunakoshi/bridge/internal/schedule"
)

// epoch is the virtual clock's starting point.
var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Timer is a timer created by [Scheduler].
type Timer struct {
	s       *Scheduler
	At      time.Time
	Delay   time.Duration
	f       func()
	fired   bool
	stopped bool
}

// Stop implements schedule.Timer.
func (t *Timer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Active reports whether the timer is still pending.
func (t *Timer) Active() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return !t.fired && !t.stopped
}

// Scheduler is a mock implementation of schedule.Scheduler.
type Scheduler struct {
	mu     sync.Mutex
	now    time.Time
	timers []*Timer
}

// New returns a Scheduler whose clock starts at a fixed epoch.
func New() *Scheduler {
	return &Scheduler{now: epoch}
}

// AfterFunc implements schedule.Scheduler.
func (s *Scheduler) AfterFunc(d time.Duration, f func()) schedule.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Timer{s: s, At: s.now.Add(d), Delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Now returns the virtual time. It can be used as a clock function.
func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Advance moves the clock forward by d and fires every timer that became due,
// including timers created by callbacks fired along the way.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.nextDue(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		next.fired = true
		if next.At.After(s.now) {
			s.now = next.At
		}
		f := next.f
		s.mu.Unlock()
		f()
	}
}

// nextDue returns the earliest pending timer due at or before target. Must be
// called with s.mu held.
func (s *Scheduler) nextDue(target time.Time) *Timer {
	var pending []*Timer
	for _, t := range s.timers {
		if !t.fired && !t.stopped && !t.At.After(target) {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].At.Before(pending[j].At) })
	return pending[0]
}

// Pending returns the timers that have neither fired nor been stopped.
func (s *Scheduler) Pending() []*Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Timer
	for _, t := range s.timers {
		if !t.fired && !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

// Ensure Scheduler implements schedule.Scheduler at compile time.
var _ schedule.Scheduler = (*Scheduler)(nil)
