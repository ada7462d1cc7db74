package debounce

import (
	"time"

	"github.com/AichiroFunakoshi/bridge/internal/schedule"
	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

// DelaySource supplies the settle delay for a language. [Estimator]
// implements it.
type DelaySource interface {
	Delay(lang types.Language) time.Duration
}

// DelayFunc adapts a function to [DelaySource].
type DelayFunc func(lang types.Language) time.Duration

// Delay implements [DelaySource].
func (f DelayFunc) Delay(lang types.Language) time.Duration { return f(lang) }

// EmitFunc receives text that has been stable for the full delay.
type EmitFunc func(text string, lang types.Language)

// Debouncer is a trailing-edge debounce over the working text. Each change
// restarts the timer; only the last text of a burst is emitted, exactly once
// per quiet period.
type Debouncer struct {
	delays DelaySource
	emit   EmitFunc
	sched  schedule.Scheduler

	timer   schedule.Timer
	token   uint64
	pending string
	lang    types.Language

	lastSubmitted string
	lastDelay     time.Duration
}

// DebouncerOption is a functional option for [NewDebouncer].
type DebouncerOption func(*Debouncer)

// WithScheduler sets the timer source. Callbacks from s must run on the
// goroutine that owns the Debouncer.
func WithScheduler(s schedule.Scheduler) DebouncerOption {
	return func(d *Debouncer) {
		if s != nil {
			d.sched = s
		}
	}
}

// NewDebouncer creates a Debouncer that asks delays for the settle time and
// calls emit with stable text.
func NewDebouncer(delays DelaySource, emit EmitFunc, opts ...DebouncerOption) *Debouncer {
	d := &Debouncer{
		delays: delays,
		emit:   emit,
		sched:  schedule.Real,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Changed reports a new working text. Text equal to the last submitted text
// is ignored, which keeps an already pending timer running.
func (d *Debouncer) Changed(text string, lang types.Language) {
	if text == d.lastSubmitted {
		return
	}
	d.stop()

	d.token++
	tok := d.token
	d.pending = text
	d.lang = lang
	d.lastDelay = d.delays.Delay(lang)
	d.timer = d.sched.AfterFunc(d.lastDelay, func() { d.fire(tok) })
}

func (d *Debouncer) fire(tok uint64) {
	if tok != d.token || d.timer == nil {
		return
	}
	d.timer = nil
	text, lang := d.pending, d.lang
	d.pending = ""
	d.lastSubmitted = text
	if d.emit != nil {
		d.emit(text, lang)
	}
}

func (d *Debouncer) stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = ""
}

// Pending reports whether a timer is armed.
func (d *Debouncer) Pending() bool { return d.timer != nil }

// LastDelay returns the delay used for the most recent arm.
func (d *Debouncer) LastDelay() time.Duration { return d.lastDelay }

// LastSubmitted returns the most recently emitted text.
func (d *Debouncer) LastSubmitted() string { return d.lastSubmitted }

// Cancel drops the pending emission, if any.
func (d *Debouncer) Cancel() {
	d.stop()
	d.token++
}

// Reset cancels and forgets the last submitted text.
func (d *Debouncer) Reset() {
	d.Cancel()
	d.lastSubmitted = ""
}
