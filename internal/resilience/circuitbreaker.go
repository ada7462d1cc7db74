// Package resilience protects the bridge from failing upstream services.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) that
// stops hammering a backend after repeated failures. [FallbackGroup] orders
// several instances of the same provider behind per-entry breakers, and
// [TranslatorFallback] applies that to streaming translation backends.
//
// Cancellation is never counted as a failure: superseding a translation
// request cancels its stream, which says nothing about backend health.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a breaker rejects a call.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has elapsed.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// IsFailure reports whether err counts against a breaker. Nil and
// [context.Canceled] do not.
func IsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// CircuitBreakerConfig tunes a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and state-change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls, all of which must succeed
	// to close the breaker again. Default: 3.
	HalfOpenMax int

	// Now replaces the wall clock. Tests only.
	Now func() time.Time

	// OnStateChange, if set, is called after every transition while the
	// breaker's lock is not held.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	now          func() time.Time
	onChange     func(name string, from, to State)

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	probes       int
	probeSuccess int
}

// NewCircuitBreaker creates a closed breaker. Zero config fields take their
// defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		now:          cfg.Now,
		onChange:     cfg.OnStateChange,
	}
}

// Name returns the configured name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Allow reserves a call slot. On success the caller must invoke done exactly
// once with the outcome of the call. Calls whose outcome is only known later,
// such as streams, use this instead of [CircuitBreaker.Execute].
func (cb *CircuitBreaker) Allow() (done func(error), err error) {
	cb.mu.Lock()
	var changed func()
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return nil, ErrCircuitOpen
		}
		changed = cb.transition(StateHalfOpen)
		cb.probes = 0
		cb.probeSuccess = 0
	case StateHalfOpen:
		if cb.probes >= cb.halfOpenMax {
			cb.mu.Unlock()
			return nil, ErrCircuitOpen
		}
	}
	probe := cb.state == StateHalfOpen
	if probe {
		cb.probes++
	}
	cb.mu.Unlock()
	notify(changed)

	var once sync.Once
	return func(err error) {
		once.Do(func() { cb.record(probe, err) })
	}, nil
}

// Execute runs fn if the breaker allows it and records its outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	done, err := cb.Allow()
	if err != nil {
		return err
	}
	err = fn()
	done(err)
	return err
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	var changed func()
	switch {
	case !IsFailure(err) && err != nil:
		// Cancelled: release the probe slot without a verdict.
		if probe && cb.state == StateHalfOpen {
			cb.probes--
		}
	case err != nil:
		cb.failures++
		if probe || cb.failures >= cb.maxFailures {
			if cb.state != StateOpen {
				changed = cb.transition(StateOpen)
			}
			cb.openedAt = cb.now()
		}
	case probe:
		if cb.state == StateHalfOpen {
			cb.probeSuccess++
			if cb.probeSuccess >= cb.halfOpenMax {
				changed = cb.transition(StateClosed)
				cb.failures = 0
			}
		}
	default:
		cb.failures = 0
	}
	cb.mu.Unlock()
	notify(changed)
}

// transition switches state and returns the notification to run once the
// lock is released. Must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to State) func() {
	from := cb.state
	cb.state = to
	name, fn := cb.name, cb.onChange
	return func() {
		level := slog.LevelInfo
		if to == StateOpen {
			level = slog.LevelWarn
		}
		slog.Log(context.Background(), level, "resilience: circuit state changed",
			"name", name, "from", from.String(), "to", to.String())
		if fn != nil {
			fn(name, from, to)
		}
	}
}

func notify(fn func()) {
	if fn != nil {
		fn()
	}
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	var changed func()
	if cb.state != StateClosed {
		changed = cb.transition(StateClosed)
	}
	cb.failures = 0
	cb.probes = 0
	cb.probeSuccess = 0
	cb.mu.Unlock()
	notify(changed)
}
