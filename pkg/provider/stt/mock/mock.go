// Package mock provides test doubles for the stt package interfaces.
//
// Recognizer records Start and Stop calls and lets tests inject events by
// hand, so the consumer's reaction to each lifecycle step can be observed in
// isolation.
//
// Example:
//
//	rec := mock.NewRecognizer()
//	_ = rec.Start(1, "en-US")
//	rec.Emit(stt.Event{Kind: stt.EventStarted, Run: 1})
package mock

import (
	"sync"

	"github.com/AichiroFunakoshi/bridge/pkg/provider/stt"
	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

// StartCall records a single invocation of Recognizer.Start.
type StartCall struct {
	Run    uint64
	Locale string
}

// Recognizer is a mock implementation of stt.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// EventsCh is the channel returned by Events. NewRecognizer creates a
	// buffered one.
	EventsCh chan stt.Event

	// StartErr, if non-nil, is returned by every Start call.
	StartErr error

	// StopErr, if non-nil, is returned by every Stop call.
	StopErr error

	// StartCalls records every call to Start in order.
	StartCalls []StartCall

	// StopCallCount is the number of times Stop was called.
	StopCallCount int
}

// NewRecognizer returns a Recognizer with a buffered event channel.
func NewRecognizer() *Recognizer {
	return &Recognizer{EventsCh: make(chan stt.Event, 64)}
}

// Start records the call and returns StartErr.
func (r *Recognizer) Start(run uint64, locale string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StartCalls = append(r.StartCalls, StartCall{Run: run, Locale: locale})
	return r.StartErr
}

// Stop records the call and returns StopErr.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StopCallCount++
	return r.StopErr
}

// Events returns EventsCh.
func (r *Recognizer) Events() <-chan stt.Event {
	return r.EventsCh
}

// Emit delivers ev on EventsCh.
func (r *Recognizer) Emit(ev stt.Event) {
	r.EventsCh <- ev
}

// Result is a shorthand for emitting an [stt.EventResult].
func (r *Recognizer) Result(run uint64, fragments ...types.Fragment) {
	r.Emit(stt.Event{Kind: stt.EventResult, Run: run, Fragments: fragments})
}

// Starts returns a copy of the recorded Start calls. Thread-safe.
func (r *Recognizer) Starts() []StartCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StartCall, len(r.StartCalls))
	copy(out, r.StartCalls)
	return out
}

// Stops returns the number of Stop calls. Thread-safe.
func (r *Recognizer) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.StopCallCount
}

// LastRun returns the run number of the most recent Start call, or 0.
func (r *Recognizer) LastRun() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.StartCalls) == 0 {
		return 0
	}
	return r.StartCalls[len(r.StartCalls)-1].Run
}

// ResetCalls clears all recorded calls. Thread-safe.
func (r *Recognizer) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StartCalls = nil
	r.StopCallCount = 0
}

// Ensure Recognizer implements stt.Recognizer at compile time.
var _ stt.Recognizer = (*Recognizer)(nil)
