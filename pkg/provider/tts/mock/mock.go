// Package mock provides test doubles for the tts package interfaces.
//
// Speaker records every Speak and CancelAll call. Lifecycle events are only
// emitted when the test calls Emit (or the Started/Ended/Failed helpers), so
// the consumer's handling of each step can be checked deterministically.
package mock

import (
	"sync"

	"github.com/AichiroFunakoshi/bridge/pkg/provider/tts"
)

// Speaker is a mock implementation of tts.Speaker.
type Speaker struct {
	mu sync.Mutex

	// EventsCh is the channel returned by Events.
	EventsCh chan tts.Event

	// SpeakErr, if non-nil, is returned by every Speak call.
	SpeakErr error

	// SpeakCalls records every utterance passed to Speak in order.
	SpeakCalls []tts.Utterance

	// CancelCallCount is the number of times CancelAll was called.
	CancelCallCount int
}

// NewSpeaker returns a Speaker with a buffered event channel.
func NewSpeaker() *Speaker {
	return &Speaker{EventsCh: make(chan tts.Event, 64)}
}

// Speak records the call and returns SpeakErr.
func (s *Speaker) Speak(u tts.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SpeakCalls = append(s.SpeakCalls, u)
	return s.SpeakErr
}

// CancelAll records the call.
func (s *Speaker) CancelAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CancelCallCount++
	return nil
}

// Events returns EventsCh.
func (s *Speaker) Events() <-chan tts.Event {
	return s.EventsCh
}

// Emit delivers ev on EventsCh.
func (s *Speaker) Emit(ev tts.Event) {
	s.EventsCh <- ev
}

// Ended emits an [tts.EventEnded] for id.
func (s *Speaker) Ended(id uint64) {
	s.Emit(tts.Event{Kind: tts.EventEnded, ID: id})
}

// Utterances returns a copy of the recorded Speak calls. Thread-safe.
func (s *Speaker) Utterances() []tts.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tts.Utterance, len(s.SpeakCalls))
	copy(out, s.SpeakCalls)
	return out
}

// LastID returns the ID of the most recent utterance, or 0.
func (s *Speaker) LastID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.SpeakCalls) == 0 {
		return 0
	}
	return s.SpeakCalls[len(s.SpeakCalls)-1].ID
}

// Cancels returns the number of CancelAll calls. Thread-safe.
func (s *Speaker) Cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CancelCallCount
}

// Ensure Speaker implements tts.Speaker at compile time.
var _ tts.Speaker = (*Speaker)(nil)
