// Package tts defines the Speaker interface for speech-output backends.
//
// A Speaker reads text aloud on the single audio-output channel of a client
// (a browser speech synthesizer, a platform voice, or a server-side engine
// streaming to a player). Speak only queues the request; the Speaker reports
// progress through [EventStarted], [EventEnded] and [EventFailed], each tagged
// with the utterance ID the caller chose. CancelAll silences the channel
// immediately; cancelled utterances may still report an end or failure event,
// which callers ignore by comparing IDs.
//
// Implementations must be safe for concurrent use.
package tts

// Speaker is the abstraction over any speech-output backend.
type Speaker interface {
	// Speak asks the backend to read u aloud. It returns an error only if the
	// request could not be issued.
	Speak(u Utterance) error

	// CancelAll stops the current utterance and drops any queued ones.
	CancelAll() error

	// Events returns the channel on which lifecycle events are delivered. The
	// channel stays open for the Speaker's lifetime; events arrive in order.
	Events() <-chan Event
}
