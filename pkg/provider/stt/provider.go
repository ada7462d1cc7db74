// Package stt defines the Recognizer interface for speech-recognition
// backends.
//
// A Recognizer wraps a live recognition engine (a browser speech-recognition
// session, a platform dictation service, or a remote streaming recognizer) and
// exposes a uniform event stream. The coordination core never assumes Start or
// Stop take effect synchronously: both are requests, and the recognizer
// acknowledges them later through [EventStarted] and [EventEnded].
//
// Every Start carries a run number chosen by the caller. Lifecycle events echo
// the run number they belong to so that a late [EventEnded] from a previous
// run can be told apart from the end of the current one.
//
// Implementations must be safe for concurrent use.
package stt

// Recognizer is the abstraction over any speech-recognition backend.
type Recognizer interface {
	// Start asks the recognizer to begin capturing in the given locale
	// (BCP-47, e.g. "ja-JP"). It returns an error only if the request could
	// not be issued at all. Implementations that can detect that a run is
	// already in progress return an error wrapping [ErrAlreadyStarted].
	Start(run uint64, locale string) error

	// Stop asks the recognizer to stop capturing. The recognizer emits
	// [EventEnded] once it has actually stopped. Calling Stop while idle is
	// allowed and returns nil.
	Stop() error

	// Events returns the channel on which lifecycle and result events are
	// delivered. The channel is owned by the recognizer and stays open for
	// its whole lifetime; events from one recognizer arrive in order.
	Events() <-chan Event
}
