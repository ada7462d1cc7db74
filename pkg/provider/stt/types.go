package stt

import (
	"errors"

	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

// ErrAlreadyStarted is reported by [Recognizer.Start] when a capture run is
// already active. Callers treat it as a successful start.
var ErrAlreadyStarted = errors.New("stt: recognizer already started")

// EventKind enumerates the recognizer events.
type EventKind int

const (
	// EventStarted acknowledges that capture has begun.
	EventStarted EventKind = iota + 1

	// EventEnded reports that capture has stopped, whether requested or not.
	EventEnded

	// EventResult carries the cumulative fragment list of the current run.
	EventResult

	// EventError reports a recognition error. An [EventEnded] usually follows.
	EventError
)

// String returns the wire name of the kind.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventEnded:
		return "ended"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrorKind classifies recognition errors.
type ErrorKind string

const (
	// ErrNoSpeech means no speech was detected before the engine gave up.
	ErrNoSpeech ErrorKind = "no-speech"

	// ErrAborted means the run was aborted, typically by an explicit Stop.
	ErrAborted ErrorKind = "aborted"

	// ErrAudioCapture means no microphone is available.
	ErrAudioCapture ErrorKind = "audio-capture"

	// ErrNotAllowed means the user or platform denied microphone access.
	ErrNotAllowed ErrorKind = "not-allowed"

	// ErrUnsupported means the client has no recognition engine at all.
	ErrUnsupported ErrorKind = "unsupported"

	// ErrOther covers every other engine error (network, language, ...).
	ErrOther ErrorKind = "other"
)

// ParseErrorKind maps an engine error code onto an [ErrorKind]. Unknown codes
// map to [ErrOther].
func ParseErrorKind(s string) ErrorKind {
	switch k := ErrorKind(s); k {
	case ErrNoSpeech, ErrAborted, ErrAudioCapture, ErrNotAllowed, ErrUnsupported:
		return k
	case "service-not-allowed":
		return ErrNotAllowed
	default:
		return ErrOther
	}
}

// Fatal reports whether the error ends the recording session. Fatal errors
// are never retried automatically.
func (k ErrorKind) Fatal() bool {
	switch k {
	case ErrAudioCapture, ErrNotAllowed, ErrUnsupported:
		return true
	}
	return false
}

// Expected reports whether the error is part of normal operation and should
// only be logged.
func (k ErrorKind) Expected() bool {
	return k == ErrNoSpeech || k == ErrAborted
}

// Event is a single recognizer notification.
type Event struct {
	// Kind selects which of the remaining fields are meaningful.
	Kind EventKind

	// Run is the run number passed to the Start call this event belongs to.
	Run uint64

	// Fragments is the cumulative result list (EventResult only).
	Fragments []types.Fragment

	// Error is the error classification (EventError only).
	Error ErrorKind

	// Message is an optional engine-provided description (EventError only).
	Message string
}
