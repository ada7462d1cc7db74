package tts

// Rate bounds accepted by [Utterance.Rate].
const (
	MinRate     = 0.5
	MaxRate     = 2.0
	DefaultRate = 1.0
)

// Utterance is one piece of text to be spoken.
type Utterance struct {
	// ID identifies the utterance in lifecycle events.
	ID uint64

	// Text is the text to speak.
	Text string

	// Locale is the BCP-47 voice locale (e.g., "en-US").
	Locale string

	// Rate is the speaking-rate multiplier, 1.0 being normal speed.
	Rate float64
}

// ClampRate bounds r to [MinRate, MaxRate]. Zero or negative values map to
// [DefaultRate].
func ClampRate(r float64) float64 {
	switch {
	case r <= 0:
		return DefaultRate
	case r < MinRate:
		return MinRate
	case r > MaxRate:
		return MaxRate
	}
	return r
}

// EventKind enumerates the speaker lifecycle events.
type EventKind int

const (
	// EventStarted reports that audio output for an utterance has begun.
	EventStarted EventKind = iota + 1

	// EventEnded reports that an utterance finished or was cancelled.
	EventEnded

	// EventFailed reports that an utterance could not be spoken.
	EventFailed
)

// String returns the wire name of the kind.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventEnded:
		return "ended"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is a single speaker notification.
type Event struct {
	Kind EventKind

	// ID is the [Utterance.ID] the event belongs to.
	ID uint64

	// Message describes the failure (EventFailed only).
	Message string
}
