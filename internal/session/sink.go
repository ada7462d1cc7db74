package session

import (
	"github.com/AichiroFunakoshi/bridge/internal/debounce"
	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

// InlineErrorMessage is shown in place of a translation when a request fails
// and nothing has been displayed yet.
const InlineErrorMessage = "(translation error - please try again)"

// Fatal error kinds reported through [Sink.FatalError] besides the
// recognizer's own fatal kinds.
const (
	FatalStartFailed = "start-failed"
)

// Settings are the user-adjustable options shown by the UI.
type Settings struct {
	SpeechEnabled bool    `json:"speech_enabled"`
	SpeechRate    float64 `json:"speech_rate"`
}

// Sink receives everything the UI layer displays. Calls are made from the
// coordinator's event loop and must not block for long.
type Sink interface {
	// WorkingTextUpdated delivers the current transcript for a session
	// translating source into target.
	WorkingTextUpdated(text string, source, target types.Language)

	// TranslationPartial delivers the translation accumulated so far.
	TranslationPartial(text string)

	// TranslationFinal delivers a complete translation.
	TranslationFinal(text string)

	// TranslationFailed reports a recoverable translation error once.
	TranslationFailed(message string)

	// PlaybackStateChanged reports whether speech output is playing.
	PlaybackStateChanged(playing bool)

	// DebounceStatsChanged delivers new sample counts and delays.
	DebounceStatsChanged(stats debounce.Stats)

	// FatalError reports an error that force-stopped the session.
	FatalError(kind, message string)

	// SettingsChanged delivers the current settings.
	SettingsChanged(s Settings)

	// Cleared tells the UI to blank the transcript and translation.
	Cleared()
}

// NopSink discards everything.
type NopSink struct{}

var _ Sink = NopSink{}

func (NopSink) WorkingTextUpdated(string, types.Language, types.Language) {}
func (NopSink) TranslationPartial(string)                                 {}
func (NopSink) TranslationFinal(string)                                   {}
func (NopSink) TranslationFailed(string)                                  {}
func (NopSink) PlaybackStateChanged(bool)                                 {}
func (NopSink) DebounceStatsChanged(debounce.Stats)                       {}
func (NopSink) FatalError(string, string)                                 {}
func (NopSink) SettingsChanged(Settings)                                  {}
func (NopSink) Cleared()                                                  {}
