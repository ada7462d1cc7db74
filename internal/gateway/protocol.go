// Package gateway connects browser clients to translation sessions over a
// websocket.
//
// The browser hosts the real microphone recognizer and speech synthesizer.
// The server owns all coordination state: it drives the client's recognizer
// and synthesizer with command messages and receives their lifecycle events
// in return. Each connection gets its own [session.Coordinator].
//
// Every frame is a JSON object with a "type" field; [Message] lists all
// fields used by any type.
package gateway

import (
	"github.com/AichiroFunakoshi/bridge/internal/debounce"
	"github.com/AichiroFunakoshi/bridge/internal/session"
	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

// Client to server message types.
const (
	TypeStart            = "start"
	TypeStop             = "stop"
	TypeReset            = "reset"
	TypeTogglePlayback   = "toggle_playback"
	TypeSetSpeechEnabled = "set_speech_enabled"
	TypeSetSpeechRate    = "set_speech_rate"
	TypeDebounceInvalid  = "debounce_invalidate"
	TypeDebounceLearn    = "debounce_learn"
	TypeDebounceReset    = "debounce_reset"
	TypeDebounceOverride = "debounce_override"

	TypeRecognitionStarted = "recognition_started"
	TypeRecognitionEnded   = "recognition_ended"
	TypeRecognitionResult  = "recognition_result"
	TypeRecognitionError   = "recognition_error"
	TypeSpeechStarted      = "speech_started"
	TypeSpeechEnded        = "speech_ended"
	TypeSpeechError        = "speech_error"
)

// Server to client message types.
const (
	TypeHello              = "hello"
	TypeRecognitionStart   = "recognition_start"
	TypeRecognitionStop    = "recognition_stop"
	TypeSpeak              = "speak"
	TypeSpeechCancel       = "speech_cancel"
	TypeWorkingText        = "working_text"
	TypeTranslationPartial = "translation_partial"
	TypeTranslationFinal   = "translation_final"
	TypeTranslationError   = "translation_error"
	TypePlaybackState      = "playback_state"
	TypeDebounceStats      = "debounce_stats"
	TypeFatalError         = "fatal_error"
	TypeSettings           = "settings"
	TypeCleared            = "cleared"
	TypeError              = "error"
)

// Message is a single websocket frame in either direction.
type Message struct {
	Type string `json:"type"`

	// Client identifies the browser for preference storage (hello).
	Client string `json:"client,omitempty"`

	// Language selects the capture language (start, debounce_override).
	Language types.Language `json:"language,omitempty"`

	// Run is the recognizer run (recognition_*).
	Run uint64 `json:"run,omitempty"`

	// ID is the utterance ID (speak, speech_*).
	ID uint64 `json:"id,omitempty"`

	Locale string  `json:"locale,omitempty"`
	Text   string  `json:"text,omitempty"`
	Rate   float64 `json:"rate,omitempty"`

	// Source and Target accompany working_text.
	Source types.Language `json:"source,omitempty"`
	Target types.Language `json:"target,omitempty"`

	// Enabled is the new value for set_speech_enabled.
	Enabled *bool `json:"enabled,omitempty"`

	// Playing accompanies playback_state.
	Playing *bool `json:"playing,omitempty"`

	// Ms is the pinned delay for debounce_override; zero clears it.
	Ms int `json:"ms,omitempty"`

	// Kind is the recognition or fatal error kind.
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`

	Fragments []types.Fragment  `json:"fragments,omitempty"`
	Stats     *debounce.Stats   `json:"stats,omitempty"`
	Settings  *session.Settings `json:"settings,omitempty"`
}
