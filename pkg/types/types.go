// Package types defines the shared types used across all Bridge packages.
//
// These types form the lingua franca between the recognition, translation and
// speech-output providers and the coordination core. Each package defines its
// own domain types; cross-cutting data structures live here to avoid circular
// imports.
package types

import "strings"

// Language identifies one of the two configured conversation languages by its
// short code (e.g., "ja", "en"). Locale tags used by recognizers and speech
// synthesizers ("ja-JP", "en-US") are resolved through configuration.
type Language string

const (
	// Japanese is the default first language of a pair.
	Japanese Language = "ja"

	// English is the default second language of a pair.
	English Language = "en"
)

// String returns the language code.
func (l Language) String() string { return string(l) }

// DisplayName returns a human-readable name for well-known codes and falls
// back to the raw code otherwise.
func (l Language) DisplayName() string {
	switch strings.ToLower(string(l)) {
	case "ja":
		return "Japanese"
	case "en":
		return "English"
	default:
		return string(l)
	}
}

// LanguagePair describes the direction of one translation.
type LanguagePair struct {
	Source Language
	Target Language
}

// Reverse returns the pair with source and target swapped.
func (p LanguagePair) Reverse() LanguagePair {
	return LanguagePair{Source: p.Target, Target: p.Source}
}

// String renders the pair as "src->tgt".
func (p LanguagePair) String() string {
	return string(p.Source) + "->" + string(p.Target)
}

// Fragment is a single recognition result as delivered by a recognizer.
// Recognizers re-deliver the full, cumulative result list on every event, so
// the same fragment is often seen many times: first as one or more interim
// guesses, later as a final.
type Fragment struct {
	// Index is the position of the fragment in the recognizer's result list.
	Index int `json:"index"`

	// Text is the recognized text.
	Text string `json:"text"`

	// Final reports whether the recognizer has committed to this text.
	Final bool `json:"final"`
}

// Key returns the identity key of the fragment. Two fragments with the same
// index and text are the same result.
func (f Fragment) Key() FragmentKey {
	return FragmentKey{Index: f.Index, Text: f.Text}
}

// FragmentKey is the identity of a [Fragment].
type FragmentKey struct {
	Index int
	Text  string
}
