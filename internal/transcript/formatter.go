// Package transcript turns the cumulative fragment lists emitted by a speech
// recognizer into the working text that is displayed and translated.
//
// Recognizers re-send the whole result list on every event: earlier fragments
// come back unchanged, the tail is re-guessed until it is committed as final.
// The [Accumulator] deduplicates finals by their identity key, hands each new
// final once to a language-specific [Formatter] and to a [BoundaryRecorder],
// and keeps the formatted text so later deliveries render identically.
//
// Formatting rules are pluggable per language. [Japanese] inserts clause
// commas at connectives and closes sentences with a full stop; [Passthrough]
// leaves text untouched. Formatters compose with [Chain].
package transcript

import (
	"fmt"
	"strings"
)

// Formatter rewrites a newly finalized fragment for display.
//
// Implementations must be pure: the same input always yields the same output.
type Formatter interface {
	Format(text string) string
}

// FormatterFunc adapts an ordinary function to the [Formatter] interface.
type FormatterFunc func(text string) string

// Format calls f(text).
func (f FormatterFunc) Format(text string) string { return f(text) }

// Passthrough returns its input unchanged.
var Passthrough Formatter = FormatterFunc(func(text string) string { return text })

// Chain applies its formatters in order, feeding each the previous output.
type Chain []Formatter

// Format implements [Formatter].
func (c Chain) Format(text string) string {
	for _, f := range c {
		text = f.Format(text)
	}
	return text
}

// Formatter names accepted by [ByName].
const (
	FormatterNone     = "none"
	FormatterJapanese = "japanese"
)

// ByName resolves a configured formatter name. The empty string selects
// [Passthrough].
func ByName(name string) (Formatter, error) {
	switch strings.ToLower(name) {
	case "", FormatterNone:
		return Passthrough, nil
	case FormatterJapanese:
		return Japanese(), nil
	default:
		return nil, fmt.Errorf("transcript: unknown formatter %q; valid values: none, japanese", name)
	}
}
