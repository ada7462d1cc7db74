package transcript

import (
	"strings"

	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

// BoundaryRecorder is notified once for every newly finalized fragment. The
// debounce sampler implements it to measure pauses between utterances.
type BoundaryRecorder interface {
	RecordBoundary(lang types.Language)
}

// Result is the outcome of one [Accumulator.Ingest] call.
type Result struct {
	// Text is the working text: formatted finals followed by interims,
	// trimmed.
	Text string

	// Raw is Text before trimming. Every fragment is followed by a single
	// space.
	Raw string

	// NewFinals is the number of fragments finalized for the first time by
	// this call.
	NewFinals int
}

// HasNewFinal reports whether at least one fragment was newly finalized.
func (r Result) HasNewFinal() bool { return r.NewFinals > 0 }

// Accumulator merges cumulative recognizer result lists into working text.
//
// An Accumulator belongs to a single recording session and is not safe for
// concurrent use; the session's event loop serializes all calls.
type Accumulator struct {
	lang       types.Language
	formatters map[types.Language]Formatter
	recorder   BoundaryRecorder

	// seen maps the identity key of every processed final to its formatted
	// text. A key is formatted and recorded at most once per session.
	seen map[types.FragmentKey]string
	text string
}

// Option is a functional option for [NewAccumulator].
type Option func(*Accumulator)

// WithFormatter registers f for lang. Languages without a formatter use
// [Passthrough].
func WithFormatter(lang types.Language, f Formatter) Option {
	return func(a *Accumulator) {
		if f != nil {
			a.formatters[lang] = f
		}
	}
}

// WithRecorder sets the recorder notified of newly finalized fragments.
func WithRecorder(r BoundaryRecorder) Option {
	return func(a *Accumulator) {
		a.recorder = r
	}
}

// NewAccumulator creates an Accumulator for a session spoken in lang.
func NewAccumulator(lang types.Language, opts ...Option) *Accumulator {
	a := &Accumulator{
		lang:       lang,
		formatters: make(map[types.Language]Formatter),
		seen:       make(map[types.FragmentKey]string),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Reset forgets all processed fragments and switches to lang. Call it when a
// new recording session starts.
func (a *Accumulator) Reset(lang types.Language) {
	a.lang = lang
	a.seen = make(map[types.FragmentKey]string)
	a.text = ""
}

// Language returns the language of the current session.
func (a *Accumulator) Language() types.Language { return a.lang }

// Text returns the working text of the last Ingest call.
func (a *Accumulator) Text() string { return a.text }

// Ingest merges the recognizer's full result list into the working text.
//
// Fragment text is trimmed before use and blank fragments are skipped.
// Re-ingesting an unchanged list returns the same text and no new finals.
func (a *Accumulator) Ingest(fragments []types.Fragment) Result {
	var finals, interims strings.Builder
	newFinals := 0

	for _, f := range fragments {
		f.Text = strings.TrimSpace(f.Text)
		if f.Text == "" {
			continue
		}
		if !f.Final {
			interims.WriteString(f.Text)
			interims.WriteByte(' ')
			continue
		}

		key := f.Key()
		formatted, ok := a.seen[key]
		if !ok {
			formatted = a.formatter().Format(f.Text)
			a.seen[key] = formatted
			newFinals++
			if a.recorder != nil {
				a.recorder.RecordBoundary(a.lang)
			}
		}
		finals.WriteString(formatted)
		finals.WriteByte(' ')
	}

	raw := finals.String() + interims.String()
	a.text = strings.TrimSpace(raw)
	return Result{Text: a.text, Raw: raw, NewFinals: newFinals}
}

func (a *Accumulator) formatter() Formatter {
	if f, ok := a.formatters[a.lang]; ok {
		return f
	}
	return Passthrough
}
