package session

import (
	"context"
	"time"

	"github.com/AichiroFunakoshi/bridge/internal/debounce"
	"github.com/AichiroFunakoshi/bridge/internal/observe"
	"github.com/AichiroFunakoshi/bridge/internal/schedule"
	"github.com/AichiroFunakoshi/bridge/internal/speechio"
	"github.com/AichiroFunakoshi/bridge/internal/store"
	"github.com/AichiroFunakoshi/bridge/internal/transcript"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/tts"
	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

// Language describes one of the two conversation languages.
type Language struct {
	// Code is the language code, e.g. "ja".
	Code types.Language

	// Locale is the tag passed to the recognizer and speaker, e.g. "ja-JP".
	Locale string

	// Formatter post-processes newly finalized transcript fragments.
	Formatter transcript.Formatter
}

// Config configures a [Coordinator].
type Config struct {
	// A and B are the two conversation languages. Speech in one is
	// translated into the other.
	A, B Language

	// Debounce tunes the delay estimator. Zero fields use factory values.
	Debounce debounce.Params

	// SampleCapacity bounds the pause sample buffer. Zero uses the default.
	SampleCapacity int

	// SampleWindowMin and SampleWindowMax bound plausible pauses. Zero
	// values use the defaults.
	SampleWindowMin time.Duration
	SampleWindowMax time.Duration

	// SpeechEnabled and SpeechRate are the initial speech-output settings,
	// overridden by persisted values.
	SpeechEnabled bool
	SpeechRate    float64

	// RestartAfterEnd and RestartAfterPlayback are the capture restart
	// delays. Zero uses the arbiter defaults.
	RestartAfterEnd      time.Duration
	RestartAfterPlayback time.Duration

	// TranslationTimeout bounds a single translation request. Zero means no
	// timeout.
	TranslationTimeout time.Duration
}

// DefaultConfig returns a Japanese/English configuration with factory
// debounce values and speech output enabled at normal rate.
func DefaultConfig() Config {
	return Config{
		A:             Language{Code: types.Japanese, Locale: "ja-JP", Formatter: transcript.Japanese()},
		B:             Language{Code: types.English, Locale: "en-US", Formatter: transcript.Passthrough},
		Debounce:      debounce.DefaultParams(),
		SpeechEnabled: true,
		SpeechRate:    tts.DefaultRate,
	}
}

// other returns the configured language that is not lang.
func (c Config) other(lang types.Language) types.Language {
	if lang == c.A.Code {
		return c.B.Code
	}
	return c.A.Code
}

// knows reports whether lang is one of the configured languages.
func (c Config) knows(lang types.Language) bool {
	return lang == c.A.Code || lang == c.B.Code
}

// Option is a functional option for [New].
type Option func(*Coordinator)

// WithSink sets the UI receiver. Defaults to [NopSink].
func WithSink(s Sink) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.sink = s
		}
	}
}

// WithStore enables persistence of debounce samples and settings under the
// given namespace.
func WithStore(s store.Store, namespace string) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.prefs = store.NewPrefs(s, namespace)
		}
	}
}

// WithScheduler sets the timer source. Callbacks are always moved onto the
// coordinator's event loop.
func WithScheduler(s schedule.Scheduler) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.baseSched = s
		}
	}
}

// WithClock sets the clock used to measure pauses. It should agree with the
// scheduler.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithBaseContext sets the context that translation requests and log
// records derive from. Its values are kept; its cancellation is not.
func WithBaseContext(ctx context.Context) Option {
	return func(c *Coordinator) {
		if ctx != nil {
			c.ctx = context.WithoutCancel(ctx)
		}
	}
}

// WithIDGenerator replaces the session ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// arbiterOptions derives the arbiter configuration.
func (c *Coordinator) arbiterOptions() []speechio.Option {
	return []speechio.Option{
		speechio.WithScheduler(c.sched),
		speechio.WithMetrics(c.metrics),
		speechio.WithContext(c.ctx),
		speechio.WithRestartDelays(c.cfg.RestartAfterEnd, c.cfg.RestartAfterPlayback),
		speechio.WithLocales(map[types.Language]string{
			c.cfg.A.Code: c.cfg.A.Locale,
			c.cfg.B.Code: c.cfg.B.Locale,
		}),
		speechio.WithPlaybackListener(c.onPlayback),
		speechio.WithCaptureErrorHandler(c.onCaptureError),
	}
}
