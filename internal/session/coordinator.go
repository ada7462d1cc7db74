// Package session coordinates one live translation conversation.
//
// A [Coordinator] wires the transcript accumulator, the pause sampler and
// delay estimator, the translation debouncer, the translation request
// manager and the capture/playback arbiter together. All of their state is
// owned by a single event-loop goroutine started with [Coordinator.Run].
// Recognizer and speaker events, timer expiries, translation stream chunks
// and UI commands are all delivered into that loop, so none of the core
// components need locks.
//
// The exported command methods are safe for concurrent use; each one runs on
// the loop and returns once it has been applied.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AichiroFunakoshi/bridge/internal/debounce"
	"github.com/AichiroFunakoshi/bridge/internal/observe"
	"github.com/AichiroFunakoshi/bridge/internal/schedule"
	"github.com/AichiroFunakoshi/bridge/internal/speechio"
	"github.com/AichiroFunakoshi/bridge/internal/store"
	"github.com/AichiroFunakoshi/bridge/internal/transcript"
	"github.com/AichiroFunakoshi/bridge/internal/translation"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/stt"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/translate"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/tts"
	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

var (
	// ErrNotRunning is returned by commands issued before [Coordinator.Run]
	// has started.
	ErrNotRunning = errors.New("session: coordinator not running")

	// ErrClosed is returned by commands issued after the event loop ended.
	ErrClosed = errors.New("session: coordinator closed")

	// ErrAlreadyRunning is returned by a second call to [Coordinator.Run].
	ErrAlreadyRunning = errors.New("session: coordinator already running")

	// ErrUnknownLanguage is returned for languages outside the configured
	// pair.
	ErrUnknownLanguage = errors.New("session: unknown language")
)

// queueSize bounds the number of callbacks waiting for the loop.
const queueSize = 256

// Session is one recording from start to stop.
type Session struct {
	ID        string
	Source    types.Language
	Target    types.Language
	StartedAt time.Time
	Stopped   bool
}

// Status is a snapshot of the coordinator.
type Status struct {
	SessionID         string         `json:"session_id,omitempty"`
	Active            bool           `json:"active"`
	Source            types.Language `json:"source,omitempty"`
	Target            types.Language `json:"target,omitempty"`
	State             string         `json:"state"`
	Recognizer        string         `json:"recognizer"`
	RestartPending    bool           `json:"restart_pending"`
	WorkingText       string         `json:"working_text"`
	Translation       string         `json:"translation"`
	LastResult        string         `json:"last_result"`
	Generation        uint64         `json:"generation"`
	DebouncePending   bool           `json:"debounce_pending"`
	TranslationActive bool           `json:"translation_active"`
	Settings          Settings       `json:"settings"`
	Debounce          debounce.Stats `json:"debounce"`
}

// Coordinator runs the translation pipeline for one client.
type Coordinator struct {
	cfg     Config
	rec     stt.Recognizer
	speaker tts.Speaker
	sink    Sink
	prefs   *store.Prefs
	writer  *store.Writer
	metrics *observe.Metrics

	baseSched schedule.Scheduler
	sched     schedule.Scheduler
	now       func() time.Time
	newID     func() string
	ctx       context.Context

	queue   chan func()
	done    chan struct{}
	running atomic.Bool

	// Owned by the event loop.
	session       *Session
	pair          types.LanguagePair
	acc           *transcript.Accumulator
	sampler       *debounce.Sampler
	estimator     *debounce.Estimator
	debouncer     *debounce.Debouncer
	manager       *translation.Manager
	arbiter       *speechio.Arbiter
	speechEnabled bool
	speechRate    float64
	working       string
	displayed     string
}

// New creates a Coordinator. Call [Coordinator.Run] to start its loop.
func New(rec stt.Recognizer, speaker tts.Speaker, backend translate.Backend, cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:           cfg,
		rec:           rec,
		speaker:       speaker,
		sink:          NopSink{},
		baseSched:     schedule.Real,
		now:           time.Now,
		newID:         uuid.NewString,
		ctx:           context.Background(),
		queue:         make(chan func(), queueSize),
		done:          make(chan struct{}),
		speechEnabled: cfg.SpeechEnabled,
		speechRate:    tts.ClampRate(cfg.SpeechRate),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.prefs != nil {
		c.writer = store.NewWriter(c.prefs)
	}
	c.sched = schedule.Posting(c.baseSched, c.post)

	c.sampler = debounce.NewSampler(
		debounce.WithClock(c.now),
		debounce.WithCapacity(cfg.SampleCapacity),
		debounce.WithWindow(cfg.SampleWindowMin, cfg.SampleWindowMax),
		debounce.WithObserver(c.onSample),
	)
	c.estimator = debounce.NewEstimator(c.sampler, cfg.Debounce)
	c.acc = transcript.NewAccumulator(cfg.A.Code,
		transcript.WithFormatter(cfg.A.Code, cfg.A.Formatter),
		transcript.WithFormatter(cfg.B.Code, cfg.B.Formatter),
		transcript.WithRecorder(c.sampler),
	)
	c.debouncer = debounce.NewDebouncer(c.estimator, c.onStable, debounce.WithScheduler(c.sched))
	c.manager = translation.NewManager(backend, c.post,
		translation.WithListener(translationListener{c}),
		translation.WithMetrics(c.metrics),
		translation.WithBaseContext(c.ctx),
		translation.WithTimeout(cfg.TranslationTimeout),
	)
	c.arbiter = speechio.New(rec, speaker, c.arbiterOptions()...)
	return c
}

// post hands f to the event loop. After the loop has ended f is dropped.
func (c *Coordinator) post(f func()) {
	select {
	case c.queue <- f:
	case <-c.done:
	}
}

// call runs f on the event loop and waits for its result.
func (c *Coordinator) call(f func() error) error {
	if !c.running.Load() {
		return ErrNotRunning
	}
	errc := make(chan error, 1)
	select {
	case c.queue <- func() { errc <- f() }:
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-c.done:
		select {
		case err := <-errc:
			return err
		default:
			return ErrClosed
		}
	}
}

// Run loads persisted state and processes events until ctx is cancelled.
// On return any active session has been stopped and pending writes have
// been flushed.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)

	c.load(ctx)
	if c.writer != nil {
		c.writer.Start(ctx)
		defer c.writer.Stop()
	}
	defer c.shutdown()

	c.sink.SettingsChanged(c.settings())
	c.pushStats()

	recEvents := c.rec.Events()
	spkEvents := c.speaker.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-c.queue:
			f()
		case ev, ok := <-recEvents:
			if !ok {
				recEvents = nil
				continue
			}
			c.handleRecognition(ev)
		case ev, ok := <-spkEvents:
			if !ok {
				spkEvents = nil
				continue
			}
			c.handleSpeech(ev)
		}
	}
}

// Done is closed when the event loop has ended.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

func (c *Coordinator) shutdown() {
	c.arbiter.StopAll()
	c.clearState()
	c.endSession()
}

func (c *Coordinator) logCtx() context.Context {
	if c.session != nil {
		return observe.WithSessionID(c.ctx, c.session.ID)
	}
	return c.ctx
}

func (c *Coordinator) active() bool {
	return c.session != nil && !c.session.Stopped
}

// --- Commands ---

// Start begins a new session capturing lang and translating into the other
// configured language. Any playback is stopped and all previous state is
// cleared.
func (c *Coordinator) Start(lang types.Language) error {
	return c.call(func() error { return c.start(lang) })
}

// Stop ends the active session.
func (c *Coordinator) Stop() error {
	return c.call(func() error {
		c.stop()
		return nil
	})
}

// Reset ends the active session and blanks the display.
func (c *Coordinator) Reset() error {
	return c.call(func() error {
		c.stop()
		c.acc.Reset(c.acc.Language())
		c.sink.Cleared()
		return nil
	})
}

// TogglePlayback stops playback while speaking, otherwise speaks the last
// translation.
func (c *Coordinator) TogglePlayback() error {
	return c.call(func() error {
		_, err := c.arbiter.Toggle(c.manager.LastResult(), c.pair.Target, c.speechRate)
		return err
	})
}

// SetSpeechEnabled turns automatic speech output on or off. Turning it off
// stops current playback.
func (c *Coordinator) SetSpeechEnabled(on bool) error {
	return c.call(func() error {
		c.speechEnabled = on
		if !on {
			c.arbiter.StopPlayback()
		}
		c.persist(store.KeySpeechEnabled, on)
		c.sink.SettingsChanged(c.settings())
		return nil
	})
}

// SetSpeechRate sets the playback rate, clamped to the supported range.
func (c *Coordinator) SetSpeechRate(rate float64) error {
	return c.call(func() error {
		c.speechRate = tts.ClampRate(rate)
		c.persist(store.KeySpeechRate, c.speechRate)
		c.sink.SettingsChanged(c.settings())
		return nil
	})
}

// InvalidateDebounce makes both languages use factory delays until
// [Coordinator.LearnDebounce] or [Coordinator.ResetDebounce].
func (c *Coordinator) InvalidateDebounce() error {
	return c.call(func() error {
		c.estimator.Invalidate()
		c.persist(store.KeyDebounceInvalidated, true)
		c.pushStats()
		return nil
	})
}

// LearnDebounce re-enables learned delays.
func (c *Coordinator) LearnDebounce() error {
	return c.call(func() error {
		c.estimator.Learn()
		c.persist(store.KeyDebounceInvalidated, false)
		c.pushStats()
		return nil
	})
}

// ResetDebounce discards all pause samples.
func (c *Coordinator) ResetDebounce() error {
	return c.call(func() error {
		c.estimator.Reset()
		c.persist(store.KeyDebounceSamples, c.sampler.Snapshot())
		c.persist(store.KeyDebounceInvalidated, false)
		c.pushStats()
		return nil
	})
}

// SetDebounceOverride pins the delay for lang to ms milliseconds, clamped to
// the allowed range. A non-positive ms removes the override.
func (c *Coordinator) SetDebounceOverride(lang types.Language, ms int) error {
	return c.call(func() error {
		if !c.cfg.knows(lang) {
			return fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
		}
		if ms <= 0 {
			c.estimator.ClearOverride(lang)
		} else {
			c.estimator.SetOverride(lang, time.Duration(ms)*time.Millisecond)
		}
		c.persist(store.KeyDebounceOverrides, c.overridesMs())
		c.pushStats()
		return nil
	})
}

// Status returns a snapshot taken on the event loop.
func (c *Coordinator) Status() (Status, error) {
	var st Status
	err := c.call(func() error {
		st = c.status()
		return nil
	})
	return st, err
}

func (c *Coordinator) status() Status {
	st := Status{
		Active:            c.active(),
		State:             c.arbiter.State().String(),
		Recognizer:        c.arbiter.Recognizer(),
		RestartPending:    c.arbiter.RestartPending(),
		WorkingText:       c.working,
		Translation:       c.displayed,
		LastResult:        c.manager.LastResult(),
		Generation:        c.manager.Generation(),
		DebouncePending:   c.debouncer.Pending(),
		TranslationActive: c.manager.Active(),
		Settings:          c.settings(),
		Debounce:          c.stats(),
	}
	if c.session != nil {
		st.SessionID = c.session.ID
		st.Source = c.session.Source
		st.Target = c.session.Target
	}
	return st
}

// --- Session lifecycle ---

func (c *Coordinator) start(lang types.Language) error {
	if !c.cfg.knows(lang) {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	c.arbiter.StopAll()
	c.clearState()
	c.endSession()

	c.pair = types.LanguagePair{Source: lang, Target: c.cfg.other(lang)}
	c.acc.Reset(lang)
	c.session = &Session{
		ID:        c.newID(),
		Source:    c.pair.Source,
		Target:    c.pair.Target,
		StartedAt: c.now(),
	}
	c.metrics.ActiveSessions.Add(c.ctx, 1)
	c.sink.Cleared()
	c.sampler.Mark()

	if err := c.arbiter.StartCapture(lang); err != nil {
		c.fatal(FatalStartFailed, err.Error())
		return err
	}
	observe.Logger(c.logCtx()).Info("session: started",
		"source", c.pair.Source.String(),
		"target", c.pair.Target.String(),
	)
	return nil
}

func (c *Coordinator) stop() {
	c.arbiter.StopAll()
	c.clearState()
	c.endSession()
}

// clearState drops the pending debounce, the in-flight translation and the
// stored result.
func (c *Coordinator) clearState() {
	c.debouncer.Reset()
	c.manager.Cancel()
	c.manager.ClearResult()
	c.working = ""
	c.displayed = ""
}

func (c *Coordinator) endSession() {
	if !c.active() {
		return
	}
	c.session.Stopped = true
	c.metrics.ActiveSessions.Add(c.ctx, -1)
	observe.Logger(c.logCtx()).Info("session: stopped",
		"duration", c.now().Sub(c.session.StartedAt),
	)
}

// fatal force-stops the session and reports kind to the UI.
func (c *Coordinator) fatal(kind, message string) {
	observe.Logger(c.logCtx()).Error("session: fatal error", "kind", kind, "message", message)
	c.stop()
	c.sink.FatalError(kind, message)
}

// --- Recognizer ---

func (c *Coordinator) handleRecognition(ev stt.Event) {
	switch ev.Kind {
	case stt.EventStarted:
		c.arbiter.OnRecognitionStarted(ev.Run)
	case stt.EventEnded:
		c.arbiter.OnRecognitionEnded(ev.Run)
	case stt.EventResult:
		c.ingest(ev)
	case stt.EventError:
		c.recognitionError(ev)
	}
}

func (c *Coordinator) ingest(ev stt.Event) {
	if !c.active() || !c.arbiter.Accepts(ev.Run) {
		observe.Logger(c.logCtx()).Debug("session: dropping stale recognition result", "run", ev.Run)
		return
	}
	res := c.acc.Ingest(ev.Fragments)
	if res.HasNewFinal() {
		c.persist(store.KeyDebounceSamples, c.sampler.Snapshot())
		c.pushStats()
	}
	if res.Text == c.working {
		return
	}
	c.working = res.Text
	c.debouncer.Changed(res.Text, c.pair.Source)
	c.sink.WorkingTextUpdated(res.Text, c.pair.Source, c.pair.Target)
}

func (c *Coordinator) recognitionError(ev stt.Event) {
	log := observe.Logger(c.logCtx())
	if !c.arbiter.Accepts(ev.Run) {
		log.Debug("session: stale recognition error", "run", ev.Run, "kind", string(ev.Error))
		return
	}
	c.metrics.RecordRecognitionError(c.ctx, string(ev.Error))

	switch {
	case ev.Error.Expected():
		log.Debug("session: recognition interrupted", "kind", string(ev.Error))
	case ev.Error.Fatal():
		c.fatal(string(ev.Error), recognitionMessage(ev.Error, ev.Message))
	default:
		log.Warn("session: recognition error", "kind", string(ev.Error), "message", ev.Message)
	}
}

// recognitionMessage returns the user-facing text for a fatal kind.
func recognitionMessage(kind stt.ErrorKind, detail string) string {
	switch kind {
	case stt.ErrAudioCapture:
		return "no microphone was detected"
	case stt.ErrNotAllowed:
		return "microphone permission is required"
	case stt.ErrUnsupported:
		return "speech recognition is not supported on this device"
	default:
		if detail != "" {
			return detail
		}
		return "speech recognition failed"
	}
}

// onSample runs for every accepted pause sample.
func (c *Coordinator) onSample(s debounce.Sample) {
	c.metrics.RecordPauseSample(c.ctx, s.Language.String())
}

// onStable runs when the working text has settled.
func (c *Coordinator) onStable(text string, lang types.Language) {
	if !c.active() {
		return
	}
	c.metrics.RecordDebounceDelay(c.ctx, lang.String(), c.debouncer.LastDelay())
	if gen, ok := c.manager.Submit(text, c.pair); ok {
		observe.Logger(c.logCtx()).Debug("session: translation requested", "generation", gen)
	}
}

// --- Speaker ---

func (c *Coordinator) handleSpeech(ev tts.Event) {
	switch ev.Kind {
	case tts.EventStarted:
		c.arbiter.OnPlaybackStarted(ev.ID)
	case tts.EventEnded:
		c.arbiter.OnPlaybackEnded(ev.ID)
	case tts.EventFailed:
		c.arbiter.OnPlaybackFailed(ev.ID, ev.Message)
	}
}

func (c *Coordinator) onPlayback(playing bool) {
	c.sink.PlaybackStateChanged(playing)
}

func (c *Coordinator) onCaptureError(err error) {
	c.fatal(FatalStartFailed, err.Error())
}

// --- Translation ---

type translationListener struct{ c *Coordinator }

func (l translationListener) TranslationPartial(_ uint64, text string) {
	l.c.displayed = text
	l.c.sink.TranslationPartial(text)
}

func (l translationListener) TranslationFinal(_ uint64, text string) {
	c := l.c
	c.displayed = text
	c.sink.TranslationFinal(text)
	if !c.speechEnabled || !c.active() {
		return
	}
	if err := c.arbiter.BeginPlayback(text, c.pair.Target, c.speechRate); err != nil {
		observe.Logger(c.logCtx()).Warn("session: playback failed", "err", err)
	}
}

func (l translationListener) TranslationFailed(_ uint64, err error) {
	c := l.c
	c.sink.TranslationFailed(failureMessage(err))
	if c.displayed == "" {
		c.sink.TranslationPartial(InlineErrorMessage)
	}
}

// failureMessage returns the user-facing text for a translation error.
func failureMessage(err error) string {
	var he *translate.HTTPError
	switch {
	case errors.As(err, &he):
		return fmt.Sprintf("translation failed (HTTP %d)", he.Status)
	case errors.Is(err, translate.ErrParse):
		return "translation failed (malformed response)"
	case errors.Is(err, context.DeadlineExceeded):
		return "translation timed out"
	default:
		return "translation failed"
	}
}

// --- Settings, stats and persistence ---

func (c *Coordinator) settings() Settings {
	return Settings{SpeechEnabled: c.speechEnabled, SpeechRate: c.speechRate}
}

func (c *Coordinator) stats() debounce.Stats {
	return c.estimator.Stats(c.cfg.A.Code, c.cfg.B.Code)
}

func (c *Coordinator) pushStats() {
	c.sink.DebounceStatsChanged(c.stats())
}

func (c *Coordinator) overridesMs() map[types.Language]int {
	out := make(map[types.Language]int)
	for lang, d := range c.estimator.Overrides() {
		out[lang] = int(d.Milliseconds())
	}
	return out
}

func (c *Coordinator) persist(key string, v any) {
	if c.writer == nil {
		return
	}
	if err := c.writer.Put(key, v); err != nil {
		observe.Logger(c.logCtx()).Warn("session: persist", "key", key, "err", err)
	}
}

// load restores persisted preferences. Failures are logged and the factory
// values are kept.
func (c *Coordinator) load(ctx context.Context) {
	if c.prefs == nil {
		return
	}
	log := observe.Logger(ctx)
	warn := func(key string, err error) {
		log.Warn("session: load preference", "key", key, "err", err)
	}

	var samples []debounce.Sample
	if ok, err := c.prefs.Load(ctx, store.KeyDebounceSamples, &samples); err != nil {
		warn(store.KeyDebounceSamples, err)
	} else if ok {
		n := c.sampler.Restore(samples)
		log.Debug("session: restored pause samples", "count", n)
	}

	var overrides map[types.Language]int
	if ok, err := c.prefs.Load(ctx, store.KeyDebounceOverrides, &overrides); err != nil {
		warn(store.KeyDebounceOverrides, err)
	} else if ok {
		for lang, ms := range overrides {
			if c.cfg.knows(lang) && ms > 0 {
				c.estimator.SetOverride(lang, time.Duration(ms)*time.Millisecond)
			}
		}
	}

	var invalidated bool
	if ok, err := c.prefs.Load(ctx, store.KeyDebounceInvalidated, &invalidated); err != nil {
		warn(store.KeyDebounceInvalidated, err)
	} else if ok && invalidated {
		c.estimator.Invalidate()
	}

	var rate float64
	if ok, err := c.prefs.Load(ctx, store.KeySpeechRate, &rate); err != nil {
		warn(store.KeySpeechRate, err)
	} else if ok {
		c.speechRate = tts.ClampRate(rate)
	}

	var enabled bool
	if ok, err := c.prefs.Load(ctx, store.KeySpeechEnabled, &enabled); err != nil {
		warn(store.KeySpeechEnabled, err)
	} else if ok {
		c.speechEnabled = enabled
	}
}
