// Package speechio serializes microphone capture and speech-output playback
// so the two never run at the same time.
//
// An [Arbiter] owns one [stt.Recognizer] and one [tts.Speaker]. It tracks the
// recognizer lifecycle explicitly (idle, starting, running, stopping) and
// tags every start with a run ID and every utterance with an utterance ID, so
// lifecycle events that belong to an earlier run or utterance are ignored.
//
// Starting playback while capture is active requests a capture stop before
// Speak is issued but does not wait for the recognizer to acknowledge it.
// When playback ends and the session still wants to capture, exactly one
// restart is scheduled after a short delay; the restart re-checks state when
// it fires.
//
// Arbiter is not safe for concurrent use. It is owned by the session event
// loop, and its scheduler must deliver timer callbacks onto that loop.
package speechio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AichiroFunakoshi/bridge/internal/observe"
	"github.com/AichiroFunakoshi/bridge/internal/schedule"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/stt"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/tts"
	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

// Restart delays.
const (
	DefaultRestartAfterEnd      = 100 * time.Millisecond
	DefaultRestartAfterPlayback = 200 * time.Millisecond
)

// ErrSpeaking is returned by [Arbiter.StartCapture] while playback is active.
var ErrSpeaking = errors.New("speechio: playback in progress")

// State is the externally visible arbiter state.
type State int

const (
	// Idle means no capture is wanted and nothing is playing.
	Idle State = iota

	// CaptureActive means the recognizer is starting or running.
	CaptureActive

	// CaptureSuspended means capture is wanted but the recognizer is
	// currently stopped, stopping or waiting for a restart.
	CaptureSuspended

	// Speaking means an utterance is playing. Capture is never active.
	Speaking
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CaptureActive:
		return "capture_active"
	case CaptureSuspended:
		return "capture_suspended"
	case Speaking:
		return "speaking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// recStatus is the recognizer lifecycle as seen by the arbiter.
type recStatus int

const (
	recIdle recStatus = iota
	recStarting
	recRunning
	recStopping
)

func (s recStatus) String() string {
	switch s {
	case recStarting:
		return "starting"
	case recRunning:
		return "running"
	case recStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// Arbiter is the capture/playback state machine.
type Arbiter struct {
	rec     stt.Recognizer
	speaker tts.Speaker
	sched   schedule.Scheduler
	metrics *observe.Metrics
	ctx     context.Context
	locales map[types.Language]string

	afterEnd      time.Duration
	afterPlayback time.Duration

	onPlayback     func(playing bool)
	onCaptureError func(err error)

	// Capture.
	wantCapture bool
	lang        types.Language
	status      recStatus
	run         uint64

	// accepting is the run whose results belong to the current capture, or
	// 0 once a stop has been requested.
	accepting uint64

	// Playback.
	speaking  bool
	utterance uint64
	text      string

	// Restart guard.
	restart      schedule.Timer
	restartToken uint64
}

// Option is a functional option for [New].
type Option func(*Arbiter)

// WithScheduler sets the timer source for restarts.
func WithScheduler(s schedule.Scheduler) Option {
	return func(a *Arbiter) {
		if s != nil {
			a.sched = s
		}
	}
}

// WithRestartDelays overrides the restart delays after an unexpected
// recognizer end and after playback. Non-positive values keep the defaults.
func WithRestartDelays(afterEnd, afterPlayback time.Duration) Option {
	return func(a *Arbiter) {
		if afterEnd > 0 {
			a.afterEnd = afterEnd
		}
		if afterPlayback > 0 {
			a.afterPlayback = afterPlayback
		}
	}
}

// WithLocales maps languages to the locale tags passed to the recognizer and
// the speaker. Unmapped languages use their code.
func WithLocales(m map[types.Language]string) Option {
	return func(a *Arbiter) {
		for k, v := range m {
			a.locales[k] = v
		}
	}
}

// WithPlaybackListener is called whenever playback starts or stops.
func WithPlaybackListener(fn func(playing bool)) Option {
	return func(a *Arbiter) {
		a.onPlayback = fn
	}
}

// WithCaptureErrorHandler is called when a scheduled restart fails to start
// the recognizer. Capture is no longer wanted at that point.
func WithCaptureErrorHandler(fn func(err error)) Option {
	return func(a *Arbiter) {
		a.onCaptureError = fn
	}
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Arbiter) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithContext sets the context used for logging and metrics.
func WithContext(ctx context.Context) Option {
	return func(a *Arbiter) {
		if ctx != nil {
			a.ctx = ctx
		}
	}
}

// New creates an idle Arbiter.
func New(rec stt.Recognizer, speaker tts.Speaker, opts ...Option) *Arbiter {
	a := &Arbiter{
		rec:           rec,
		speaker:       speaker,
		sched:         schedule.Real,
		ctx:           context.Background(),
		locales:       make(map[types.Language]string),
		afterEnd:      DefaultRestartAfterEnd,
		afterPlayback: DefaultRestartAfterPlayback,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

func (a *Arbiter) locale(lang types.Language) string {
	if l, ok := a.locales[lang]; ok && l != "" {
		return l
	}
	return string(lang)
}

// State returns the current state.
func (a *Arbiter) State() State {
	switch {
	case a.speaking:
		return Speaking
	case a.wantCapture && (a.status == recStarting || a.status == recRunning):
		return CaptureActive
	case a.wantCapture:
		return CaptureSuspended
	default:
		return Idle
	}
}

// Speaking reports whether an utterance is playing.
func (a *Arbiter) Speaking() bool { return a.speaking }

// WantCapture reports whether the session expects capture to be running.
func (a *Arbiter) WantCapture() bool { return a.wantCapture }

// Language returns the capture language of the last StartCapture.
func (a *Arbiter) Language() types.Language { return a.lang }

// Run returns the ID of the most recent recognizer start.
func (a *Arbiter) Run() uint64 { return a.run }

// Recognizer returns the recognizer lifecycle as tracked by the arbiter:
// "idle", "starting", "running" or "stopping".
func (a *Arbiter) Recognizer() string { return a.status.String() }

// Accepts reports whether results from run belong to the current capture.
// Results of a run that has been asked to stop are never accepted, even
// while that run is still the latest one started.
func (a *Arbiter) Accepts(run uint64) bool {
	return run != 0 && run == a.accepting
}

// RestartPending reports whether a capture restart is scheduled.
func (a *Arbiter) RestartPending() bool { return a.restart != nil }

// StartCapture begins recognition in lang. It fails with [ErrSpeaking] while
// playback is active and with the recognizer's error when it cannot start.
// A recognizer that reports it is already started counts as running.
func (a *Arbiter) StartCapture(lang types.Language) error {
	if a.speaking {
		return ErrSpeaking
	}
	a.wantCapture = true
	a.lang = lang
	a.cancelRestart()
	if err := a.start(); err != nil {
		a.wantCapture = false
		return err
	}
	return nil
}

// start issues a recognizer start unless one is already in progress. While
// the recognizer is stopping, the restart happens when it reports its end.
func (a *Arbiter) start() error {
	if a.status != recIdle {
		return nil
	}
	a.run++
	a.status = recStarting
	err := a.rec.Start(a.run, a.locale(a.lang))
	switch {
	case err == nil:
		a.accepting = a.run
		return nil
	case errors.Is(err, stt.ErrAlreadyStarted):
		observe.Logger(a.ctx).Debug("speechio: recognizer already started", "run", a.run)
		a.status = recRunning
		a.accepting = a.run
		return nil
	default:
		a.status = recIdle
		a.accepting = 0
		return fmt.Errorf("speechio: start recognizer: %w", err)
	}
}

// StopCapture ends capture without touching playback.
func (a *Arbiter) StopCapture() {
	a.wantCapture = false
	a.cancelRestart()
	a.stopRecognizer()
}

func (a *Arbiter) stopRecognizer() {
	a.accepting = 0
	if a.status != recStarting && a.status != recRunning {
		return
	}
	a.status = recStopping
	if err := a.rec.Stop(); err != nil {
		// No end event follows a failed stop.
		observe.Logger(a.ctx).Debug("speechio: stop recognizer", "run", a.run, "err", err)
		a.status = recIdle
	}
}

// OnRecognitionStarted handles the recognizer's start acknowledgement.
func (a *Arbiter) OnRecognitionStarted(run uint64) {
	if run != a.run {
		return
	}
	if a.status == recStarting {
		a.status = recRunning
	}
}

// OnRecognitionEnded handles the end of a recognizer run. An end that was not
// requested while capture is still wanted schedules a restart.
func (a *Arbiter) OnRecognitionEnded(run uint64) {
	if run != a.run {
		observe.Logger(a.ctx).Debug("speechio: stale recognizer end", "run", run, "current", a.run)
		return
	}
	a.status = recIdle
	a.accepting = 0
	if a.wantCapture && !a.speaking {
		a.scheduleRestart(a.afterEnd, "ended")
	}
}

// BeginPlayback speaks text in lang at rate. Any current utterance is
// cancelled first, and running capture is asked to stop before Speak is
// issued. Blank text is ignored.
func (a *Arbiter) BeginPlayback(text string, lang types.Language, rate float64) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	wasSpeaking := a.speaking
	if a.speaking {
		if err := a.speaker.CancelAll(); err != nil {
			observe.Logger(a.ctx).Debug("speechio: cancel playback", "err", err)
		}
	}
	a.cancelRestart()
	a.stopRecognizer()

	a.utterance++
	a.speaking = true
	a.text = text
	u := tts.Utterance{
		ID:     a.utterance,
		Text:   text,
		Locale: a.locale(lang),
		Rate:   tts.ClampRate(rate),
	}
	if err := a.speaker.Speak(u); err != nil {
		a.speaking = false
		a.text = ""
		if wasSpeaking {
			a.notifyPlayback(false)
		}
		if a.wantCapture {
			a.scheduleRestart(a.afterPlayback, "playback")
		}
		return fmt.Errorf("speechio: speak: %w", err)
	}
	a.metrics.Playbacks.Add(a.ctx, 1)
	if !wasSpeaking {
		a.notifyPlayback(true)
	}
	return nil
}

// OnPlaybackStarted handles the speaker's start event.
func (a *Arbiter) OnPlaybackStarted(id uint64) {
	if id == a.utterance && a.speaking {
		observe.Logger(a.ctx).Debug("speechio: playback started", "utterance", id)
	}
}

// OnPlaybackEnded handles the end of an utterance.
func (a *Arbiter) OnPlaybackEnded(id uint64) {
	a.playbackDone(id, "")
}

// OnPlaybackFailed handles a failed utterance like an ended one.
func (a *Arbiter) OnPlaybackFailed(id uint64, message string) {
	a.playbackDone(id, message)
}

func (a *Arbiter) playbackDone(id uint64, failure string) {
	if id != a.utterance || !a.speaking {
		return
	}
	if failure != "" {
		observe.Logger(a.ctx).Warn("speechio: playback failed", "utterance", id, "message", failure)
	}
	a.finishPlayback()
}

// finishPlayback clears Speaking and resumes capture when wanted.
func (a *Arbiter) finishPlayback() {
	a.speaking = false
	a.text = ""
	a.notifyPlayback(false)
	if a.wantCapture {
		a.scheduleRestart(a.afterPlayback, "playback")
	}
}

// StopPlayback cancels the current utterance, if any, and resumes capture
// when wanted.
func (a *Arbiter) StopPlayback() {
	if !a.speaking {
		return
	}
	// Events from the cancelled utterance are stale from here on.
	a.utterance++
	if err := a.speaker.CancelAll(); err != nil {
		observe.Logger(a.ctx).Debug("speechio: cancel playback", "err", err)
	}
	a.finishPlayback()
}

// Toggle stops playback while Speaking. Otherwise it speaks lastResult, if
// non-blank, in lang. It reports whether playback was started.
func (a *Arbiter) Toggle(lastResult string, lang types.Language, rate float64) (bool, error) {
	if a.speaking {
		a.StopPlayback()
		return false, nil
	}
	if strings.TrimSpace(lastResult) == "" {
		return false, nil
	}
	if err := a.BeginPlayback(lastResult, lang, rate); err != nil {
		return false, err
	}
	return true, nil
}

// StopAll cancels playback, stops capture and clears every flag.
func (a *Arbiter) StopAll() {
	a.wantCapture = false
	a.cancelRestart()
	if a.speaking {
		a.utterance++
		if err := a.speaker.CancelAll(); err != nil {
			observe.Logger(a.ctx).Debug("speechio: cancel playback", "err", err)
		}
		a.speaking = false
		a.text = ""
		a.notifyPlayback(false)
	}
	a.stopRecognizer()
}

func (a *Arbiter) notifyPlayback(playing bool) {
	if a.onPlayback != nil {
		a.onPlayback(playing)
	}
}

func (a *Arbiter) scheduleRestart(d time.Duration, reason string) {
	if a.restart != nil {
		return
	}
	a.restartToken++
	tok := a.restartToken
	a.metrics.RecordCaptureRestart(a.ctx, reason)
	a.restart = a.sched.AfterFunc(d, func() { a.fireRestart(tok) })
}

func (a *Arbiter) cancelRestart() {
	if a.restart != nil {
		a.restart.Stop()
		a.restart = nil
	}
	a.restartToken++
}

func (a *Arbiter) fireRestart(tok uint64) {
	if tok != a.restartToken || a.restart == nil {
		return
	}
	a.restart = nil
	if !a.wantCapture || a.speaking || a.status != recIdle {
		return
	}
	if err := a.start(); err != nil {
		a.wantCapture = false
		observe.Logger(a.ctx).Error("speechio: restart capture", "err", err)
		if a.onCaptureError != nil {
			a.onCaptureError(err)
		}
	}
}
