package gateway

import (
	"context"

	"github.com/AichiroFunakoshi/bridge/internal/debounce"
	"github.com/AichiroFunakoshi/bridge/internal/session"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/stt"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/tts"
	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

const eventBuffer = 64

// remoteRecognizer drives the browser's speech recognizer.
type remoteRecognizer struct {
	out    *outbox
	events chan stt.Event
}

var _ stt.Recognizer = (*remoteRecognizer)(nil)

func newRemoteRecognizer(out *outbox) *remoteRecognizer {
	return &remoteRecognizer{out: out, events: make(chan stt.Event, eventBuffer)}
}

func (r *remoteRecognizer) Start(run uint64, locale string) error {
	return r.out.send(Message{Type: TypeRecognitionStart, Run: run, Locale: locale})
}

func (r *remoteRecognizer) Stop() error {
	return r.out.send(Message{Type: TypeRecognitionStop})
}

func (r *remoteRecognizer) Events() <-chan stt.Event { return r.events }

// deliver hands ev to the coordinator, blocking until it is accepted or ctx
// is done.
func (r *remoteRecognizer) deliver(ctx context.Context, ev stt.Event) error {
	select {
	case r.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// remoteSpeaker drives the browser's speech synthesizer.
type remoteSpeaker struct {
	out    *outbox
	events chan tts.Event
}

var _ tts.Speaker = (*remoteSpeaker)(nil)

func newRemoteSpeaker(out *outbox) *remoteSpeaker {
	return &remoteSpeaker{out: out, events: make(chan tts.Event, eventBuffer)}
}

func (s *remoteSpeaker) Speak(u tts.Utterance) error {
	return s.out.send(Message{Type: TypeSpeak, ID: u.ID, Text: u.Text, Locale: u.Locale, Rate: u.Rate})
}

func (s *remoteSpeaker) CancelAll() error {
	return s.out.send(Message{Type: TypeSpeechCancel})
}

func (s *remoteSpeaker) Events() <-chan tts.Event { return s.events }

func (s *remoteSpeaker) deliver(ctx context.Context, ev tts.Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// remoteSink forwards UI updates to the browser. Send failures close the
// outbox, which ends the connection, so they are not reported here.
type remoteSink struct {
	out *outbox
}

var _ session.Sink = remoteSink{}

func (s remoteSink) WorkingTextUpdated(text string, source, target types.Language) {
	_ = s.out.send(Message{Type: TypeWorkingText, Text: text, Source: source, Target: target})
}

func (s remoteSink) TranslationPartial(text string) {
	_ = s.out.send(Message{Type: TypeTranslationPartial, Text: text})
}

func (s remoteSink) TranslationFinal(text string) {
	_ = s.out.send(Message{Type: TypeTranslationFinal, Text: text})
}

func (s remoteSink) TranslationFailed(message string) {
	_ = s.out.send(Message{Type: TypeTranslationError, Message: message})
}

func (s remoteSink) PlaybackStateChanged(playing bool) {
	_ = s.out.send(Message{Type: TypePlaybackState, Playing: &playing})
}

func (s remoteSink) DebounceStatsChanged(stats debounce.Stats) {
	_ = s.out.send(Message{Type: TypeDebounceStats, Stats: &stats})
}

func (s remoteSink) FatalError(kind, message string) {
	_ = s.out.send(Message{Type: TypeFatalError, Kind: kind, Message: message})
}

func (s remoteSink) SettingsChanged(v session.Settings) {
	_ = s.out.send(Message{Type: TypeSettings, Settings: &v})
}

func (s remoteSink) Cleared() {
	_ = s.out.send(Message{Type: TypeCleared})
}
