package gateway

import (
	"errors"
	"testing"

	"github.com/AichiroFunakoshi/bridge/internal/debounce"
	"github.com/AichiroFunakoshi/bridge/internal/session"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/tts"
	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

func TestOutbox_SlowClient(t *testing.T) {
	t.Parallel()
	o := newOutbox(1, 0)

	if err := o.send(Message{Type: TypeCleared}); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := o.send(Message{Type: TypeCleared}); !errors.Is(err, ErrSlowClient) {
		t.Fatalf("second send = %v, want ErrSlowClient", err)
	}
	if err := o.send(Message{Type: TypeCleared}); !errors.Is(err, ErrOutboxClosed) {
		t.Fatalf("send after close = %v, want ErrOutboxClosed", err)
	}
	if !errors.Is(o.cause(), ErrSlowClient) {
		t.Errorf("cause = %v, want ErrSlowClient", o.cause())
	}
}

func TestOutbox_CloseKeepsFirstCause(t *testing.T) {
	t.Parallel()
	o := newOutbox(4, 0)
	o.close(nil)
	o.close(ErrSlowClient)
	if o.cause() != nil {
		t.Errorf("cause = %v, want nil", o.cause())
	}
}

func TestRemote_Messages(t *testing.T) {
	t.Parallel()

	on := true
	stats := debounce.Stats{Total: 3}
	tests := []struct {
		name string
		call func(o *outbox)
		want Message
	}{
		{
			name: "recognizer start",
			call: func(o *outbox) { _ = newRemoteRecognizer(o).Start(7, "ja-JP") },
			want: Message{Type: TypeRecognitionStart, Run: 7, Locale: "ja-JP"},
		},
		{
			name: "recognizer stop",
			call: func(o *outbox) { _ = newRemoteRecognizer(o).Stop() },
			want: Message{Type: TypeRecognitionStop},
		},
		{
			name: "speak",
			call: func(o *outbox) {
				_ = newRemoteSpeaker(o).Speak(tts.Utterance{ID: 2, Text: "hi", Locale: "en-US", Rate: 1.2})
			},
			want: Message{Type: TypeSpeak, ID: 2, Text: "hi", Locale: "en-US", Rate: 1.2},
		},
		{
			name: "cancel",
			call: func(o *outbox) { _ = newRemoteSpeaker(o).CancelAll() },
			want: Message{Type: TypeSpeechCancel},
		},
		{
			name: "working text",
			call: func(o *outbox) { remoteSink{o}.WorkingTextUpdated("です", types.Japanese, types.English) },
			want: Message{Type: TypeWorkingText, Text: "です", Source: types.Japanese, Target: types.English},
		},
		{
			name: "failure",
			call: func(o *outbox) { remoteSink{o}.TranslationFailed("translation timed out") },
			want: Message{Type: TypeTranslationError, Message: "translation timed out"},
		},
		{
			name: "fatal",
			call: func(o *outbox) { remoteSink{o}.FatalError("not-allowed", "microphone blocked") },
			want: Message{Type: TypeFatalError, Kind: "not-allowed", Message: "microphone blocked"},
		},
		{
			name: "playback",
			call: func(o *outbox) { remoteSink{o}.PlaybackStateChanged(true) },
			want: Message{Type: TypePlaybackState, Playing: &on},
		},
		{
			name: "stats",
			call: func(o *outbox) { remoteSink{o}.DebounceStatsChanged(stats) },
			want: Message{Type: TypeDebounceStats, Stats: &stats},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := newOutbox(4, 0)
			tt.call(o)
			select {
			case got := <-o.ch:
				if !sameMessage(got, tt.want) {
					t.Errorf("got %+v, want %+v", got, tt.want)
				}
			default:
				t.Fatal("nothing queued")
			}
		})
	}
}

func TestRemoteSink_Settings(t *testing.T) {
	t.Parallel()
	o := newOutbox(1, 0)
	remoteSink{o}.SettingsChanged(session.Settings{SpeechEnabled: true, SpeechRate: 0.75})
	got := <-o.ch
	if got.Type != TypeSettings || got.Settings == nil || *got.Settings != (session.Settings{SpeechEnabled: true, SpeechRate: 0.75}) {
		t.Errorf("got %+v", got)
	}
}

// sameMessage compares the scalar fields and dereferenced pointers.
func sameMessage(a, b Message) bool {
	if a.Type != b.Type || a.Run != b.Run || a.ID != b.ID || a.Locale != b.Locale ||
		a.Text != b.Text || a.Rate != b.Rate || a.Source != b.Source || a.Target != b.Target ||
		a.Kind != b.Kind || a.Message != b.Message {
		return false
	}
	if (a.Playing == nil) != (b.Playing == nil) || (a.Playing != nil && *a.Playing != *b.Playing) {
		return false
	}
	if (a.Stats == nil) != (b.Stats == nil) || (a.Stats != nil && a.Stats.Total != b.Stats.Total) {
		return false
	}
	return true
}
