package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AichiroFunakoshi/bridge/pkg/provider/translate"
	translatemock "github.com/AichiroFunakoshi/bridge/pkg/provider/translate/mock"
	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

var testReq = translate.Request{
	Text: "hello",
	Pair: types.LanguagePair{Source: types.English, Target: types.Japanese},
}

func replying(chunks ...translate.Chunk) *translatemock.Backend {
	return &translatemock.Backend{Reply: func(translate.Request) []translate.Chunk { return chunks }}
}

// collect drains a stream into its text and terminal error.
func collect(t *testing.T, ch <-chan translate.Chunk) (string, error) {
	t.Helper()
	var sb strings.Builder
	var err error
	timeout := time.After(time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return sb.String(), err
			}
			if c.Err != nil {
				err = c.Err
				continue
			}
			sb.WriteString(c.Text)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func newTranslatorFallback(primary, secondary translate.Backend) *TranslatorFallback {
	f := NewTranslatorFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	f.AddFallback("secondary", secondary)
	return f
}

func TestTranslatorFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		primary       *translatemock.Backend
		secondary     *translatemock.Backend
		wantText      string
		wantErr       error
		wantSecondary int
	}{
		{
			name:      "primary streams",
			primary:   replying(translate.Chunk{Text: "こん"}, translate.Chunk{Text: "にちは"}),
			secondary: replying(translate.Chunk{Text: "unused"}),
			wantText:  "こんにちは",
		},
		{
			name:          "open failure falls back",
			primary:       &translatemock.Backend{OpenErr: errTest},
			secondary:     replying(translate.Chunk{Text: "やあ"}),
			wantText:      "やあ",
			wantSecondary: 1,
		},
		{
			name:          "failure before output falls back",
			primary:       replying(translate.Chunk{Err: &translate.HTTPError{Status: 503}}),
			secondary:     replying(translate.Chunk{Text: "やあ"}),
			wantText:      "やあ",
			wantSecondary: 1,
		},
		{
			name:      "failure after output passes through",
			primary:   replying(translate.Chunk{Text: "こん"}, translate.Chunk{Err: translate.ErrParse}),
			secondary: replying(translate.Chunk{Text: "unused"}),
			wantText:  "こん",
			wantErr:   translate.ErrParse,
		},
		{
			name:          "last failure is reported",
			primary:       replying(translate.Chunk{Err: errTest}),
			secondary:     replying(translate.Chunk{Err: translate.ErrParse}),
			wantErr:       translate.ErrParse,
			wantSecondary: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newTranslatorFallback(tt.primary, tt.secondary)
			ch, err := f.StreamTranslate(context.Background(), testReq)
			if err != nil {
				t.Fatalf("StreamTranslate: %v", err)
			}
			text, err := collect(t, ch)
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if got := tt.secondary.CallCount(); got != tt.wantSecondary {
				t.Errorf("secondary calls = %d, want %d", got, tt.wantSecondary)
			}
		})
	}
}

func TestTranslatorFallback_AllOpenFail(t *testing.T) {
	t.Parallel()
	f := newTranslatorFallback(&translatemock.Backend{OpenErr: errTest}, &translatemock.Backend{OpenErr: errTest})
	if _, err := f.StreamTranslate(context.Background(), testReq); !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
		t.Errorf("err = %v, want ErrAllFailed wrapping the cause", err)
	}
}

func TestTranslatorFallback_CancelDoesNotFallBack(t *testing.T) {
	t.Parallel()
	secondary := replying(translate.Chunk{Text: "unused"})
	f := newTranslatorFallback(&translatemock.Backend{OpenErr: context.Canceled}, secondary)

	if _, err := f.StreamTranslate(context.Background(), testReq); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want Canceled", err)
	}
	if secondary.CallCount() != 0 {
		t.Error("cancellation fell back to the secondary")
	}
	if got := f.Breakers()[0].State(); got != StateClosed {
		t.Errorf("primary breaker = %v, want closed", got)
	}
}

func TestTranslatorFallback_OpensBreaker(t *testing.T) {
	t.Parallel()
	primary := &translatemock.Backend{OpenErr: errTest}
	secondary := replying(translate.Chunk{Text: "ok"})
	f := newTranslatorFallback(primary, secondary)

	for i := 0; i < 3; i++ {
		ch, err := f.StreamTranslate(context.Background(), testReq)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if text, _ := collect(t, ch); text != "ok" {
			t.Fatalf("call %d: text = %q", i, text)
		}
	}
	if got := primary.CallCount(); got != 2 {
		t.Errorf("primary calls = %d, want 2 before the breaker opened", got)
	}
	if got := f.Breakers()[0].State(); got != StateOpen {
		t.Errorf("primary breaker = %v, want open", got)
	}
}
