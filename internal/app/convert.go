package app

import (
	"fmt"
	"time"

	"github.com/AichiroFunakoshi/bridge/internal/config"
	"github.com/AichiroFunakoshi/bridge/internal/debounce"
	"github.com/AichiroFunakoshi/bridge/internal/session"
	"github.com/AichiroFunakoshi/bridge/internal/transcript"
	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

// SessionConfig converts the file configuration into the coordinator's.
func SessionConfig(cfg *config.Config) (session.Config, error) {
	a, err := sessionLanguage(cfg.Languages.A)
	if err != nil {
		return session.Config{}, fmt.Errorf("app: language a: %w", err)
	}
	b, err := sessionLanguage(cfg.Languages.B)
	if err != nil {
		return session.Config{}, fmt.Errorf("app: language b: %w", err)
	}

	d := cfg.Debounce
	return session.Config{
		A: a,
		B: b,
		Debounce: debounce.Params{
			Defaults: map[types.Language]time.Duration{
				a.Code: ms(cfg.Languages.A.DefaultDebounceMs),
				b.Code: ms(cfg.Languages.B.DefaultDebounceMs),
			},
			Fallback:       ms(d.FallbackMs),
			MinPerLanguage: d.MinSamplesPerLanguage,
			MinTotal:       d.MinSamplesTotal,
			Percentile:     d.Percentile,
			BufferFactor:   d.BufferFactor,
			MinDelay:       ms(d.MinDelayMs),
			MaxDelay:       ms(d.MaxDelayMs),
		},
		SampleCapacity:       d.Capacity,
		SampleWindowMin:      ms(d.WindowMinMs),
		SampleWindowMax:      ms(d.WindowMaxMs),
		SpeechEnabled:        cfg.Speech.SpeechEnabled(),
		SpeechRate:           cfg.Speech.Rate,
		RestartAfterEnd:      cfg.Speech.RestartAfterEnd,
		RestartAfterPlayback: cfg.Speech.RestartAfterPlayback,
		TranslationTimeout:   cfg.Translation.Timeout,
	}, nil
}

func sessionLanguage(l config.LanguageConfig) (session.Language, error) {
	f, err := transcript.ByName(l.Formatter)
	if err != nil {
		return session.Language{}, err
	}
	return session.Language{Code: types.Language(l.Code), Locale: l.Locale, Formatter: f}, nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
