package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AichiroFunakoshi/bridge/internal/debounce"
	"github.com/AichiroFunakoshi/bridge/internal/transcript"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/translate"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/tts"
	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

// ValidProviderNames lists the translation backends known to the server.
// [Validate] warns about names outside this list.
var ValidProviderNames = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads, defaults and validates the YAML file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, applies defaults and validates. An
// empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field of cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	dp := debounce.DefaultParams()
	defaultLang(&cfg.Languages.A, LanguageConfig{
		Code:              string(types.Japanese),
		Locale:            "ja-JP",
		Formatter:         transcript.FormatterJapanese,
		DefaultDebounceMs: int(dp.Defaults[types.Japanese].Milliseconds()),
	})
	defaultLang(&cfg.Languages.B, LanguageConfig{
		Code:              string(types.English),
		Locale:            "en-US",
		Formatter:         transcript.FormatterNone,
		DefaultDebounceMs: int(dp.Defaults[types.English].Milliseconds()),
	})

	t := &cfg.Translation
	if t.Provider.Name == "" {
		t.Provider.Name = "openai"
	}
	if t.Temperature == 0 {
		t.Temperature = translate.DefaultTemperature
	}
	if t.SystemPrompt == "" {
		t.SystemPrompt = translate.DefaultSystemPrompt
	}
	defaultEntry(&t.Provider, t)
	for i := range t.Fallbacks {
		defaultEntry(&t.Fallbacks[i], t)
	}

	s := &cfg.Speech
	if s.Rate == 0 {
		s.Rate = tts.DefaultRate
	}
	if s.RestartAfterEnd == 0 {
		s.RestartAfterEnd = 100 * time.Millisecond
	}
	if s.RestartAfterPlayback == 0 {
		s.RestartAfterPlayback = 200 * time.Millisecond
	}

	d := &cfg.Debounce
	setInt(&d.MinSamplesPerLanguage, dp.MinPerLanguage)
	setInt(&d.MinSamplesTotal, dp.MinTotal)
	setInt(&d.Capacity, debounce.DefaultCapacity)
	setInt(&d.MinDelayMs, int(dp.MinDelay.Milliseconds()))
	setInt(&d.MaxDelayMs, int(dp.MaxDelay.Milliseconds()))
	setInt(&d.FallbackMs, int(dp.Fallback.Milliseconds()))
	setInt(&d.WindowMinMs, int(debounce.DefaultMinPause.Milliseconds()))
	setInt(&d.WindowMaxMs, int(debounce.DefaultMaxPause.Milliseconds()))
	if d.Percentile == 0 {
		d.Percentile = dp.Percentile
	}
	if d.BufferFactor == 0 {
		d.BufferFactor = dp.BufferFactor
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreMemory
	}
	setInt(&cfg.Diagnostics.JournalCapacity, 100)
	setInt(&cfg.Diagnostics.ReportTail, 50)
	if cfg.Diagnostics.ServiceName == "" {
		cfg.Diagnostics.ServiceName = "bridge"
	}
	if cfg.Diagnostics.TraceSampleRatio == 0 {
		cfg.Diagnostics.TraceSampleRatio = 1
	}
}

func defaultLang(l *LanguageConfig, def LanguageConfig) {
	if l.Code == "" {
		*l = def
		return
	}
	if l.Code != def.Code {
		return
	}
	if l.Locale == "" {
		l.Locale = def.Locale
	}
	if l.Formatter == "" {
		l.Formatter = def.Formatter
	}
	setInt(&l.DefaultDebounceMs, def.DefaultDebounceMs)
}

func defaultEntry(e *ProviderEntry, t *TranslationConfig) {
	if e.Model == "" && e.Name == "openai" {
		e.Model = translate.DefaultModel
	}
	if e.Temperature == 0 {
		e.Temperature = t.Temperature
	}
	if e.SystemPrompt == "" {
		e.SystemPrompt = t.SystemPrompt
	}
}

func setInt(p *int, def int) {
	if *p == 0 {
		*p = def
	}
}

// Validate checks cfg for coherence and returns every problem found joined
// into one error. Questionable but usable values are logged as warnings.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !cfg.Server.LogLevel.IsValid() {
		add("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		add("server.tls requires both cert_file and key_file")
	}

	validateLang := func(prefix string, l LanguageConfig) {
		if l.Code == "" {
			add("%s.code is required", prefix)
		}
		if l.Locale == "" {
			add("%s.locale is required", prefix)
		}
		if _, err := transcript.ByName(l.Formatter); err != nil {
			add("%s.formatter: %w", prefix, err)
		}
		if l.DefaultDebounceMs < 0 {
			add("%s.default_debounce_ms must not be negative", prefix)
		}
	}
	validateLang("languages.a", cfg.Languages.A)
	validateLang("languages.b", cfg.Languages.B)
	if cfg.Languages.A.Code != "" && cfg.Languages.A.Code == cfg.Languages.B.Code {
		add("languages.a and languages.b must differ; both are %q", cfg.Languages.A.Code)
	}

	validateEntry := func(prefix string, e ProviderEntry) {
		if e.Name == "" {
			add("%s.name is required", prefix)
			return
		}
		if !slices.Contains(ValidProviderNames, e.Name) {
			slog.Warn("unknown translation provider; may be a typo or a third-party registration",
				"field", prefix, "name", e.Name, "known", ValidProviderNames)
		}
		if e.Temperature < 0 || e.Temperature > 2 {
			add("%s.temperature %.2f is out of range [0, 2]", prefix, e.Temperature)
		}
	}
	validateEntry("translation.provider", cfg.Translation.Provider)
	for i, fb := range cfg.Translation.Fallbacks {
		validateEntry(fmt.Sprintf("translation.fallbacks[%d]", i), fb)
	}
	if cfg.Translation.Timeout < 0 {
		add("translation.timeout must not be negative")
	}

	s := cfg.Speech
	if s.Rate < tts.MinRate || s.Rate > tts.MaxRate {
		add("speech.rate %.2f is out of range [%.1f, %.1f]", s.Rate, tts.MinRate, tts.MaxRate)
	}
	if s.RestartAfterEnd < 0 || s.RestartAfterPlayback < 0 {
		add("speech restart delays must not be negative")
	}

	d := cfg.Debounce
	if d.Percentile <= 0 || d.Percentile > 1 {
		add("debounce.percentile %.2f is out of range (0, 1]", d.Percentile)
	}
	if d.BufferFactor <= 0 {
		add("debounce.buffer_factor must be positive")
	}
	if d.MinDelayMs > d.MaxDelayMs {
		add("debounce.min_delay_ms %d exceeds max_delay_ms %d", d.MinDelayMs, d.MaxDelayMs)
	}
	if d.WindowMinMs >= d.WindowMaxMs {
		add("debounce.window_min_ms %d must be below window_max_ms %d", d.WindowMinMs, d.WindowMaxMs)
	}
	if d.Capacity < 0 || d.MinSamplesPerLanguage < 0 || d.MinSamplesTotal < 0 {
		add("debounce sample counts must not be negative")
	}
	if d.MinSamplesPerLanguage > d.Capacity {
		slog.Warn("debounce.min_samples_per_language exceeds capacity; learned delays will never be used",
			"min", d.MinSamplesPerLanguage, "capacity", d.Capacity)
	}

	switch {
	case !cfg.Store.Driver.IsValid():
		add("store.driver %q is invalid; valid values: memory, sqlite, postgres", cfg.Store.Driver)
	case cfg.Store.Driver != StoreMemory && cfg.Store.DSN == "":
		add("store.dsn is required for driver %q", cfg.Store.Driver)
	}

	if cfg.Diagnostics.JournalCapacity < 0 || cfg.Diagnostics.ReportTail < 0 {
		add("diagnostics sizes must not be negative")
	}
	if r := cfg.Diagnostics.TraceSampleRatio; r < 0 || r > 1 {
		add("diagnostics.trace_sample_ratio %v must be in (0, 1]", r)
	}

	return errors.Join(errs...)
}
