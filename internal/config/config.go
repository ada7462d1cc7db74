// Package config provides the configuration schema, loader, hot-reload
// watcher and translation provider registry for the Bridge server.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StoreDriver selects the preference store backend.
type StoreDriver string

const (
	StoreMemory   StoreDriver = "memory"
	StoreSQLite   StoreDriver = "sqlite"
	StorePostgres StoreDriver = "postgres"
)

// IsValid reports whether d is a recognised driver.
func (d StoreDriver) IsValid() bool {
	return d == StoreMemory || d == StoreSQLite || d == StorePostgres
}

// Config is the root of the YAML configuration file. Load it with [Load] or
// [LoadFromReader]; both apply defaults and validate.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Languages   LanguagesConfig   `yaml:"languages"`
	Translation TranslationConfig `yaml:"translation"`
	Speech      SpeechConfig      `yaml:"speech"`
	Debounce    DebounceConfig    `yaml:"debounce"`
	Store       StoreConfig       `yaml:"store"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address to listen on. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins lists host patterns accepted for websocket upgrades in
	// addition to the server's own origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSConfig holds PEM certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LanguagesConfig declares the two conversation languages.
type LanguagesConfig struct {
	A LanguageConfig `yaml:"a"`
	B LanguageConfig `yaml:"b"`
}

// LanguageConfig describes one conversation language.
type LanguageConfig struct {
	// Code is the short language code, e.g. "ja".
	Code string `yaml:"code"`

	// Locale is the recognizer and speaker locale, e.g. "ja-JP".
	Locale string `yaml:"locale"`

	// Formatter post-processes finalized transcript text: "none" or
	// "japanese".
	Formatter string `yaml:"formatter"`

	// DefaultDebounceMs is the delay used until enough pauses are learned.
	DefaultDebounceMs int `yaml:"default_debounce_ms"`
}

// TranslationConfig selects the translation backends.
type TranslationConfig struct {
	// Provider is the primary backend.
	Provider ProviderEntry `yaml:"provider"`

	// Fallbacks are tried in order when the primary is unavailable.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Temperature and SystemPrompt are the defaults for entries that leave
	// them unset.
	Temperature  float64 `yaml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt"`

	// Timeout bounds a single translation request. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`

	// Breaker tunes the per-backend circuit breaker.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes a circuit breaker. Zero values use the defaults.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// ProviderEntry configures one translation backend. Name selects the
// factory registered in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation, e.g. "openai" or
	// "anthropic".
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. Empty keys fall back to the
	// provider's usual environment variable where supported.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects the model. Default "gpt-4.1-nano" for openai.
	Model string `yaml:"model"`

	// Temperature and SystemPrompt override the translation defaults.
	Temperature  float64 `yaml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt"`

	// Options holds provider-specific values.
	Options map[string]any `yaml:"options"`
}

// SpeechConfig holds speech-output and capture-restart settings.
type SpeechConfig struct {
	// Enabled turns automatic playback of translations on. Default true.
	// Hot-reloadable for new sessions.
	Enabled *bool `yaml:"enabled"`

	// Rate is the playback rate in [0.5, 2.0]. Default 1.0.
	Rate float64 `yaml:"rate"`

	// RestartAfterEnd is the delay before restarting a recognizer that
	// ended on its own. Default 100ms.
	RestartAfterEnd time.Duration `yaml:"restart_after_end"`

	// RestartAfterPlayback is the delay before resuming capture after
	// playback. Default 200ms.
	RestartAfterPlayback time.Duration `yaml:"restart_after_playback"`
}

// SpeechEnabled dereferences Enabled, defaulting to true.
func (s SpeechConfig) SpeechEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// DebounceConfig tunes pause learning. Zero values use the defaults.
type DebounceConfig struct {
	MinSamplesPerLanguage int     `yaml:"min_samples_per_language"`
	MinSamplesTotal       int     `yaml:"min_samples_total"`
	Capacity              int     `yaml:"capacity"`
	Percentile            float64 `yaml:"percentile"`
	BufferFactor          float64 `yaml:"buffer_factor"`
	MinDelayMs            int     `yaml:"min_delay_ms"`
	MaxDelayMs            int     `yaml:"max_delay_ms"`
	FallbackMs            int     `yaml:"fallback_ms"`
	WindowMinMs           int     `yaml:"window_min_ms"`
	WindowMaxMs           int     `yaml:"window_max_ms"`
}

// StoreConfig selects where preferences are persisted.
type StoreConfig struct {
	// Driver is "memory", "sqlite" or "postgres". Default "memory".
	Driver StoreDriver `yaml:"driver"`

	// DSN is the SQLite file path or the PostgreSQL connection string.
	DSN string `yaml:"dsn"`
}

// DiagnosticsConfig sizes the in-memory log journal and names the process
// in exported telemetry.
type DiagnosticsConfig struct {
	// JournalCapacity is the number of log records kept. Default 100.
	JournalCapacity int `yaml:"journal_capacity"`

	// ReportTail is the number of records included in a report. Default 50.
	ReportTail int `yaml:"report_tail"`

	// ServiceName is the service.name of metrics and traces. Default "bridge".
	ServiceName string `yaml:"service_name"`

	// TraceSampleRatio is the fraction of root traces recorded, in (0, 1].
	// Default 1.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}
