package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// LogLevelChanged is applied immediately.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SpeechChanged and DebounceChanged take effect for sessions created
	// after the reload.
	SpeechChanged   bool
	DebounceChanged bool

	// RestartRequired names changed sections that are only read at startup.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.SpeechChanged && !d.DebounceChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Speech.SpeechEnabled() != new.Speech.SpeechEnabled() ||
		old.Speech.Rate != new.Speech.Rate ||
		old.Speech.RestartAfterEnd != new.Speech.RestartAfterEnd ||
		old.Speech.RestartAfterPlayback != new.Speech.RestartAfterPlayback {
		d.SpeechChanged = true
	}
	if old.Debounce != new.Debounce ||
		old.Languages.A.DefaultDebounceMs != new.Languages.A.DefaultDebounceMs ||
		old.Languages.B.DefaultDebounceMs != new.Languages.B.DefaultDebounceMs {
		d.DebounceChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Languages.A.Code != new.Languages.A.Code || old.Languages.B.Code != new.Languages.B.Code ||
		old.Languages.A.Locale != new.Languages.A.Locale || old.Languages.B.Locale != new.Languages.B.Locale ||
		old.Languages.A.Formatter != new.Languages.A.Formatter || old.Languages.B.Formatter != new.Languages.B.Formatter {
		d.RestartRequired = append(d.RestartRequired, "languages")
	}
	if !sameTranslation(old.Translation, new.Translation) {
		d.RestartRequired = append(d.RestartRequired, "translation")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Diagnostics != new.Diagnostics {
		d.RestartRequired = append(d.RestartRequired, "diagnostics")
	}
	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameTranslation(a, b TranslationConfig) bool {
	if a.Timeout != b.Timeout || a.Breaker != b.Breaker || len(a.Fallbacks) != len(b.Fallbacks) {
		return false
	}
	if !sameEntry(a.Provider, b.Provider) {
		return false
	}
	for i := range a.Fallbacks {
		if !sameEntry(a.Fallbacks[i], b.Fallbacks[i]) {
			return false
		}
	}
	return true
}

func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Model == b.Model && a.Temperature == b.Temperature && a.SystemPrompt == b.SystemPrompt &&
		reflect.DeepEqual(a.Options, b.Options)
}
