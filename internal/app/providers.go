package app

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/AichiroFunakoshi/bridge/internal/config"
	"github.com/AichiroFunakoshi/bridge/internal/observe"
	"github.com/AichiroFunakoshi/bridge/internal/resilience"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/translate"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/translate/anyllm"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/translate/openai"
)

// RegisterBuiltinTranslators wires the translation backends that ship with
// Bridge into reg. "openai" uses the native OpenAI client; every other
// vendor goes through any-llm-go.
func RegisterBuiltinTranslators(reg *config.Registry) {
	reg.RegisterTranslator("openai", func(entry config.ProviderEntry) (translate.Backend, error) {
		key := entry.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		opts := []openai.Option{
			openai.WithTemperature(entry.Temperature),
		}
		if entry.SystemPrompt != "" {
			opts = append(opts, openai.WithSystemPrompt(entry.SystemPrompt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if n, ok := optInt(entry.Options, "max_retries"); ok {
			opts = append(opts, openai.WithMaxRetries(n))
		}
		return openai.New(key, entry.Model, opts...)
	})

	for _, vendor := range anyllm.Vendors {
		if vendor == "openai" {
			continue
		}
		reg.RegisterTranslator(vendor, func(entry config.ProviderEntry) (translate.Backend, error) {
			var opts []anyllmlib.Option
			// ollama is a local server addressed by BaseURL only.
			if entry.APIKey != "" && vendor != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			settings := []anyllm.Setting{anyllm.WithTemperature(entry.Temperature)}
			if entry.SystemPrompt != "" {
				settings = append(settings, anyllm.WithSystemPrompt(entry.SystemPrompt))
			}
			return anyllm.New(vendor, entry.Model, opts, settings...)
		})
	}

	for _, name := range reg.Translators() {
		slog.Debug("registered provider", "kind", "translate", "name", name)
	}
}

// BuildTranslator creates the configured primary backend and its fallbacks,
// each behind its own circuit breaker.
func BuildTranslator(cfg config.TranslationConfig, reg *config.Registry, m *observe.Metrics) (*resilience.TranslatorFallback, error) {
	primary, err := reg.CreateTranslator(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("app: primary translator: %w", err)
	}
	fc := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Breaker.MaxFailures,
			ResetTimeout: cfg.Breaker.ResetTimeout,
			HalfOpenMax:  cfg.Breaker.HalfOpenMax,
		},
	}
	names := []string{entryLabel(cfg.Provider)}
	tf := resilience.NewTranslatorFallback(primary, names[0], fc, resilience.WithMetrics(m))

	for i, entry := range cfg.Fallbacks {
		b, err := reg.CreateTranslator(entry)
		if err != nil {
			return nil, fmt.Errorf("app: fallback translator %d: %w", i, err)
		}
		label := entryLabel(entry)
		if slices.Contains(names, label) {
			label = fmt.Sprintf("%s#%d", label, i+1)
		}
		names = append(names, label)
		tf.AddFallback(label, b)
	}
	return tf, nil
}

// entryLabel names a backend in logs and metrics as "name/model".
func entryLabel(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + "/" + e.Model
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer from a provider Options map. YAML decodes
// integers as int.
func optInt(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
