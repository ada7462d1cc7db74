package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Preference keys.
const (
	KeyDebounceSamples     = "debounce.samples"
	KeyDebounceOverrides   = "debounce.overrides"
	KeyDebounceInvalidated = "debounce.invalidated"
	KeySpeechRate          = "speech.rate"
	KeySpeechEnabled       = "speech.enabled"
)

// Prefs stores JSON-encoded values in a [Store], optionally under a
// namespace so several profiles can share one backend.
type Prefs struct {
	store     Store
	namespace string
}

// NewPrefs creates a Prefs over s. An empty namespace uses bare keys.
func NewPrefs(s Store, namespace string) *Prefs {
	return &Prefs{store: s, namespace: namespace}
}

// Key returns the backend key for key.
func (p *Prefs) Key(key string) string {
	if p.namespace == "" {
		return key
	}
	return p.namespace + "/" + key
}

// Load decodes the value under key into v. It reports false, without error,
// when the key does not exist.
func (p *Prefs) Load(ctx context.Context, key string, v any) (bool, error) {
	raw, err := p.store.Get(ctx, p.Key(key))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("store: decode %q: %w", key, err)
	}
	return true, nil
}

// Save encodes v as JSON under key.
func (p *Prefs) Save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", key, err)
	}
	return p.store.Set(ctx, p.Key(key), raw)
}

// Delete removes key.
func (p *Prefs) Delete(ctx context.Context, key string) error {
	return p.store.Delete(ctx, p.Key(key))
}
