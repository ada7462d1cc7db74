package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/AichiroFunakoshi/bridge/pkg/provider/translate"
)

// ErrProviderNotRegistered is returned by [Registry.CreateTranslator] when no
// factory is registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// TranslatorFactory builds a translation backend from its entry.
type TranslatorFactory func(ProviderEntry) (translate.Backend, error)

// Registry maps provider names to constructors. It is safe for concurrent
// use.
type Registry struct {
	mu          sync.RWMutex
	translators map[string]TranslatorFactory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{translators: make(map[string]TranslatorFactory)}
}

// RegisterTranslator registers factory under name, replacing any previous
// registration.
func (r *Registry) RegisterTranslator(name string, factory TranslatorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translators[name] = factory
}

// CreateTranslator builds the backend registered under entry.Name.
func (r *Registry) CreateTranslator(entry ProviderEntry) (translate.Backend, error) {
	r.mu.RLock()
	factory, ok := r.translators[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: translate/%q", ErrProviderNotRegistered, entry.Name)
	}
	b, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create translator %q: %w", entry.Name, err)
	}
	return b, nil
}

// Translators returns the registered names in sorted order.
func (r *Registry) Translators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.translators))
	for n := range r.translators {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
