// Package anyllm provides a multi-vendor translation backend backed by
// github.com/mozilla-ai/any-llm-go. It lets the translator run on any
// chat-capable vendor the library supports (OpenAI, Anthropic, Gemini,
// Ollama, DeepSeek, Mistral, Groq, llama.cpp, llamafile).
//
// Usage:
//
//	b, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/AichiroFunakoshi/bridge/pkg/provider/translate"
)

// Vendors lists the vendor names accepted by [New].
var Vendors = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Backend implements translate.Backend by wrapping an any-llm-go provider.
type Backend struct {
	backend      anyllmlib.Provider
	vendor       string
	model        string
	temperature  float64
	systemPrompt string
}

// Compile-time interface assertion.
var _ translate.Backend = (*Backend)(nil)

// Setting tunes the prompt side of a Backend.
type Setting func(*Backend)

// WithTemperature overrides [translate.DefaultTemperature].
func WithTemperature(t float64) Setting {
	return func(b *Backend) { b.temperature = t }
}

// WithSystemPrompt overrides [translate.DefaultSystemPrompt].
func WithSystemPrompt(p string) Setting {
	return func(b *Backend) { b.systemPrompt = p }
}

// New creates a Backend for the given vendor.
//
// opts are any-llm-go options (anyllmlib.WithAPIKey, anyllmlib.WithBaseURL).
// Without an API key option the vendor's usual environment variable is used
// (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...).
func New(vendor, model string, opts []anyllmlib.Option, settings ...Setting) (*Backend, error) {
	if vendor == "" {
		return nil, fmt.Errorf("anyllm: vendor must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(vendor, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", vendor, err)
	}

	b := &Backend{
		backend:      backend,
		vendor:       strings.ToLower(vendor),
		model:        model,
		temperature:  translate.DefaultTemperature,
		systemPrompt: translate.DefaultSystemPrompt,
	}
	for _, s := range settings {
		s(b)
	}
	return b, nil
}

// createBackend creates the underlying any-llm-go provider for vendor.
func createBackend(vendor string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(vendor) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported vendor %q; supported: %s", vendor, strings.Join(Vendors, ", "))
	}
}

// StreamTranslate implements translate.Backend.
func (b *Backend) StreamTranslate(ctx context.Context, req translate.Request) (<-chan translate.Chunk, error) {
	backendChunks, backendErrs := b.backend.CompletionStream(ctx, b.buildParams(req))

	ch := make(chan translate.Chunk, 32)
	go func() {
		defer close(ch)

		for chunk := range backendChunks {
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			select {
			case ch <- translate.Chunk{Text: text}:
			case <-ctx.Done():
				return
			}
		}

		// Check for backend errors after the chunk channel is drained.
		if err := <-backendErrs; err != nil {
			select {
			case ch <- translate.Chunk{Err: fmt.Errorf("anyllm: %s stream: %w", b.vendor, err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// buildParams converts a translate.Request into any-llm-go params.
func (b *Backend) buildParams(req translate.Request) anyllmlib.CompletionParams {
	t := b.temperature
	return anyllmlib.CompletionParams{
		Model: b.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: b.systemPrompt},
			{Role: anyllmlib.RoleUser, Content: translate.UserPrompt(req)},
		},
		Temperature: &t,
	}
}
