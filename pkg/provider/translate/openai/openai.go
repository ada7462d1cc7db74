// Package openai provides a translation backend backed by the OpenAI chat
// completions API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/AichiroFunakoshi/bridge/pkg/provider/translate"
)

// Backend implements translate.Backend using streaming chat completions.
type Backend struct {
	client       oai.Client
	model        string
	temperature  float64
	systemPrompt string
}

// Compile-time interface assertion.
var _ translate.Backend = (*Backend)(nil)

// config holds optional configuration for the backend.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	maxRetries   int
	temperature  float64
	systemPrompt string
}

// Option is a functional option for Backend.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Any OpenAI-compatible
// endpoint (Azure gateways, local proxies) may be used.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout. Streams that take longer are
// reported as failures.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the client retries retryable failures before
// the stream is opened. Negative values keep the SDK default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// WithTemperature overrides [translate.DefaultTemperature].
func WithTemperature(t float64) Option {
	return func(c *config) {
		c.temperature = t
	}
}

// WithSystemPrompt overrides [translate.DefaultSystemPrompt].
func WithSystemPrompt(p string) Option {
	return func(c *config) {
		c.systemPrompt = p
	}
}

// New constructs a Backend. An empty model selects [translate.DefaultModel].
func New(apiKey, model string, opts ...Option) (*Backend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = translate.DefaultModel
	}

	cfg := &config{
		maxRetries:   -1,
		temperature:  translate.DefaultTemperature,
		systemPrompt: translate.DefaultSystemPrompt,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Backend{
		client:       oai.NewClient(reqOpts...),
		model:        model,
		temperature:  cfg.temperature,
		systemPrompt: cfg.systemPrompt,
	}, nil
}

// Model returns the configured model name.
func (b *Backend) Model() string { return b.model }

// StreamTranslate implements translate.Backend.
func (b *Backend) StreamTranslate(ctx context.Context, req translate.Request) (<-chan translate.Chunk, error) {
	stream := b.client.Chat.Completions.NewStreaming(ctx, b.buildParams(req))
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", mapError(err))
	}

	ch := make(chan translate.Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
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

		if err := stream.Err(); err != nil {
			select {
			case ch <- translate.Chunk{Err: fmt.Errorf("openai: stream: %w", mapError(err))}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// buildParams converts a translate.Request into OpenAI SDK params.
func (b *Backend) buildParams(req translate.Request) oai.ChatCompletionNewParams {
	return oai.ChatCompletionNewParams{
		Model: shared.ChatModel(b.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(b.systemPrompt),
			oai.UserMessage(translate.UserPrompt(req)),
		},
		Temperature: param.NewOpt(b.temperature),
	}
}

// mapError translates SDK errors into the translate error vocabulary.
func mapError(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return &translate.HTTPError{Status: apiErr.StatusCode, Message: apiErr.Message}
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %v", translate.ErrParse, err)
	}
	return err
}
