package resilience

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AichiroFunakoshi/bridge/internal/observe"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/translate"
)

const kindTranslate = "translate"

// TranslatorFallback implements [translate.Backend] over an ordered set of
// backends. A backend that fails to open its stream, or whose stream fails
// before producing any text, is skipped in favour of the next healthy one.
// Once text has been forwarded a failure is passed through unchanged.
type TranslatorFallback struct {
	group   *FallbackGroup[translate.Backend]
	metrics *observe.Metrics
}

var _ translate.Backend = (*TranslatorFallback)(nil)

// TranslatorOption configures a [TranslatorFallback].
type TranslatorOption func(*TranslatorFallback)

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) TranslatorOption {
	return func(f *TranslatorFallback) {
		if m != nil {
			f.metrics = m
		}
	}
}

// NewTranslatorFallback creates a TranslatorFallback preferring primary.
func NewTranslatorFallback(primary translate.Backend, primaryName string, cfg FallbackConfig, opts ...TranslatorOption) *TranslatorFallback {
	f := &TranslatorFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
	for _, o := range opts {
		o(f)
	}
	if f.metrics == nil {
		f.metrics = observe.DefaultMetrics()
	}
	return f
}

// AddFallback registers another backend.
func (f *TranslatorFallback) AddFallback(name string, b translate.Backend) {
	f.group.AddFallback(name, b)
}

// Breakers returns each backend's breaker in order.
func (f *TranslatorFallback) Breakers() []*CircuitBreaker {
	entries := f.group.Entries()
	out := make([]*CircuitBreaker, len(entries))
	for i, e := range entries {
		out[i] = e.Breaker
	}
	return out
}

// StreamTranslate implements [translate.Backend].
func (f *TranslatorFallback) StreamTranslate(ctx context.Context, req translate.Request) (<-chan translate.Chunk, error) {
	in, done, idx, err := f.open(ctx, req, 0)
	if err != nil {
		return nil, err
	}
	out := make(chan translate.Chunk)
	go f.forward(ctx, req, out, in, done, idx)
	return out, nil
}

// open starts a stream on the first usable entry at or after from.
func (f *TranslatorFallback) open(ctx context.Context, req translate.Request, from int) (<-chan translate.Chunk, func(error), int, error) {
	var lastErr error
	entries := f.group.entries
	for i := from; i < len(entries); i++ {
		e := entries[i]
		done, err := e.Breaker.Allow()
		if err != nil {
			lastErr = err
			logSkip(ctx, e.Name, err)
			continue
		}
		ch, err := e.Value.StreamTranslate(ctx, req)
		if err != nil {
			done(err)
			f.record(ctx, e.Name, err)
			if !IsFailure(err) {
				return nil, nil, i, err
			}
			lastErr = err
			logSkip(ctx, e.Name, err)
			continue
		}
		return ch, done, i, nil
	}
	if lastErr == nil {
		return nil, nil, 0, ErrAllFailed
	}
	return nil, nil, 0, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

func (f *TranslatorFallback) forward(ctx context.Context, req translate.Request, out chan<- translate.Chunk, in <-chan translate.Chunk, done func(error), idx int) {
	defer close(out)
	for {
		name := f.group.entries[idx].Name
		sent := false
		var streamErr error
		for c := range in {
			if c.Err != nil {
				streamErr = c.Err
				continue
			}
			if c.Text == "" {
				continue
			}
			select {
			case out <- c:
				sent = true
			case <-ctx.Done():
				for range in {
				}
				done(ctx.Err())
				return
			}
		}
		done(streamErr)
		f.record(ctx, name, streamErr)
		if streamErr == nil {
			return
		}
		if sent || !IsFailure(streamErr) || ctx.Err() != nil || idx+1 >= len(f.group.entries) {
			f.fail(ctx, out, streamErr)
			return
		}

		slog.WarnContext(ctx, "resilience: translation stream failed before output, trying next",
			"provider", name, "err", streamErr)
		next, nextDone, nextIdx, err := f.open(ctx, req, idx+1)
		if err != nil {
			f.fail(ctx, out, err)
			return
		}
		in, done, idx = next, nextDone, nextIdx
	}
}

func (f *TranslatorFallback) fail(ctx context.Context, out chan<- translate.Chunk, err error) {
	select {
	case out <- translate.Chunk{Err: err}:
	case <-ctx.Done():
	}
}

func (f *TranslatorFallback) record(ctx context.Context, name string, err error) {
	switch {
	case err == nil:
		f.metrics.RecordProviderRequest(ctx, name, kindTranslate, observe.StatusOK)
	case IsFailure(err):
		f.metrics.RecordProviderRequest(ctx, name, kindTranslate, observe.StatusError)
		f.metrics.RecordProviderError(ctx, name, kindTranslate)
	}
}
