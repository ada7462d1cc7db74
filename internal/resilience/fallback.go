package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry of a [FallbackGroup] failed or was
// skipped by its breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig is the breaker template applied to each group entry.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// Entry is one provider of a [FallbackGroup].
type Entry[T any] struct {
	Name    string
	Value   T
	Breaker *CircuitBreaker
}

// FallbackGroup holds a primary provider and ordered fallbacks, each behind
// its own breaker. Entries must all be added before the group is shared.
type FallbackGroup[T any] struct {
	entries []Entry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a provider tried after all earlier ones.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.entries = append(fg.entries, Entry[T]{Name: name, Value: value, Breaker: NewCircuitBreaker(bc)})
}

// Entries returns the group's entries in order.
func (fg *FallbackGroup[T]) Entries() []Entry[T] {
	out := make([]Entry[T], len(fg.entries))
	copy(out, fg.entries)
	return out
}

// Execute calls fn for each entry in turn until one succeeds. A cancelled ctx
// stops the walk and returns ctx's error.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls producing a value.
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range fg.entries {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		e := &fg.entries[i]
		var result R
		err := e.Breaker.Execute(func() error {
			var err error
			result, err = fn(e.Value)
			return err
		})
		if err == nil {
			return result, nil
		}
		if !IsFailure(err) {
			return zero, err
		}
		lastErr = err
		logSkip(ctx, e.Name, err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

func logSkip(ctx context.Context, name string, err error) {
	if errors.Is(err, ErrCircuitOpen) {
		slog.DebugContext(ctx, "resilience: skipping provider, circuit open", "provider", name)
		return
	}
	slog.WarnContext(ctx, "resilience: provider failed, trying next", "provider", name, "err", err)
}
