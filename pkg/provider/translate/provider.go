// Package translate defines the Backend interface for streaming text
// translation services.
//
// A Backend takes one piece of recognized text plus its language pair and
// returns the translation as an incremental stream of text deltas, suitable
// for showing the translation while it is still being generated. Streams are
// aborted by cancelling the context passed to [Backend.StreamTranslate]; after
// cancellation a backend must stop sending deltas promptly, but consumers
// still discard anything that arrives late.
//
// Implementations must be safe for concurrent use.
package translate

import "context"

// Backend is the abstraction over any translation service.
type Backend interface {
	// StreamTranslate starts translating req and returns a channel of chunks.
	//
	// The channel is closed when the stream ends. A successful stream ends by
	// closing the channel without an error chunk. A failed stream sends one
	// final chunk whose Err is set and then closes the channel. Cancelling ctx
	// ends the stream with an error wrapping [context.Canceled] or with a
	// plain close.
	//
	// A non-nil error is returned only when the stream could not be opened.
	StreamTranslate(ctx context.Context, req Request) (<-chan Chunk, error)
}
