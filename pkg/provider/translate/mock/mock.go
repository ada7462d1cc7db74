// Package mock provides test doubles for the translate package interfaces.
//
// Backend works in two modes. With Reply set, every call streams the chunks
// returned by Reply on its own goroutine and closes the stream. Without it,
// every call opens a [Stream] the test drives by hand through Send, Finish
// and Fail, which makes it possible to interleave chunks of several requests
// deterministically.
package mock

import (
	"context"
	"sync"

	"github.com/AichiroFunakoshi/bridge/pkg/provider/translate"
)

// Stream is a hand-driven translation stream opened by one call.
type Stream struct {
	// Ctx is the context the caller passed to StreamTranslate.
	Ctx context.Context

	// Req is the request the caller passed to StreamTranslate.
	Req translate.Request

	mu     sync.Mutex
	ch     chan translate.Chunk
	closed bool
}

// Send delivers a text delta. It is a no-op once the stream is closed.
// Sending after the caller cancelled Ctx is allowed and models bytes that
// were already in flight.
func (s *Stream) Send(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- translate.Chunk{Text: text}
}

// Fail delivers err as the terminal chunk and closes the stream.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- translate.Chunk{Err: err}
	close(s.ch)
	s.closed = true
}

// Finish closes the stream successfully.
func (s *Stream) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}

// Canceled reports whether the caller cancelled the stream's context.
func (s *Stream) Canceled() bool {
	return s.Ctx.Err() != nil
}

// Backend is a mock implementation of translate.Backend.
type Backend struct {
	mu sync.Mutex

	// Reply, if set, produces the full chunk sequence for each request.
	Reply func(req translate.Request) []translate.Chunk

	// OpenErr, if non-nil, is returned by every StreamTranslate call.
	OpenErr error

	// Calls records every request in order.
	Calls []translate.Request

	streams []*Stream
}

// StreamTranslate records the call and opens a stream.
func (b *Backend) StreamTranslate(ctx context.Context, req translate.Request) (<-chan translate.Chunk, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, req)
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}

	if b.Reply != nil {
		chunks := b.Reply(req)
		ch := make(chan translate.Chunk, len(chunks))
		go func() {
			defer close(ch)
			for _, c := range chunks {
				select {
				case ch <- c:
				case <-ctx.Done():
					return
				}
			}
		}()
		return ch, nil
	}

	s := &Stream{Ctx: ctx, Req: req, ch: make(chan translate.Chunk, 16)}
	b.streams = append(b.streams, s)
	return s.ch, nil
}

// Stream returns the i-th manually driven stream, or nil.
func (b *Backend) Stream(i int) *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.streams) {
		return nil
	}
	return b.streams[i]
}

// StreamCount returns the number of manually driven streams opened so far.
func (b *Backend) StreamCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.streams)
}

// CallCount returns the number of StreamTranslate calls. Thread-safe.
func (b *Backend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Calls)
}

// Requests returns a copy of the recorded requests. Thread-safe.
func (b *Backend) Requests() []translate.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]translate.Request, len(b.Calls))
	copy(out, b.Calls)
	return out
}

// Ensure Backend implements translate.Backend at compile time.
var _ translate.Backend = (*Backend)(nil)
