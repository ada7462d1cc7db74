package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// defaultWriteTimeout bounds a single backend write.
const defaultWriteTimeout = 5 * time.Second

// Writer persists values in a background goroutine so callers on latency
// sensitive paths never block on the backend. Writes to the same key are
// coalesced: only the latest value queued before a flush is written.
//
// Backend failures are logged and swallowed; [Writer.Degraded] reports
// whether the most recent write failed.
//
// All methods are safe for concurrent use.
type Writer struct {
	prefs   *Prefs
	timeout time.Duration

	mu      sync.Mutex
	pending map[string][]byte
	order   []string

	wake     chan struct{}
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	degraded atomic.Bool
}

// NewWriter creates a Writer over p. Call [Writer.Start] to begin flushing.
func NewWriter(p *Prefs) *Writer {
	return &Writer{
		prefs:   p,
		timeout: defaultWriteTimeout,
		pending: make(map[string][]byte),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start runs the flush loop until [Writer.Stop] is called or ctx is done.
func (w *Writer) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.loop(ctx)
}

// Put queues v for key. The value is encoded immediately so later mutation by
// the caller does not race with the write.
func (w *Writer) Put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", key, err)
	}
	w.mu.Lock()
	if _, ok := w.pending[key]; !ok {
		w.order = append(w.order, key)
	}
	w.pending[key] = raw
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// Stop flushes queued writes and ends the loop. Safe to call multiple times.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	if w.started.Load() {
		<-w.stopped
		return
	}
	w.flush(context.Background())
}

// Degraded reports whether the most recent backend write failed.
func (w *Writer) Degraded() bool { return w.degraded.Load() }

func (w *Writer) loop(ctx context.Context) {
	defer close(w.stopped)
	for {
		select {
		case <-ctx.Done():
			w.flush(context.WithoutCancel(ctx))
			return
		case <-w.done:
			w.flush(context.WithoutCancel(ctx))
			return
		case <-w.wake:
			w.flush(ctx)
		}
	}
}

// Flush writes everything queued so far on the caller's goroutine.
func (w *Writer) Flush(ctx context.Context) {
	w.flush(ctx)
}

func (w *Writer) flush(ctx context.Context) {
	w.mu.Lock()
	pending, order := w.pending, w.order
	w.pending = make(map[string][]byte)
	w.order = nil
	w.mu.Unlock()

	for _, key := range order {
		wctx, cancel := context.WithTimeout(ctx, w.timeout)
		err := w.prefs.store.Set(wctx, w.prefs.Key(key), pending[key])
		cancel()
		if err != nil {
			w.degraded.Store(true)
			slog.Warn("store: background write failed, dropping value",
				"key", key,
				"error", err,
			)
			continue
		}
		w.degraded.Store(false)
	}
}
