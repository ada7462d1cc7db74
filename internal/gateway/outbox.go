package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ErrSlowClient is returned once a client has fallen so far behind that its
// outbox filled up. The connection is closed when this happens.
var ErrSlowClient = errors.New("gateway: client too slow")

// ErrOutboxClosed is returned by [outbox.send] after the outbox shut down.
var ErrOutboxClosed = errors.New("gateway: outbox closed")

const (
	defaultOutboxSize   = 128
	defaultWriteTimeout = 5 * time.Second
)

// outbox serialises writes to one websocket connection. Any goroutine may
// call send; a single writer goroutine started by run drains the queue.
type outbox struct {
	ch      chan Message
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	err    error
	done   chan struct{}
}

func newOutbox(size int, timeout time.Duration) *outbox {
	if size <= 0 {
		size = defaultOutboxSize
	}
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &outbox{
		ch:      make(chan Message, size),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// send queues m without blocking. A full queue closes the outbox with
// [ErrSlowClient].
func (o *outbox) send(m Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.ch <- m:
		return nil
	default:
		o.closeLocked(ErrSlowClient)
		return ErrSlowClient
	}
}

// close stops the outbox. The first non-nil cause is kept.
func (o *outbox) close(cause error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeLocked(cause)
}

func (o *outbox) closeLocked(cause error) {
	if o.closed {
		return
	}
	o.closed = true
	o.err = cause
	close(o.done)
}

// cause returns the reason the outbox was closed, or nil.
func (o *outbox) cause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// run writes queued messages to conn until ctx is done or the outbox is
// closed. Messages still queued when the outbox closes are flushed first,
// unless the client was too slow.
func (o *outbox) run(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-o.ch:
			if err := o.write(ctx, conn, m); err != nil {
				return err
			}
		case <-o.done:
			if err := o.cause(); err != nil {
				return err
			}
			for {
				select {
				case m := <-o.ch:
					if err := o.write(ctx, conn, m); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		}
	}
}

func (o *outbox) write(ctx context.Context, conn *websocket.Conn, m Message) error {
	wctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if err := wsjson.Write(wctx, conn, m); err != nil {
		return fmt.Errorf("gateway: write %s: %w", m.Type, err)
	}
	return nil
}
