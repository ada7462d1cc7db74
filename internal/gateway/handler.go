package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AichiroFunakoshi/bridge/internal/observe"
	"github.com/AichiroFunakoshi/bridge/internal/session"
	"github.com/AichiroFunakoshi/bridge/internal/store"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/stt"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/translate"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/tts"
)

// ErrUnknownMessage is reported to the client for an unrecognised type.
var ErrUnknownMessage = errors.New("gateway: unknown message type")

const readLimit = 64 << 10

// Tracker is told about every live session. Track returns a function that
// is called once the connection has ended.
type Tracker interface {
	Track(clientID string, c *session.Coordinator) (untrack func())
}

// Handler upgrades HTTP requests to websocket connections and runs one
// translation session per connection.
type Handler struct {
	backend  translate.Backend
	cfg      func() session.Config
	store    store.Store
	metrics  *observe.Metrics
	origins  []string
	outSize  int
	tracker  Tracker
	sessOpts []session.Option
}

// Option is a functional option for [NewHandler].
type Option func(*Handler)

// WithStore persists each client's preferences in s, keyed by client ID.
func WithStore(s store.Store) Option {
	return func(h *Handler) { h.store = s }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithOriginPatterns lists the host patterns allowed to connect from another
// origin. See [websocket.AcceptOptions.OriginPatterns].
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.origins = patterns }
}

// WithOutboxSize bounds the number of queued server messages per client.
func WithOutboxSize(n int) Option {
	return func(h *Handler) { h.outSize = n }
}

// WithTracker registers every connection's coordinator with t.
func WithTracker(t Tracker) Option {
	return func(h *Handler) { h.tracker = t }
}

// WithSessionOptions appends options passed to every [session.New].
func WithSessionOptions(opts ...session.Option) Option {
	return func(h *Handler) { h.sessOpts = append(h.sessOpts, opts...) }
}

// NewHandler returns a Handler translating through backend. cfg is called
// for every new connection so configuration reloads apply to new sessions.
func NewHandler(backend translate.Backend, cfg func() session.Config, opts ...Option) *Handler {
	h := &Handler{
		backend: backend,
		cfg:     cfg,
		metrics: observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP implements [http.Handler].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		observe.Logger(r.Context()).Warn("gateway: accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	clientID := clientIDFrom(r)
	ctx := observe.WithClientID(r.Context(), clientID)

	h.metrics.WSConnections.Add(ctx, 1)
	defer h.metrics.WSConnections.Add(context.WithoutCancel(ctx), -1)

	err = h.serve(ctx, conn, clientID)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusNormalClosure, "")
	case errors.Is(err, ErrSlowClient):
		conn.Close(websocket.StatusPolicyViolation, "too slow")
	default:
		if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			observe.Logger(ctx).Debug("gateway: client disconnected")
			return
		}
		observe.Logger(ctx).Warn("gateway: connection ended", "err", err)
		conn.Close(websocket.StatusInternalError, "internal error")
	}
}

// clientIDFrom returns the client's persistent ID when it sent a valid one
// and a fresh ID otherwise.
func clientIDFrom(r *http.Request) string {
	if id, err := uuid.Parse(r.URL.Query().Get("client")); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, clientID string) error {
	out := newOutbox(h.outSize, 0)
	rec := newRemoteRecognizer(out)
	speaker := newRemoteSpeaker(out)

	opts := []session.Option{
		session.WithSink(remoteSink{out: out}),
		session.WithMetrics(h.metrics),
		session.WithBaseContext(ctx),
	}
	if h.store != nil {
		opts = append(opts, session.WithStore(h.store, clientID))
	}
	opts = append(opts, h.sessOpts...)
	coord := session.New(rec, speaker, h.backend, h.cfg(), opts...)
	if h.tracker != nil {
		defer h.tracker.Track(clientID, coord)()
	}

	if err := out.send(Message{Type: TypeHello, Client: clientID}); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := coord.Run(gctx)
		out.close(nil)
		return err
	})
	g.Go(func() error {
		return out.run(gctx, conn)
	})
	g.Go(func() error {
		defer out.close(nil)
		return h.read(gctx, conn, coord, rec, speaker, out)
	})
	return g.Wait()
}

// read dispatches client messages until the connection fails or ctx is done.
// Returning ends the connection.
func (h *Handler) read(ctx context.Context, conn *websocket.Conn, coord *session.Coordinator, rec *remoteRecognizer, speaker *remoteSpeaker, out *outbox) error {
	for {
		var m Message
		if err := wsjson.Read(ctx, conn, &m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := h.dispatch(ctx, m, coord, rec, speaker); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, session.ErrClosed) {
				return nil
			}
			observe.Logger(ctx).Debug("gateway: command rejected", "type", m.Type, "err", err)
			if err := out.send(Message{Type: TypeError, Kind: m.Type, Message: err.Error()}); err != nil {
				return err
			}
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, m Message, coord *session.Coordinator, rec *remoteRecognizer, speaker *remoteSpeaker) error {
	switch m.Type {
	case TypeStart:
		return coord.Start(m.Language)
	case TypeStop:
		return coord.Stop()
	case TypeReset:
		return coord.Reset()
	case TypeTogglePlayback:
		return coord.TogglePlayback()
	case TypeSetSpeechEnabled:
		if m.Enabled == nil {
			return fmt.Errorf("gateway: %s: missing enabled", m.Type)
		}
		return coord.SetSpeechEnabled(*m.Enabled)
	case TypeSetSpeechRate:
		return coord.SetSpeechRate(m.Rate)
	case TypeDebounceInvalid:
		return coord.InvalidateDebounce()
	case TypeDebounceLearn:
		return coord.LearnDebounce()
	case TypeDebounceReset:
		return coord.ResetDebounce()
	case TypeDebounceOverride:
		return coord.SetDebounceOverride(m.Language, m.Ms)

	case TypeRecognitionStarted:
		return rec.deliver(ctx, stt.Event{Kind: stt.EventStarted, Run: m.Run})
	case TypeRecognitionEnded:
		return rec.deliver(ctx, stt.Event{Kind: stt.EventEnded, Run: m.Run})
	case TypeRecognitionResult:
		return rec.deliver(ctx, stt.Event{Kind: stt.EventResult, Run: m.Run, Fragments: m.Fragments})
	case TypeRecognitionError:
		return rec.deliver(ctx, stt.Event{
			Kind:    stt.EventError,
			Run:     m.Run,
			Error:   stt.ParseErrorKind(m.Kind),
			Message: m.Message,
		})
	case TypeSpeechStarted:
		return speaker.deliver(ctx, tts.Event{Kind: tts.EventStarted, ID: m.ID})
	case TypeSpeechEnded:
		return speaker.deliver(ctx, tts.Event{Kind: tts.EventEnded, ID: m.ID})
	case TypeSpeechError:
		return speaker.deliver(ctx, tts.Event{Kind: tts.EventFailed, ID: m.ID, Message: m.Message})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, m.Type)
	}
}
