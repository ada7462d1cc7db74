// Package translation turns debounced transcript text into streamed
// translations with supersede semantics.
//
// A [Manager] keeps at most one request in flight. Submitting new text
// cancels the previous request, and a generation counter guarantees that
// nothing from a superseded request reaches the [Listener], even chunks that
// were already in flight when the cancellation happened.
//
// Manager is not safe for concurrent use. All methods and all Listener
// callbacks run on the goroutine that owns the manager; stream goroutines
// hand their results back through the post function given to [NewManager].
package translation

import (
	"context"
	"strings"
	"time"

	"github.com/AichiroFunakoshi/bridge/internal/observe"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/translate"
	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

// Listener receives the visible results of translation requests. Callbacks
// are only made for the current generation.
type Listener interface {
	// TranslationPartial delivers the accumulated translation so far.
	TranslationPartial(gen uint64, text string)

	// TranslationFinal delivers the complete, non-blank translation.
	TranslationFinal(gen uint64, text string)

	// TranslationFailed reports a recoverable backend failure.
	TranslationFailed(gen uint64, err error)
}

// Request is the in-flight translation request.
type Request struct {
	Generation uint64
	Text       string
	Pair       types.LanguagePair
}

type inflight struct {
	Request
	cancel    context.CancelFunc
	started   time.Time
	firstSeen bool
	buf       strings.Builder
}

// Manager issues translation requests against a [translate.Backend].
type Manager struct {
	backend  translate.Backend
	post     func(func())
	listener Listener
	metrics  *observe.Metrics
	base     context.Context
	timeout  time.Duration
	now      func() time.Time

	gen        uint64
	active     *inflight
	lastResult string
}

// Option is a functional option for [NewManager].
type Option func(*Manager)

// WithListener sets the receiver of partial, final and failed results.
func WithListener(l Listener) Option {
	return func(m *Manager) {
		m.listener = l
	}
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) {
		if met != nil {
			m.metrics = met
		}
	}
}

// WithBaseContext sets the parent context of every request. Cancelling it
// aborts the in-flight request. Values on it (session ID, trace) are used
// for logging.
func WithBaseContext(ctx context.Context) Option {
	return func(m *Manager) {
		if ctx != nil {
			m.base = ctx
		}
	}
}

// WithTimeout bounds each request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// NewManager creates a Manager that streams from backend and runs its
// result handling through post, which must execute the function on the
// owning goroutine.
func NewManager(backend translate.Backend, post func(func()), opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		post:    post,
		base:    context.Background(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// Submit starts translating text, superseding any in-flight request. Blank
// text is skipped and reported with ok == false.
func (m *Manager) Submit(text string, pair types.LanguagePair) (gen uint64, ok bool) {
	if strings.TrimSpace(text) == "" {
		return 0, false
	}
	m.supersede()

	m.gen++
	gen = m.gen

	ctx, cancel := context.WithCancel(m.base)
	if m.timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, m.timeout)
		parent := cancel
		cancel = func() { tcancel(); parent() }
	}
	req := &inflight{
		Request: Request{Generation: gen, Text: text, Pair: pair},
		cancel:  cancel,
		started: m.now(),
	}
	m.active = req

	observe.Logger(m.base).Debug("translation: submit",
		"generation", gen, "pair", pair.String(), "chars", len(text))
	go m.stream(ctx, gen, translate.Request{Text: text, Pair: pair})
	return gen, true
}

// stream runs on its own goroutine and forwards everything to the owner.
func (m *Manager) stream(ctx context.Context, gen uint64, req translate.Request) {
	ch, err := m.backend.StreamTranslate(ctx, req)
	if err != nil {
		m.post(func() { m.finish(gen, err) })
		return
	}
	for c := range ch {
		if c.Err != nil {
			err := c.Err
			m.post(func() { m.finish(gen, err) })
			// Drain so a misbehaving backend cannot block on send.
			for range ch {
			}
			return
		}
		if c.Text == "" {
			continue
		}
		text := c.Text
		m.post(func() { m.chunk(gen, text) })
	}
	m.post(func() { m.finish(gen, nil) })
}

func (m *Manager) current(gen uint64) *inflight {
	if m.active == nil || m.active.Generation != gen || gen != m.gen {
		return nil
	}
	return m.active
}

func (m *Manager) chunk(gen uint64, text string) {
	req := m.current(gen)
	if req == nil {
		return
	}
	if !req.firstSeen {
		req.firstSeen = true
		m.metrics.TranslationFirstToken.Record(m.base, m.now().Sub(req.started).Seconds())
	}
	req.buf.WriteString(text)
	if m.listener != nil {
		m.listener.TranslationPartial(gen, req.buf.String())
	}
}

func (m *Manager) finish(gen uint64, err error) {
	req := m.current(gen)
	if req == nil {
		return
	}
	m.active = nil
	req.cancel()
	log := observe.Logger(m.base)

	if err != nil {
		if translate.IsCanceled(err) {
			log.Debug("translation: stream canceled", "generation", gen)
			return
		}
		m.metrics.RecordTranslation(m.base, observe.StatusError)
		log.Warn("translation: request failed", "generation", gen, "err", err)
		if m.listener != nil {
			m.listener.TranslationFailed(gen, err)
		}
		return
	}

	m.metrics.TranslationDuration.Record(m.base, m.now().Sub(req.started).Seconds())
	m.metrics.RecordTranslation(m.base, observe.StatusOK)

	text := strings.TrimSpace(req.buf.String())
	if text == "" {
		log.Debug("translation: empty result", "generation", gen)
		return
	}
	m.lastResult = text
	if m.listener != nil {
		m.listener.TranslationFinal(gen, text)
	}
}

// supersede cancels the in-flight request, if any.
func (m *Manager) supersede() {
	if m.active == nil {
		return
	}
	observe.Logger(m.base).Debug("translation: superseded", "generation", m.active.Generation)
	m.metrics.RecordTranslation(m.base, observe.StatusSuperseded)
	m.active.cancel()
	m.active = nil
}

// Cancel aborts the in-flight request without reporting anything.
func (m *Manager) Cancel() { m.supersede() }

// Active reports whether a request is in flight.
func (m *Manager) Active() bool { return m.active != nil }

// Current returns the in-flight request.
func (m *Manager) Current() (Request, bool) {
	if m.active == nil {
		return Request{}, false
	}
	return m.active.Request, true
}

// Generation returns the generation of the most recent submit.
func (m *Manager) Generation() uint64 { return m.gen }

// LastResult returns the most recent complete translation.
func (m *Manager) LastResult() string { return m.lastResult }

// ClearResult forgets the last complete translation.
func (m *Manager) ClearResult() { m.lastResult = "" }
