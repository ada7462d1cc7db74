package translation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AichiroFunakoshi/bridge/internal/observe"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/translate"
	translatemock "github.com/AichiroFunakoshi/bridge/pkg/provider/translate/mock"
	"github.com/AichiroFunakoshi/bridge/pkg/types"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// queue stands in for a session event loop: posted functions wait until the
// test runs them.
type queue chan func()

func newQueue() queue { return make(queue, 64) }

func (q queue) post(f func()) { q <- f }

// step runs the next posted function, failing after a second.
func (q queue) step(t *testing.T) {
	t.Helper()
	select {
	case f := <-q:
		f()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for posted callback")
	}
}

// idle asserts that nothing is posted within a short window.
func (q queue) idle(t *testing.T) {
	t.Helper()
	select {
	case <-q:
		t.Fatal("unexpected posted callback")
	case <-time.After(20 * time.Millisecond):
	}
}

type event struct {
	kind string
	gen  uint64
	text string
	err  error
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) TranslationPartial(gen uint64, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "partial", gen: gen, text: text})
}

func (r *recorder) TranslationFinal(gen uint64, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "final", gen: gen, text: text})
}

func (r *recorder) TranslationFailed(gen uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "failed", gen: gen, err: err})
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

var jaEn = types.LanguagePair{Source: types.Japanese, Target: types.English}

func newTestManager(t *testing.T) (*Manager, *translatemock.Backend, queue, *recorder) {
	t.Helper()
	backend := &translatemock.Backend{}
	q := newQueue()
	rec := &recorder{}
	m := NewManager(backend, q.post, WithListener(rec), WithMetrics(testMetrics(t)))
	return m, backend, q, rec
}

func waitStream(t *testing.T, b *translatemock.Backend, i int) *translatemock.Stream {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s := b.Stream(i); s != nil {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("stream %d was never opened", i)
	return nil
}

func TestManager_StreamsPartialsThenFinal(t *testing.T) {
	t.Parallel()

	m, backend, q, rec := newTestManager(t)

	gen, ok := m.Submit("こんにちは", jaEn)
	if !ok || gen != 1 {
		t.Fatalf("Submit = (%d, %v), want (1, true)", gen, ok)
	}
	if !m.Active() {
		t.Fatal("Active = false after submit")
	}

	s := waitStream(t, backend, 0)
	if s.Req.Text != "こんにちは" || s.Req.Pair != jaEn {
		t.Errorf("request = %+v", s.Req)
	}
	s.Send("Hel")
	s.Send("lo")
	s.Finish()
	q.step(t)
	q.step(t)
	q.step(t)

	want := []event{
		{kind: "partial", gen: 1, text: "Hel"},
		{kind: "partial", gen: 1, text: "Hello"},
		{kind: "final", gen: 1, text: "Hello"},
	}
	got := rec.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if m.LastResult() != "Hello" {
		t.Errorf("LastResult = %q", m.LastResult())
	}
	if m.Active() {
		t.Error("Active = true after end of stream")
	}
}

func TestManager_BlankSkipped(t *testing.T) {
	t.Parallel()

	m, backend, q, _ := newTestManager(t)
	for _, text := range []string{"", "   ", "\n\t"} {
		if _, ok := m.Submit(text, jaEn); ok {
			t.Errorf("Submit(%q) ok = true", text)
		}
	}
	q.idle(t)
	if backend.CallCount() != 0 {
		t.Errorf("backend calls = %d, want 0", backend.CallCount())
	}
	if m.Generation() != 0 {
		t.Errorf("Generation = %d, want 0", m.Generation())
	}
}

func TestManager_SupersedeDropsLateChunks(t *testing.T) {
	t.Parallel()

	m, backend, q, rec := newTestManager(t)

	m.Submit("first", jaEn)
	first := waitStream(t, backend, 0)
	first.Send("A")
	q.step(t)

	m.Submit("second", jaEn)
	second := waitStream(t, backend, 1)
	if !first.Canceled() {
		t.Error("first request context not canceled on supersede")
	}

	// Bytes already in flight from the first request arrive late.
	first.Send("late")
	first.Fail(context.Canceled)
	q.step(t)
	q.step(t)

	second.Send("B")
	second.Finish()
	q.step(t)
	q.step(t)

	for _, e := range rec.snapshot() {
		if e.gen == 1 && e.text != "A" {
			t.Errorf("superseded generation wrote %+v", e)
		}
		if e.kind == "failed" {
			t.Errorf("cancellation reported as failure: %+v", e)
		}
	}
	if m.LastResult() != "B" {
		t.Errorf("LastResult = %q, want B", m.LastResult())
	}
}

func TestManager_FailureReportedOncePreservesResult(t *testing.T) {
	t.Parallel()

	m, backend, q, rec := newTestManager(t)

	m.Submit("one", jaEn)
	s := waitStream(t, backend, 0)
	s.Send("One")
	s.Finish()
	q.step(t)
	q.step(t)

	m.Submit("two", jaEn)
	s = waitStream(t, backend, 1)
	httpErr := &translate.HTTPError{Status: 500, Message: "boom"}
	s.Fail(httpErr)
	q.step(t)
	q.idle(t)

	var failures int
	for _, e := range rec.snapshot() {
		if e.kind == "failed" {
			failures++
			var he *translate.HTTPError
			if !errors.As(e.err, &he) || he.Status != 500 {
				t.Errorf("failure err = %v", e.err)
			}
			if e.gen != 2 {
				t.Errorf("failure generation = %d, want 2", e.gen)
			}
		}
	}
	if failures != 1 {
		t.Errorf("failures = %d, want 1", failures)
	}
	if m.LastResult() != "One" {
		t.Errorf("LastResult = %q, want prior result preserved", m.LastResult())
	}
}

func TestManager_OpenError(t *testing.T) {
	t.Parallel()

	m, backend, q, rec := newTestManager(t)
	backend.OpenErr = translate.ErrParse

	m.Submit("text", jaEn)
	q.step(t)

	got := rec.snapshot()
	if len(got) != 1 || got[0].kind != "failed" || !errors.Is(got[0].err, translate.ErrParse) {
		t.Errorf("events = %+v", got)
	}
	if m.Active() {
		t.Error("Active = true after open error")
	}
}

func TestManager_CancelIsSilent(t *testing.T) {
	t.Parallel()

	m, backend, q, rec := newTestManager(t)
	m.Submit("text", jaEn)
	s := waitStream(t, backend, 0)
	m.Cancel()
	if m.Active() {
		t.Error("Active = true after Cancel")
	}
	if !s.Canceled() {
		t.Error("stream context not canceled")
	}

	s.Send("ignored")
	s.Finish()
	q.step(t)
	q.step(t)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("events after Cancel = %+v", got)
	}
}

func TestManager_EmptyResultNotStored(t *testing.T) {
	t.Parallel()

	m, backend, q, rec := newTestManager(t)
	m.Submit("text", jaEn)
	s := waitStream(t, backend, 0)
	s.Send("  ")
	s.Finish()
	q.step(t)
	q.step(t)

	for _, e := range rec.snapshot() {
		if e.kind == "final" {
			t.Errorf("blank result finalized: %+v", e)
		}
	}
	if m.LastResult() != "" {
		t.Errorf("LastResult = %q", m.LastResult())
	}

	m.lastResult = "kept"
	m.ClearResult()
	if m.LastResult() != "" {
		t.Error("ClearResult did not clear")
	}
}

func TestManager_Timeout(t *testing.T) {
	t.Parallel()

	backend := &translatemock.Backend{}
	q := newQueue()
	rec := &recorder{}
	m := NewManager(backend, q.post,
		WithListener(rec),
		WithMetrics(testMetrics(t)),
		WithTimeout(10*time.Millisecond),
	)

	m.Submit("slow", jaEn)
	s := waitStream(t, backend, 0)
	<-s.Ctx.Done()
	s.Fail(s.Ctx.Err())
	q.step(t)

	got := rec.snapshot()
	if len(got) != 1 || !errors.Is(got[0].err, context.DeadlineExceeded) {
		t.Errorf("events = %+v, want one deadline failure", got)
	}
}

func TestManager_ReplyMode(t *testing.T) {
	t.Parallel()

	backend := &translatemock.Backend{
		Reply: func(req translate.Request) []translate.Chunk {
			return []translate.Chunk{{Text: "Good "}, {Text: "morning"}}
		},
	}
	q := newQueue()
	rec := &recorder{}
	m := NewManager(backend, q.post, WithListener(rec), WithMetrics(testMetrics(t)))

	m.Submit("おはよう", jaEn)
	q.step(t)
	q.step(t)
	q.step(t)
	if m.LastResult() != "Good morning" {
		t.Errorf("LastResult = %q", m.LastResult())
	}
}
