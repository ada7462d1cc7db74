package store

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestPrefs_LoadSave(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := NewMemory()
	p := NewPrefs(mem, "default")

	var rate float64
	ok, err := p.Load(ctx, KeySpeechRate, &rate)
	if ok || err != nil {
		t.Fatalf("Load missing = (%v, %v)", ok, err)
	}

	if err := p.Save(ctx, KeySpeechRate, 1.25); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := mem.Get(ctx, "default/speech.rate"); err != nil {
		t.Errorf("namespaced key missing: %v", err)
	}
	ok, err = p.Load(ctx, KeySpeechRate, &rate)
	if !ok || err != nil || rate != 1.25 {
		t.Errorf("Load = (%v, %v), rate %v", ok, err, rate)
	}

	_ = mem.Set(ctx, p.Key(KeySpeechEnabled), []byte("not json"))
	var enabled bool
	if _, err := p.Load(ctx, KeySpeechEnabled, &enabled); err == nil {
		t.Error("Load of corrupt value succeeded")
	}

	if err := p.Delete(ctx, KeySpeechRate); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if NewPrefs(mem, "").Key("x") != "x" {
		t.Error("empty namespace should use bare keys")
	}
}

// flakyStore fails every Set while failing is true.
type flakyStore struct {
	*Memory
	mu      sync.Mutex
	failing bool
	sets    int
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	f.sets++
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return errors.New("disk full")
	}
	return f.Memory.Set(ctx, key, value)
}

func TestWriter_CoalescesAndFlushesOnStop(t *testing.T) {
	t.Parallel()

	fs := &flakyStore{Memory: NewMemory()}
	w := NewWriter(NewPrefs(fs, ""))

	// Not started: values queue up and are coalesced per key.
	_ = w.Put(KeySpeechRate, 1.0)
	_ = w.Put(KeySpeechRate, 1.5)
	_ = w.Put(KeySpeechEnabled, true)
	w.Stop()

	if fs.sets != 2 {
		t.Errorf("backend writes = %d, want 2", fs.sets)
	}
	var rate float64
	if _, err := NewPrefs(fs, "").Load(context.Background(), KeySpeechRate, &rate); err != nil || rate != 1.5 {
		t.Errorf("rate = %v (%v), want latest value", rate, err)
	}
	w.Stop()
}

func TestWriter_Background(t *testing.T) {
	t.Parallel()

	mem := NewMemory()
	w := NewWriter(NewPrefs(mem, "p"))
	w.Start(context.Background())
	w.Start(context.Background())

	for i := range 10 {
		_ = w.Put(KeyDebounceSamples, []int{i})
	}
	w.Stop()

	var got []int
	if _, err := NewPrefs(mem, "p").Load(context.Background(), KeyDebounceSamples, &got); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0] != 9 {
		t.Errorf("stored = %v, want [9]", got)
	}
}

func TestWriter_Degraded(t *testing.T) {
	t.Parallel()

	fs := &flakyStore{Memory: NewMemory(), failing: true}
	w := NewWriter(NewPrefs(fs, ""))

	_ = w.Put(KeySpeechRate, 2.0)
	w.Flush(context.Background())
	if !w.Degraded() {
		t.Error("Degraded = false after failed write")
	}

	fs.mu.Lock()
	fs.failing = false
	fs.mu.Unlock()
	_ = w.Put(KeySpeechRate, 0.5)
	w.Stop()
	if w.Degraded() {
		t.Error("Degraded = true after successful write")
	}
	if fs.Len() != 1 {
		t.Errorf("stored keys = %d, want 1", fs.Len())
	}
}

func TestWriter_EncodeError(t *testing.T) {
	t.Parallel()

	w := NewWriter(NewPrefs(NewMemory(), ""))
	if err := w.Put("bad", make(chan int)); err == nil {
		t.Error("Put of unencodable value succeeded")
	}
	w.Stop()
}
