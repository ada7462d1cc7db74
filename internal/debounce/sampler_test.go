package debounce

import (
	"slices"
	"testing"
	"time"

	schedmock "github.com/AichiroFunakoshi/bridge/internal/schedule/mock"
	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

func TestSampler_RecordBoundary(t *testing.T) {
	t.Parallel()

	clk := schedmock.New()
	s := NewSampler(WithClock(clk.Now))

	// First boundary has no predecessor.
	s.RecordBoundary(types.English)
	if s.Total() != 0 {
		t.Fatalf("Total after first boundary = %d, want 0", s.Total())
	}

	steps := []struct {
		gap  time.Duration
		lang types.Language
	}{
		{120 * time.Millisecond, types.English},
		{30 * time.Millisecond, types.English},   // too short
		{2500 * time.Millisecond, types.English}, // too long
		{400 * time.Millisecond, types.Japanese},
		{50 * time.Millisecond, types.Japanese},
		{2000 * time.Millisecond, types.English},
	}
	for _, st := range steps {
		clk.Advance(st.gap)
		s.RecordBoundary(st.lang)
	}

	if got, want := s.Samples(types.English), []int{120, 2000}; !slices.Equal(got, want) {
		t.Errorf("en samples = %v, want %v", got, want)
	}
	if got, want := s.Samples(types.Japanese), []int{400, 50}; !slices.Equal(got, want) {
		t.Errorf("ja samples = %v, want %v", got, want)
	}
	counts := s.Counts()
	if counts[types.English] != 2 || counts[types.Japanese] != 2 {
		t.Errorf("Counts = %v", counts)
	}
}

func TestSampler_Eviction(t *testing.T) {
	t.Parallel()

	clk := schedmock.New()
	var observed int
	s := NewSampler(
		WithClock(clk.Now),
		WithCapacity(3),
		WithObserver(func(Sample) { observed++ }),
	)
	s.RecordBoundary(types.English)
	for i := 1; i <= 5; i++ {
		clk.Advance(time.Duration(100*i) * time.Millisecond)
		s.RecordBoundary(types.English)
	}

	if got, want := s.Samples(types.English), []int{300, 400, 500}; !slices.Equal(got, want) {
		t.Errorf("samples = %v, want %v (oldest evicted)", got, want)
	}
	if observed != 5 {
		t.Errorf("observer calls = %d, want 5", observed)
	}
}

func TestSampler_Mark(t *testing.T) {
	t.Parallel()

	clk := schedmock.New()
	s := NewSampler(WithClock(clk.Now))
	s.Mark()
	clk.Advance(180 * time.Millisecond)
	s.RecordBoundary(types.English)
	if got := s.Samples(types.English); !slices.Equal(got, []int{180}) {
		t.Errorf("samples = %v, want [180] measured from Mark", got)
	}

	// A long pause between the mark and the first boundary is discarded.
	clk.Advance(time.Second)
	s.Mark()
	clk.Advance(3 * time.Second)
	s.RecordBoundary(types.English)
	if s.Total() != 1 {
		t.Errorf("Total = %d, want 1", s.Total())
	}
}

func TestSampler_SnapshotRestore(t *testing.T) {
	t.Parallel()

	s := NewSampler(WithCapacity(4))
	kept := s.Restore([]Sample{
		{Language: types.English, Millis: 10},  // below window
		{Language: "", Millis: 200},            // no language
		{Language: types.English, Millis: 100}, // evicted by capacity
		{Language: types.English, Millis: 200},
		{Language: types.Japanese, Millis: 300},
		{Language: types.Japanese, Millis: 400},
		{Language: types.English, Millis: 500},
	})
	if kept != 4 {
		t.Fatalf("Restore kept %d, want 4", kept)
	}

	snap := s.Snapshot()
	want := []Sample{
		{Language: types.English, Millis: 200},
		{Language: types.Japanese, Millis: 300},
		{Language: types.Japanese, Millis: 400},
		{Language: types.English, Millis: 500},
	}
	if !slices.Equal(snap, want) {
		t.Errorf("Snapshot = %v, want %v", snap, want)
	}

	// Snapshot is a copy.
	snap[0].Millis = 999
	if s.Samples(types.English)[0] != 200 {
		t.Error("mutating snapshot changed sampler state")
	}

	s.Reset()
	if s.Total() != 0 {
		t.Errorf("Total after Reset = %d", s.Total())
	}
}
