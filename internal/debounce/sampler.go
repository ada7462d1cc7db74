// Package debounce decides when the working transcript is stable enough to
// be translated.
//
// Three pieces cooperate:
//
//   - [Sampler] measures the pause between consecutive finalized fragments
//     and keeps the plausible ones in a bounded rolling buffer.
//   - [Estimator] turns those samples into a per-language settle delay, or
//     falls back to factory defaults until enough evidence exists.
//   - [Debouncer] is a trailing-edge debounce over the working text that arms
//     a timer for the estimator's current delay.
//
// None of the types are safe for concurrent use. They are owned by a single
// session event loop, and the Debouncer's timers must be delivered onto that
// loop (see schedule.Posting).
package debounce

import (
	"time"

	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

// Pause-window and buffer defaults.
const (
	DefaultMinPause = 50 * time.Millisecond
	DefaultMaxPause = 2000 * time.Millisecond
	DefaultCapacity = 50
)

// Sample is one measured pause. Samples are persisted as JSON.
type Sample struct {
	Language types.Language `json:"lang"`
	Millis   int            `json:"ms"`
}

// Sampler records the time between finalization events.
type Sampler struct {
	now      func() time.Time
	capacity int
	minPause time.Duration
	maxPause time.Duration
	observe  func(Sample)

	// samples holds both languages oldest first; capacity bounds the total.
	samples []Sample
	last    time.Time
}

// SamplerOption is a functional option for [NewSampler].
type SamplerOption func(*Sampler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SamplerOption {
	return func(s *Sampler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCapacity sets the combined buffer size. Non-positive values are ignored.
func WithCapacity(n int) SamplerOption {
	return func(s *Sampler) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithWindow sets the plausibility window for accepted pauses. Invalid
// windows are ignored.
func WithWindow(minPause, maxPause time.Duration) SamplerOption {
	return func(s *Sampler) {
		if minPause >= 0 && maxPause > minPause {
			s.minPause = minPause
			s.maxPause = maxPause
		}
	}
}

// WithObserver registers fn to be called for every accepted sample.
func WithObserver(fn func(Sample)) SamplerOption {
	return func(s *Sampler) {
		s.observe = fn
	}
}

// NewSampler creates an empty Sampler.
func NewSampler(opts ...SamplerOption) *Sampler {
	s := &Sampler{
		now:      time.Now,
		capacity: DefaultCapacity,
		minPause: DefaultMinPause,
		maxPause: DefaultMaxPause,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RecordBoundary notes that a fragment in lang has just been finalized.
//
// The elapsed time since the previous boundary of either language becomes a
// sample if it falls inside the plausibility window. The first boundary and
// out-of-window gaps (session start, long silences) are discarded. The
// previous-boundary timestamp is updated in every case.
func (s *Sampler) RecordBoundary(lang types.Language) {
	now := s.now()
	last := s.last
	s.last = now
	if last.IsZero() {
		return
	}

	elapsed := now.Sub(last)
	if elapsed < s.minPause || elapsed > s.maxPause {
		return
	}
	s.push(Sample{Language: lang, Millis: int(elapsed.Milliseconds())})
}

func (s *Sampler) push(sm Sample) {
	s.samples = append(s.samples, sm)
	if over := len(s.samples) - s.capacity; over > 0 {
		// Copy into a fresh slice so the evicted prefix can be collected.
		kept := make([]Sample, s.capacity)
		copy(kept, s.samples[over:])
		s.samples = kept
	}
	if s.observe != nil {
		s.observe(sm)
	}
}

// Samples returns the pause lengths in ms recorded for lang, oldest first.
func (s *Sampler) Samples(lang types.Language) []int {
	var out []int
	for _, sm := range s.samples {
		if sm.Language == lang {
			out = append(out, sm.Millis)
		}
	}
	return out
}

// Count returns the number of samples held for lang.
func (s *Sampler) Count(lang types.Language) int {
	n := 0
	for _, sm := range s.samples {
		if sm.Language == lang {
			n++
		}
	}
	return n
}

// Counts returns the number of samples per language.
func (s *Sampler) Counts() map[types.Language]int {
	out := make(map[types.Language]int)
	for _, sm := range s.samples {
		out[sm.Language]++
	}
	return out
}

// Total returns the number of samples held across languages.
func (s *Sampler) Total() int { return len(s.samples) }

// Snapshot returns a copy of the buffer, oldest first, for persistence.
func (s *Sampler) Snapshot() []Sample {
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Restore replaces the buffer with persisted samples. Entries without a
// language or outside the plausibility window are dropped, and only the
// newest samples up to capacity are kept. It returns the number kept.
func (s *Sampler) Restore(samples []Sample) int {
	valid := make([]Sample, 0, len(samples))
	minMs, maxMs := int(s.minPause.Milliseconds()), int(s.maxPause.Milliseconds())
	for _, sm := range samples {
		if sm.Language == "" || sm.Millis < minMs || sm.Millis > maxMs {
			continue
		}
		valid = append(valid, sm)
	}
	if over := len(valid) - s.capacity; over > 0 {
		valid = valid[over:]
	}
	s.samples = append([]Sample(nil), valid...)
	return len(s.samples)
}

// Reset drops all samples and forgets the previous boundary.
func (s *Sampler) Reset() {
	s.samples = nil
	s.last = time.Time{}
}

// Mark sets the reference point for the next boundary to now without
// recording a sample. Sessions call it when capture starts, so the first
// finalization is measured from the start of recording.
func (s *Sampler) Mark() {
	s.last = s.now()
}
