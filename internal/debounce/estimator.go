package debounce

import (
	"math"
	"slices"
	"time"

	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

// Params tunes an [Estimator].
type Params struct {
	// Defaults is the factory delay per language, used until enough samples
	// exist. Languages missing from the map use Fallback.
	Defaults map[types.Language]time.Duration

	// Fallback is the delay for languages without a factory default.
	Fallback time.Duration

	// MinPerLanguage is the number of samples a language needs before its
	// learned value is used.
	MinPerLanguage int

	// MinTotal is the combined sample count required across languages.
	MinTotal int

	// Percentile selects the order statistic in [0, 1).
	Percentile float64

	// BufferFactor scales the chosen percentile.
	BufferFactor float64

	// MinDelay and MaxDelay bound every recommendation and override.
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultParams returns the factory tuning: ja 346 ms, en 154 ms, p75 × 1.1
// clamped to [100, 800] ms once a language has 15 samples and 50 exist in
// total.
func DefaultParams() Params {
	return Params{
		Defaults: map[types.Language]time.Duration{
			types.Japanese: 346 * time.Millisecond,
			types.English:  154 * time.Millisecond,
		},
		Fallback:       300 * time.Millisecond,
		MinPerLanguage: 15,
		MinTotal:       50,
		Percentile:     0.75,
		BufferFactor:   1.1,
		MinDelay:       100 * time.Millisecond,
		MaxDelay:       800 * time.Millisecond,
	}
}

// withDefaults fills zero fields from DefaultParams.
func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Defaults == nil {
		p.Defaults = d.Defaults
	}
	if p.Fallback <= 0 {
		p.Fallback = d.Fallback
	}
	if p.MinPerLanguage <= 0 {
		p.MinPerLanguage = d.MinPerLanguage
	}
	if p.MinTotal <= 0 {
		p.MinTotal = d.MinTotal
	}
	if p.Percentile <= 0 || p.Percentile >= 1 {
		p.Percentile = d.Percentile
	}
	if p.BufferFactor <= 0 {
		p.BufferFactor = d.BufferFactor
	}
	if p.MinDelay <= 0 {
		p.MinDelay = d.MinDelay
	}
	if p.MaxDelay <= p.MinDelay {
		p.MaxDelay = max(d.MaxDelay, p.MinDelay)
	}
	return p
}

// Source reports where a recommendation came from.
type Source string

const (
	SourceDefault  Source = "default"
	SourceLearned  Source = "learned"
	SourceOverride Source = "override"
)

// LanguageStats describes the recommendation for one language.
type LanguageStats struct {
	Language types.Language `json:"language"`
	Samples  int            `json:"samples"`
	DelayMs  int            `json:"delay_ms"`
	Source   Source         `json:"source"`
}

// Stats is a snapshot of the estimator for display.
type Stats struct {
	Total       int             `json:"total"`
	Invalidated bool            `json:"invalidated"`
	Languages   []LanguageStats `json:"languages"`
}

// Estimator turns sampled pauses into per-language debounce delays.
type Estimator struct {
	sampler     *Sampler
	params      Params
	invalidated bool
	overrides   map[types.Language]time.Duration
}

// NewEstimator creates an Estimator over s. Zero fields of p are replaced by
// [DefaultParams].
func NewEstimator(s *Sampler, p Params) *Estimator {
	return &Estimator{
		sampler:   s,
		params:    p.withDefaults(),
		overrides: make(map[types.Language]time.Duration),
	}
}

// Recommend returns the current delay for lang.
func (e *Estimator) Recommend(lang types.Language) time.Duration {
	d, _ := e.recommend(lang)
	return d
}

// Delay implements [DelaySource].
func (e *Estimator) Delay(lang types.Language) time.Duration { return e.Recommend(lang) }

func (e *Estimator) recommend(lang types.Language) (time.Duration, Source) {
	if d, ok := e.overrides[lang]; ok {
		return d, SourceOverride
	}
	if !e.learnedFor(lang) {
		return e.factory(lang), SourceDefault
	}

	samples := e.sampler.Samples(lang)
	slices.Sort(samples)
	idx := int(math.Floor(float64(len(samples)) * e.params.Percentile))
	idx = min(idx, len(samples)-1)
	ms := math.Round(float64(samples[idx]) * e.params.BufferFactor)
	return e.clamp(time.Duration(ms) * time.Millisecond), SourceLearned
}

func (e *Estimator) learnedFor(lang types.Language) bool {
	if e.invalidated {
		return false
	}
	return e.sampler.Total() >= e.params.MinTotal &&
		e.sampler.Count(lang) >= e.params.MinPerLanguage
}

func (e *Estimator) factory(lang types.Language) time.Duration {
	if d, ok := e.params.Defaults[lang]; ok {
		return d
	}
	return e.params.Fallback
}

func (e *Estimator) clamp(d time.Duration) time.Duration {
	return min(max(d, e.params.MinDelay), e.params.MaxDelay)
}

// Learned reports whether lang currently uses a learned value.
func (e *Estimator) Learned(lang types.Language) bool {
	_, src := e.recommend(lang)
	return src == SourceLearned
}

// Invalidated reports whether learned values are suspended.
func (e *Estimator) Invalidated() bool { return e.invalidated }

// Invalidate makes every language use its factory default without discarding
// samples. It lasts until [Estimator.Learn] or [Estimator.Reset].
func (e *Estimator) Invalidate() { e.invalidated = true }

// Learn re-enables learned values.
func (e *Estimator) Learn() { e.invalidated = false }

// Reset clears all samples and the invalidation flag. Overrides are kept.
func (e *Estimator) Reset() {
	e.sampler.Reset()
	e.invalidated = false
}

// SetOverride pins the delay for lang, clamped into the allowed range. It
// returns the value actually stored.
func (e *Estimator) SetOverride(lang types.Language, d time.Duration) time.Duration {
	d = e.clamp(d)
	e.overrides[lang] = d
	return d
}

// ClearOverride removes the pinned delay for lang.
func (e *Estimator) ClearOverride(lang types.Language) {
	delete(e.overrides, lang)
}

// Overrides returns a copy of the pinned delays.
func (e *Estimator) Overrides() map[types.Language]time.Duration {
	out := make(map[types.Language]time.Duration, len(e.overrides))
	for k, v := range e.overrides {
		out[k] = v
	}
	return out
}

// Stats returns a snapshot for langs in the given order.
func (e *Estimator) Stats(langs ...types.Language) Stats {
	st := Stats{
		Total:       e.sampler.Total(),
		Invalidated: e.invalidated,
		Languages:   make([]LanguageStats, 0, len(langs)),
	}
	for _, l := range langs {
		d, src := e.recommend(l)
		st.Languages = append(st.Languages, LanguageStats{
			Language: l,
			Samples:  e.sampler.Count(l),
			DelayMs:  int(d.Milliseconds()),
			Source:   src,
		})
	}
	return st
}
