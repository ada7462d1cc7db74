package observe

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// Journal defaults.
const (
	DefaultJournalCapacity = 100
	DefaultReportTail      = 50
)

// Entry is one log record kept by a [Journal].
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Journal keeps the most recent log records in a fixed-size ring so they can
// be attached to a diagnostics report. It is safe for concurrent use.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewJournal creates a Journal holding up to capacity records. Non-positive
// capacities use [DefaultJournalCapacity].
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultJournalCapacity
	}
	return &Journal{entries: make([]Entry, capacity)}
}

func (j *Journal) add(e Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[j.next] = e
	j.next = (j.next + 1) % len(j.entries)
	if j.next == 0 {
		j.full = true
	}
}

// Len returns the number of records held.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.full {
		return len(j.entries)
	}
	return j.next
}

// Tail returns up to n of the most recent records, oldest first. n <= 0
// returns everything held.
func (j *Journal) Tail(n int) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	var all []Entry
	if j.full {
		all = append(all, j.entries[j.next:]...)
	}
	all = append(all, j.entries[:j.next]...)
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// Handler wraps next so that every record it accepts is also kept in the
// journal.
func (j *Journal) Handler(next slog.Handler) slog.Handler {
	return &journalHandler{j: j, next: next}
}

type journalHandler struct {
	j      *Journal
	next   slog.Handler
	attrs  []slog.Attr
	prefix string
}

var _ slog.Handler = (*journalHandler)(nil)

func (h *journalHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *journalHandler) Handle(ctx context.Context, r slog.Record) error {
	e := Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
	}
	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		e.Attrs = make(map[string]any, len(h.attrs)+r.NumAttrs())
		for _, a := range h.attrs {
			flatten(e.Attrs, "", a)
		}
		r.Attrs(func(a slog.Attr) bool {
			flatten(e.Attrs, h.prefix, a)
			return true
		})
	}
	h.j.add(e)
	return h.next.Handle(ctx, r)
}

func (h *journalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		nh.attrs = append(nh.attrs, a)
	}
	nh.next = h.next.WithAttrs(attrs)
	return &nh
}

func (h *journalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.prefix = h.prefix + name + "."
	nh.next = h.next.WithGroup(name)
	return &nh
}

func flatten(dst map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			flatten(dst, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	v := a.Value.Any()
	if err, ok := v.(error); ok {
		v = err.Error()
	}
	dst[prefix+a.Key] = v
}

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

// ReadBuildInfo returns the module path and version embedded in the binary.
func ReadBuildInfo() BuildInfo {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return BuildInfo{}
	}
	return BuildInfo{
		Path:      bi.Main.Path,
		Version:   bi.Main.Version,
		GoVersion: bi.GoVersion,
	}
}

// Report is the diagnostics document served by [Journal.ReportHandler].
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Build       BuildInfo `json:"build"`
	UserAgent   string    `json:"user_agent,omitempty"`
	Config      any       `json:"config,omitempty"`
	Entries     []Entry   `json:"entries"`
}

// Report builds a diagnostics report with the last tail records. summary,
// when non-nil, supplies a redacted configuration summary.
func (j *Journal) Report(tail int, summary func() any) Report {
	if tail <= 0 {
		tail = DefaultReportTail
	}
	rep := Report{
		GeneratedAt: time.Now().UTC(),
		Build:       ReadBuildInfo(),
		Entries:     j.Tail(tail),
	}
	if summary != nil {
		rep.Config = summary()
	}
	return rep
}

// ReportHandler serves [Journal.Report] as indented JSON.
func (j *Journal) ReportHandler(tail int, summary func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep := j.Report(tail, summary)
		rep.UserAgent = r.UserAgent()

		w.Header().Set("Content-Type", "application/json")
		if strings.EqualFold(r.URL.Query().Get("download"), "true") {
			w.Header().Set("Content-Disposition", `attachment; filename="bridge-report.json"`)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			Logger(r.Context()).Warn("observe: encode diagnostics report", "err", err)
		}
	}
}
