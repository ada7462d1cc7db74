package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func okCheck(context.Context) error { return nil }

func serve(t *testing.T, h *Handler, path string) (int, result) {
	t.Helper()
	r := chi.NewRouter()
	h.Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz_AlwaysOK(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "store", Check: func(context.Context) error { return errors.New("down") }})
	code, body := serve(t, h, "/healthz")
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz = %d %q, want 200 ok", code, body.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "store", Check: okCheck},
				{Name: "translator", Check: okCheck},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"store": "ok", "translator": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "store", Check: func(context.Context) error { return errors.New("connection refused") }},
				{Name: "translator", Check: okCheck},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"store": "fail: connection refused", "translator": "ok"},
		},
		{
			name: "checker sees a deadline",
			checkers: []Checker{
				{Name: "deadline", Check: func(ctx context.Context) error {
					if _, ok := ctx.Deadline(); !ok {
						return errors.New("no deadline")
					}
					return nil
				}},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"deadline": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body := serve(t, New(tt.checkers...), "/readyz")
			if code != tt.wantCode || body.Status != tt.wantStatus {
				t.Errorf("readyz = %d %q, want %d %q", code, body.Status, tt.wantCode, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	if err := PingChecker("store", fakePinger{}).Check(ctx); err != nil {
		t.Errorf("PingChecker healthy: %v", err)
	}
	boom := errors.New("boom")
	if err := PingChecker("store", fakePinger{err: boom}).Check(ctx); !errors.Is(err, boom) {
		t.Errorf("PingChecker failing: %v", err)
	}

	degraded := true
	c := DegradedChecker("writer", func() bool { return degraded })
	if err := c.Check(ctx); !errors.Is(err, ErrDegraded) {
		t.Errorf("DegradedChecker degraded: %v", err)
	}
	degraded = false
	if err := c.Check(ctx); err != nil {
		t.Errorf("DegradedChecker healthy: %v", err)
	}

	down := func(name string) func() (string, bool) { return func() (string, bool) { return name, false } }
	up := func(name string) func() (string, bool) { return func() (string, bool) { return name, true } }
	if err := AnyChecker("translator", down("a"), up("b")).Check(ctx); err != nil {
		t.Errorf("AnyChecker with one up: %v", err)
	}
	if err := AnyChecker("translator", down("a"), down("b")).Check(ctx); err == nil {
		t.Error("AnyChecker with all down passed")
	}
}
