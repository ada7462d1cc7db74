package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/AichiroFunakoshi/bridge/internal/app"
	"github.com/AichiroFunakoshi/bridge/internal/config"
	"github.com/AichiroFunakoshi/bridge/internal/observe"
	"github.com/AichiroFunakoshi/bridge/internal/store"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/translate"
	translatemock "github.com/AichiroFunakoshi/bridge/pkg/provider/translate/mock"
	"github.com/AichiroFunakoshi/bridge/pkg/types"
)

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

// mockRegistry registers "primary" and "secondary" factories backed by
// translate mocks.
func mockRegistry() *config.Registry {
	reg := config.NewRegistry()
	for _, name := range []string{"primary", "secondary"} {
		reg.RegisterTranslator(name, func(config.ProviderEntry) (translate.Backend, error) {
			return &translatemock.Backend{}, nil
		})
	}
	return reg
}

func newTestApp(t *testing.T, opts ...app.Option) (*app.App, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Translation.Provider = config.ProviderEntry{Name: "primary", Model: "m1"}
	all := []app.Option{
		app.WithStore(store.NewMemory()),
		app.WithRegistry(mockRegistry()),
		app.WithMetrics(testMetrics(t)),
		app.WithMetricsHandler(http.NotFoundHandler()),
	}
	a, err := app.New(context.Background(), cfg, append(all, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a, srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	return resp.StatusCode, string(body)
}

func TestApp_Routes(t *testing.T) {
	t.Parallel()
	_, srv := newTestApp(t, app.WithJournal(observe.NewJournal(10)))

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/healthz", http.StatusOK, "ok"},
		{"/readyz", http.StatusOK, "translator"},
		{"/debug/sessions", http.StatusOK, "[]"},
		{"/debug/report", http.StatusOK, "primary/m1"},
		{"/metrics", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			status, body := get(t, srv.URL+tt.path)
			if status != tt.status {
				t.Fatalf("status = %d, want %d (body %q)", status, tt.status, body)
			}
			if !strings.Contains(body, tt.contains) {
				t.Errorf("body %q does not contain %q", body, tt.contains)
			}
		})
	}
}

func TestApp_TracksWebsocketSessions(t *testing.T) {
	t.Parallel()
	a, srv := newTestApp(t, app.WithTranslator(&translatemock.Backend{}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	waitFor(t, "session tracked", func() bool { return len(a.Sessions().Info()) == 1 })

	_, body := get(t, srv.URL+"/debug/sessions")
	var infos []app.SessionInfo
	if err := json.Unmarshal([]byte(body), &infos); err != nil {
		t.Fatalf("decode sessions: %v (%s)", err, body)
	}
	if len(infos) != 1 || infos[0].Client == "" || infos[0].Status.Active {
		t.Errorf("sessions = %+v", infos)
	}

	conn.Close(websocket.StatusNormalClosure, "")
	waitFor(t, "session untracked", func() bool { return a.Sessions().Len() == 0 })
}

func TestNew_UnknownProvider(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Translation.Provider = config.ProviderEntry{Name: "nope"}
	_, err := app.New(context.Background(), cfg,
		app.WithStore(store.NewMemory()),
		app.WithRegistry(config.NewRegistry()),
		app.WithMetrics(testMetrics(t)),
	)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestBuildTranslator_Labels(t *testing.T) {
	t.Parallel()
	cfg := config.TranslationConfig{
		Provider: config.ProviderEntry{Name: "primary", Model: "m1"},
		Fallbacks: []config.ProviderEntry{
			{Name: "primary", Model: "m1"},
			{Name: "secondary"},
		},
	}
	tf, err := app.BuildTranslator(cfg, mockRegistry(), testMetrics(t))
	if err != nil {
		t.Fatalf("BuildTranslator: %v", err)
	}
	var names []string
	for _, cb := range tf.Breakers() {
		names = append(names, cb.Name())
	}
	want := []string{"primary/m1", "primary/m1#1", "secondary"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("breakers = %v, want %v", names, want)
	}
}

func TestSessionConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	sc, err := app.SessionConfig(cfg)
	if err != nil {
		t.Fatalf("SessionConfig: %v", err)
	}
	if sc.A.Code != types.Japanese || sc.B.Code != types.English {
		t.Errorf("languages = %s/%s", sc.A.Code, sc.B.Code)
	}
	if sc.A.Locale != "ja-JP" || sc.B.Locale != "en-US" {
		t.Errorf("locales = %s/%s", sc.A.Locale, sc.B.Locale)
	}
	if got := sc.A.Formatter.Format("そうです"); got != "そうです。" {
		t.Errorf("ja formatter = %q, want そうです。", got)
	}
	if got := sc.B.Formatter.Format("hello"); got != "hello" {
		t.Errorf("en formatter = %q, want hello", got)
	}
	if sc.Debounce.Defaults[types.Japanese] != 346*time.Millisecond {
		t.Errorf("ja default = %v, want 346ms", sc.Debounce.Defaults[types.Japanese])
	}
	if sc.Debounce.MaxDelay != 800*time.Millisecond || sc.Debounce.MinDelay != 100*time.Millisecond {
		t.Errorf("delay bounds = [%v, %v]", sc.Debounce.MinDelay, sc.Debounce.MaxDelay)
	}
	if !sc.SpeechEnabled || sc.SpeechRate != 1.0 {
		t.Errorf("speech = %v @ %v", sc.SpeechEnabled, sc.SpeechRate)
	}

	cfg.Languages.A.Formatter = "klingon"
	if _, err := app.SessionConfig(cfg); err == nil {
		t.Error("unknown formatter accepted")
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()
	var level slog.LevelVar
	a, _ := newTestApp(t, app.WithLogLevel(&level))

	old := config.Default()
	next := config.Default()
	next.Translation.Provider = config.ProviderEntry{Name: "primary", Model: "m1"}
	next.Server.LogLevel = config.LogDebug
	next.Speech.Rate = 1.5

	a.ApplyConfig(old, next, config.Diff(old, next))

	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
	if got := a.SessionDefaults().SpeechRate; got != 1.5 {
		t.Errorf("session rate = %v, want 1.5", got)
	}

	bad := config.Default()
	bad.Languages.A.Formatter = "klingon"
	bad.Speech.Rate = 0.5
	a.ApplyConfig(next, bad, config.Diff(next, bad))
	if got := a.SessionDefaults().SpeechRate; got != 1.5 {
		t.Errorf("rejected reload changed rate to %v", got)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
