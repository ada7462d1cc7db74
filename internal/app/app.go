// Package app wires all Bridge subsystems into a running server.
//
// The App struct owns the full lifecycle: New opens the preference store and
// builds the translation backends, Run serves HTTP until its context ends,
// and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithTranslator, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/AichiroFunakoshi/bridge/internal/config"
	"github.com/AichiroFunakoshi/bridge/internal/gateway"
	"github.com/AichiroFunakoshi/bridge/internal/health"
	"github.com/AichiroFunakoshi/bridge/internal/observe"
	"github.com/AichiroFunakoshi/bridge/internal/resilience"
	"github.com/AichiroFunakoshi/bridge/internal/session"
	"github.com/AichiroFunakoshi/bridge/internal/store"
	"github.com/AichiroFunakoshi/bridge/pkg/provider/translate"
)

// shutdownGrace bounds how long in-flight HTTP requests may take to finish
// once Run's context is done.
const shutdownGrace = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg     atomic.Pointer[config.Config]
	sessCfg atomic.Pointer[session.Config]

	registry   *config.Registry
	store      store.Store
	translator translate.Backend
	fallback   *resilience.TranslatorFallback
	metrics    *observe.Metrics
	journal    *observe.Journal
	level      *slog.LevelVar
	metricsH   http.Handler
	sessOpts   []session.Option

	sessions *Sessions
	handler  http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a preference store instead of opening one from config.
// The caller keeps ownership of s.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithTranslator injects a translation backend instead of building the
// configured providers.
func WithTranslator(b translate.Backend) Option {
	return func(a *App) { a.translator = b }
}

// WithRegistry replaces the provider registry. Defaults to one populated by
// [RegisterBuiltinTranslators].
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithJournal enables the /debug/report endpoint backed by j.
func WithJournal(j *observe.Journal) Option {
	return func(a *App) { a.journal = j }
}

// WithLogLevel lets configuration reloads change the level of the root
// logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetricsHandler replaces the /metrics handler. Defaults to
// [promhttp.Handler].
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsH = h }
}

// WithSessionOptions appends options passed to every coordinator.
func WithSessionOptions(opts ...session.Option) Option {
	return func(a *App) { a.sessOpts = append(a.sessOpts, opts...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. It performs all initialisation synchronously:
// store connection, provider construction and router assembly.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{sessions: NewSessions()}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.registry == nil {
		a.registry = config.NewRegistry()
		RegisterBuiltinTranslators(a.registry)
	}
	if a.metricsH == nil {
		a.metricsH = promhttp.Handler()
	}

	if err := a.setConfig(cfg); err != nil {
		return nil, err
	}

	// ── 1. Preference store ─────────────────────────────────────────────
	if err := a.initStore(ctx, cfg.Store); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Translation backends ─────────────────────────────────────────
	if a.translator == nil {
		tf, err := BuildTranslator(cfg.Translation, a.registry, a.metrics)
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("app: init translator: %w", err)
		}
		a.fallback = tf
		a.translator = tf
	}

	// ── 3. Router ───────────────────────────────────────────────────────
	a.handler = a.router(cfg.Server)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initStore(ctx context.Context, sc config.StoreConfig) error {
	if a.store != nil {
		return nil
	}
	s, err := store.Open(ctx, string(sc.Driver), sc.DSN)
	if err != nil {
		return err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)
	slog.Info("preference store ready", "driver", sc.Driver)
	return nil
}

// setConfig validates the parts of cfg the sessions need and publishes it.
func (a *App) setConfig(cfg *config.Config) error {
	sc, err := SessionConfig(cfg)
	if err != nil {
		return err
	}
	a.cfg.Store(cfg)
	a.sessCfg.Store(&sc)
	return nil
}

// SessionDefaults returns the coordinator configuration used for new
// connections.
func (a *App) SessionDefaults() session.Config {
	return *a.sessCfg.Load()
}

func (a *App) router(sc config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(observe.Middleware(a.metrics))

	a.healthHandler().Register(r)
	r.Handle("/metrics", a.metricsH)
	if a.journal != nil {
		r.Get("/debug/report", a.journal.ReportHandler(a.cfg.Load().Diagnostics.ReportTail, a.summary))
	}
	r.Get("/debug/sessions", a.sessionsHandler)

	gw := gateway.NewHandler(a.translator, a.SessionDefaults,
		gateway.WithStore(a.store),
		gateway.WithMetrics(a.metrics),
		gateway.WithOriginPatterns(sc.AllowedOrigins...),
		gateway.WithTracker(a.sessions),
		gateway.WithSessionOptions(a.sessOpts...),
	)
	r.Handle("/ws", gw)
	return r
}

func (a *App) healthHandler() *health.Handler {
	var checks []health.Checker
	if p, ok := a.store.(health.Pinger); ok {
		checks = append(checks, health.PingChecker("store", p))
	}
	if a.fallback != nil {
		var up []func() (string, bool)
		for _, cb := range a.fallback.Breakers() {
			up = append(up, func() (string, bool) {
				return cb.Name(), cb.State() != resilience.StateOpen
			})
		}
		checks = append(checks, health.AnyChecker("translator", up...))
	}
	return health.New(checks...)
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the tracker of connected clients.
func (a *App) Sessions() *Sessions { return a.sessions }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured address and blocks until ctx is
// cancelled or the listener fails. Open websocket sessions end with ctx.
func (a *App) Run(ctx context.Context) error {
	sc := a.cfg.Load().Server
	srv := &http.Server{
		Addr:              sc.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", sc.ListenAddr, "tls", sc.TLS != nil)
		var err error
		if sc.TLS != nil {
			err = srv.ListenAndServeTLS(sc.TLS.CertFile, sc.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ApplyConfig reacts to a reloaded configuration file. Log level changes
// take effect at once; speech and debounce changes apply to sessions
// started afterwards. Fields that need a restart are only logged.
func (a *App) ApplyConfig(_, next *config.Config, diff config.ConfigDiff) {
	if diff.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.SpeechChanged || diff.DebounceChanged {
		if err := a.setConfig(next); err != nil {
			slog.Warn("config reload rejected", "err", err)
			return
		}
		slog.Info("session defaults reloaded", "speech", diff.SpeechChanged, "debounce", diff.DebounceChanged)
	}
	for _, field := range diff.RestartRequired {
		slog.Warn("config change requires restart", "field", field)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// summary is the redacted configuration included in diagnostics reports.
func (a *App) summary() any {
	cfg := a.cfg.Load()
	type backend struct {
		Name  string `json:"name"`
		State string `json:"state"`
	}
	var backends []backend
	if a.fallback != nil {
		for _, cb := range a.fallback.Breakers() {
			backends = append(backends, backend{Name: cb.Name(), State: cb.State().String()})
		}
	}
	return map[string]any{
		"languages":      []string{cfg.Languages.A.Code, cfg.Languages.B.Code},
		"translator":     entryLabel(cfg.Translation.Provider),
		"backends":       backends,
		"store":          cfg.Store.Driver,
		"speech_rate":    cfg.Speech.Rate,
		"speech_enabled": cfg.Speech.SpeechEnabled(),
		"log_level":      cfg.Server.LogLevel,
		"live_sessions":  a.sessions.Len(),
	}
}

func (a *App) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a.sessions.Info()); err != nil {
		observe.Logger(r.Context()).Warn("app: encode sessions", "err", err)
	}
}

// SlogLevel maps a configured level onto slog's.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
