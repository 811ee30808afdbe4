// Package app wires all cockpit subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and supervises the recognizer until the context
// is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/cockpit/internal/api"
	"github.com/MrWong99/cockpit/internal/backlog"
	"github.com/MrWong99/cockpit/internal/config"
	"github.com/MrWong99/cockpit/internal/extract"
	"github.com/MrWong99/cockpit/internal/health"
	"github.com/MrWong99/cockpit/internal/observe"
	"github.com/MrWong99/cockpit/internal/recognizer"
	"github.com/MrWong99/cockpit/internal/resilience"
	"github.com/MrWong99/cockpit/internal/session"
	"github.com/MrWong99/cockpit/internal/transcript"
	"github.com/MrWong99/cockpit/internal/transcript/phonetic"
	"github.com/MrWong99/cockpit/pkg/provider/llm"
	"github.com/MrWong99/cockpit/pkg/store"
	"github.com/MrWong99/cockpit/pkg/store/postgres"
)

// shutdownTimeout bounds HTTP shutdown once Run's context is cancelled.
const shutdownTimeout = 10 * time.Second

// NamedLLM is a constructed model backend and the name it is logged under.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

// Providers holds the constructed model backends. Populated by main.go via
// the config registry. LLM[0] is the primary; the rest are fallbacks in
// order. An empty slice runs extraction in fallback-only mode.
type Providers struct {
	LLM []NamedLLM
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	store      store.Store
	metrics    *observe.Metrics
	registry   *prometheus.Registry
	llm        *resilience.LLMFallback
	backlog    *backlog.Service
	extractor  *extract.Extractor
	controller *session.Controller
	hub        *recognizer.Hub
	supervisor *recognizer.Supervisor
	handler    http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a record store instead of opening PostgreSQL.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithPrometheusRegistry sets the registry served on /metrics.
func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together.
//
// New performs all initialisation synchronously: store connection, backlog
// load, model fallback assembly, controller, recognizer hub and supervisor,
// and the HTTP routes.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Record store ──────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Backlog ───────────────────────────────────────────────────────
	a.backlog = backlog.New(a.store, backlog.WithMetrics(a.metrics))
	if err := a.backlog.Load(ctx); err != nil {
		return nil, fmt.Errorf("app: load backlog: %w", err)
	}

	// ── 3. Extraction ────────────────────────────────────────────────────
	a.initExtractor()

	// ── 4. Session controller ────────────────────────────────────────────
	sessOpts := []session.Option{session.WithMetrics(a.metrics)}
	if cfg.Session.PhoneticNames {
		sessOpts = append(sessOpts, session.WithNormalizer(transcript.NewNormalizer(phonetic.New())))
	}
	a.controller = session.New(session.Config{
		ProjectID:           cfg.Session.ProjectID,
		Debounce:            cfg.Session.Debounce,
		CorrectionWindow:    cfg.Session.CorrectionWindow,
		MinChunkRunes:       cfg.Session.MinChunkChars,
		ConfidenceThreshold: cfg.Extraction.ConfidenceThreshold,
	}, a.backlog, a.extractor, a.store, sessOpts...)

	// ── 5. Recognizer ────────────────────────────────────────────────────
	a.hub = recognizer.NewHub(a.controller, recognizer.WithOriginPatterns(cfg.Server.AllowedOrigins...))
	a.supervisor = recognizer.NewSupervisor(recognizer.SupervisorConfig{
		Recognizer:   a.hub,
		Liveness:     a.controller,
		RestartDelay: cfg.Recognizer.RestartDelay,
		MaxRestarts:  cfg.Recognizer.MaxRestarts,
		Metrics:      a.metrics,
	})
	a.hub.SetMonitor(a.supervisor)

	// ── 6. HTTP routes ───────────────────────────────────────────────────
	a.handler = a.routes()

	slog.Info("app initialised",
		"questions", len(a.backlog.Questions()),
		"llm_backends", len(providers.LLM),
		"phonetic_names", cfg.Session.PhoneticNames,
	)
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		return errors.New("store.postgres_dsn is required when no store is injected")
	}
	st, err := postgres.Open(ctx, dsn, a.cfg.Store.MaxConns)
	if err != nil {
		return err
	}
	a.store = st
	a.closers = append(a.closers, func() error {
		st.Close()
		return nil
	})
	return nil
}

func (a *App) initExtractor() {
	ecfg := a.cfg.Extraction
	opts := []extract.Option{
		extract.WithMetrics(a.metrics),
		extract.WithTimeout(ecfg.ModelTimeout),
		extract.WithMaxTokens(ecfg.MaxTokens),
		extract.WithRateLimit(ecfg.MaxCallsPerMinute),
	}
	if backends := a.providers.LLM; len(backends) > 0 {
		a.llm = resilience.NewLLMFallback(backends[0].Provider, backends[0].Name, resilience.FallbackConfig{})
		for _, b := range backends[1:] {
			a.llm.AddFallback(b.Name, b.Provider)
		}
		opts = append(opts, extract.WithProvider(a.llm))
	}
	a.extractor = extract.New(opts...)
	a.extractor.SetEnabled(ecfg.IsEnabled())
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	api.New(a.controller, a.backlog, a.hub).Register(mux)
	mux.Handle("GET /ws/recognizer", a.hub)

	checkers := []health.Checker{
		health.StoreChecker(a.store),
		health.RecognizerChecker(a.hub.Connected),
	}
	if a.llm != nil {
		checkers = append(checkers, health.LLMChecker(a.llm))
	}
	health.New(checkers...).Register(mux)

	mux.Handle("GET /metrics", observe.MetricsHandler(a.registry))

	return observe.Middleware(a.metrics)(mux)
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Controller returns the session controller.
func (a *App) Controller() *session.Controller { return a.controller }

// Backlog returns the backlog service.
func (a *App) Backlog() *backlog.Service { return a.backlog }

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of d. Log level changes are
// handled by the caller, which owns the slog.LevelVar.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.DebounceChanged {
		a.controller.SetDebounce(d.NewDebounce)
		slog.Info("debounce updated", "debounce", d.NewDebounce)
	}
	if d.ExtractionToggled {
		a.extractor.SetEnabled(d.ExtractionEnabled)
		slog.Info("model extraction toggled", "enabled", d.ExtractionEnabled)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured address and supervises the recognizer
// until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.supervisor.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops any active session, the supervisor, and closes the store.
// Safe to call more than once; only the first call has effect.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		a.supervisor.Stop()
		if a.controller.IsListening() {
			if err := a.controller.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stop session: %w", err))
			}
		}
		for _, c := range a.closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
