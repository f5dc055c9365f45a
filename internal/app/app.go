// Package app wires all trade-in subsystems into a running application.
//
// The App struct owns the full lifecycle: New loads the price grid and builds
// every component, Run serves HTTP until the context is cancelled, RunMCP
// serves the tool catalogue over stdio, and Shutdown tears everything down in
// order.
//
// For testing, inject doubles via functional options (WithLeadStore,
// WithGrid, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/tradein/internal/api"
	"github.com/MrWong99/tradein/internal/autosave"
	"github.com/MrWong99/tradein/internal/checklist"
	"github.com/MrWong99/tradein/internal/config"
	"github.com/MrWong99/tradein/internal/extract"
	"github.com/MrWong99/tradein/internal/extract/phonetic"
	"github.com/MrWong99/tradein/internal/health"
	"github.com/MrWong99/tradein/internal/lead"
	"github.com/MrWong99/tradein/internal/mcp/server"
	"github.com/MrWong99/tradein/internal/mcp/tools/tradein"
	"github.com/MrWong99/tradein/internal/observe"
	"github.com/MrWong99/tradein/internal/pricegrid"
	"github.com/MrWong99/tradein/internal/quote"
	"github.com/MrWong99/tradein/internal/resilience"
)

// readHeaderTimeout bounds slow clients on the HTTP listener.
const readHeaderTimeout = 10 * time.Second

// App owns all subsystem lifetimes of the trade-in service.
type App struct {
	cfg      *config.Config
	version  string
	metrics  *observe.Metrics
	logLevel *slog.LevelVar

	// Subsystems, initialised in New.
	grid     *pricegrid.Grid
	store    lead.Store
	calc     *quote.Calculator
	sessions *checklist.Registry
	orch     *autosave.Orchestrator
	api      *api.Server
	mcp      *server.Server
	health   *health.Handler
	sweeper  *SessionManager

	// cfgMu guards cfg across ApplyConfig calls.
	cfgMu sync.Mutex

	httpServer *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLeadStore injects a lead store instead of creating an HTTP client from
// config.
func WithLeadStore(s lead.Store) Option {
	return func(a *App) { a.store = s }
}

// WithGrid injects a price grid instead of loading one from config.
func WithGrid(g *pricegrid.Grid) Option {
	return func(a *App) { a.grid = g }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands New the level variable of the process logger so that
// config reloads can change verbosity.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithVersion sets the version reported to tool clients.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		version: "dev",
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// 1. Price grid.
	if a.grid == nil {
		g, err := LoadGrid(ctx, cfg.Grid)
		a.metrics.RecordGridLoad(ctx, err)
		if err != nil {
			return nil, fmt.Errorf("app: load grid: %w", err)
		}
		a.grid = g
	}
	a.calc = quote.New(a.grid)
	slog.Info("price grid loaded", "rows", a.grid.Len(), "version", a.grid.Version())

	// 2. Extraction engine.
	engine, err := BuildEngine(cfg.Extraction)
	if err != nil {
		return nil, fmt.Errorf("app: build extraction engine: %w", err)
	}

	// 3. Lead store. toolStore stays nil when persistence is disabled so the
	// submit tool is not offered.
	toolStore := a.initLeadStore()

	// 4. Turn pipeline.
	notify := cfg.Lead.NotifyEnabled()
	a.sessions = checklist.NewRegistry()
	a.orch = autosave.New(engine, a.store,
		autosave.WithMetrics(a.metrics),
		autosave.WithRegion(cfg.Lead.DefaultRegion),
		autosave.WithNotify(notify),
	)
	a.api = api.New(a.sessions, a.orch, a.calc, api.WithMetrics(a.metrics))

	// 5. Tool server.
	toolset := tradein.New(a.calc, a.sessions, toolStore,
		tradein.WithMetrics(a.metrics),
		tradein.WithNotify(notify),
	)
	a.mcp = server.New(toolset.Tools(),
		server.WithMetrics(a.metrics),
		server.WithVersion(a.version),
	)

	// 6. Health and idle eviction.
	checks := []health.Checker{
		health.Loaded("price_grid", func() bool {
			g := a.calc.Grid()
			return g != nil && g.Len() > 0
		}),
	}
	if ls, ok := a.store.(*resilience.LeadStore); ok {
		checks = append(checks, health.NotTripped("lead_store", func() bool {
			return ls.State() == resilience.StateOpen
		}))
	}
	a.health = health.New(checks)
	a.sweeper = NewSessionManager(a.api.Sweep, cfg.Sessions.IdleTTL, 0)

	return a, nil
}

// initLeadStore resolves the lead store and returns the store offered to
// tools, which is nil when persistence is disabled.
func (a *App) initLeadStore() lead.Store {
	if a.store != nil {
		return a.store
	}
	lc := a.cfg.Lead
	if lc.BaseURL == "" {
		a.store = lead.Disabled{}
		slog.Warn("lead store not configured; leads are kept in memory only")
		return nil
	}
	client := lead.NewClient(lc.BaseURL, lc.APIKey,
		lead.WithTimeout(lc.Timeout),
		lead.WithPaths(lc.UpdatePath, lc.SubmitPath),
	)
	a.store = resilience.NewLeadStore(client, resilience.CircuitBreakerConfig{
		MaxFailures:  lc.BreakerFailures,
		ResetTimeout: lc.BreakerReset,
	})
	slog.Info("lead store configured", "base_url", lc.BaseURL)
	return a.store
}

// gridLoader loads one price grid source.
type gridLoader func(ctx context.Context, gc config.GridConfig) (*pricegrid.Grid, error)

func loadPostgresGrid(ctx context.Context, gc config.GridConfig) (*pricegrid.Grid, error) {
	src, pool, err := pricegrid.OpenPostgres(ctx, gc.PostgresDSN, gc.Table)
	if err != nil {
		return nil, err
	}
	defer pool.Close()
	return src.Load(ctx, gc.Version)
}

func loadCSVGrid(_ context.Context, gc config.GridConfig) (*pricegrid.Grid, error) {
	return pricegrid.LoadCSV(gc.Path, gc.Version)
}

// LoadGrid loads the price grid. A configured PostgreSQL DSN is tried first;
// the CSV path, when also set, is the fallback.
func LoadGrid(ctx context.Context, gc config.GridConfig) (*pricegrid.Grid, error) {
	if gc.PostgresDSN == "" {
		return loadCSVGrid(ctx, gc)
	}
	if gc.Path == "" {
		return loadPostgresGrid(ctx, gc)
	}
	sources := resilience.NewFallback[gridLoader]("postgres", loadPostgresGrid, resilience.CircuitBreakerConfig{})
	sources.Add("csv", loadCSVGrid)
	return resilience.Do(ctx, sources, func(ctx context.Context, load gridLoader) (*pricegrid.Grid, error) {
		return load(ctx, gc)
	})
}

// BuildEngine constructs the extraction engine described by ec.
func BuildEngine(ec config.ExtractionConfig) (*extract.Engine, error) {
	var opts []extract.Option
	if ec.AliasFile != "" {
		table, err := extract.LoadAliasFile(ec.AliasFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, extract.WithAliases(table))
	}
	switch {
	case ec.DisablePhonetic:
		opts = append(opts, extract.WithPhonetic(nil))
	case ec.PhoneticThreshold > 0:
		opts = append(opts, extract.WithPhonetic(phonetic.New(phonetic.WithPhoneticThreshold(ec.PhoneticThreshold))))
	}
	return extract.NewEngine(opts...), nil
}

// Handler returns the full HTTP surface: health probes, Prometheus metrics
// and the versioned API, all behind the observability middleware.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(observe.Middleware(a.metrics))
	a.health.Register(r)
	r.Handle("/metrics", promhttp.Handler())
	a.api.Routes(r)
	return r
}

// Calculator returns the quote calculator backed by the live grid.
func (a *App) Calculator() *quote.Calculator { return a.calc }

// MCP returns the tool server.
func (a *App) MCP() *server.Server { return a.mcp }

// Run starts the idle-session sweeper and the HTTP server and blocks until
// ctx is cancelled or the listener fails. When ctx is done, Run returns
// context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	if err := a.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("app: start session manager: %w", err)
	}

	sc := a.config().Server
	a.httpServer = &http.Server{
		Addr:              sc.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	srv := a.httpServer

	errCh := make(chan error, 1)
	go func() {
		var err error
		if sc.TLS != nil {
			err = srv.ListenAndServeTLS(sc.TLS.CertFile, sc.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("http server listening", "addr", sc.ListenAddr, "tls", sc.TLS != nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("app: serve http: %w", err)
		}
		return nil
	}
}

// RunMCP serves the tool catalogue over stdin/stdout until ctx is cancelled
// or the client disconnects.
func (a *App) RunMCP(ctx context.Context) error {
	if err := a.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("app: start session manager: %w", err)
	}
	return a.mcp.Run(ctx)
}

// ApplyConfig applies the hot-reloadable differences between old and new.
// Settings that need a restart are logged and otherwise ignored. A failed
// reload keeps the previous grid or engine in place.
func (a *App) ApplyConfig(ctx context.Context, old, new *config.Config) error {
	d := config.Diff(old, new)
	if !d.Changed() {
		return nil
	}
	var errs []error

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.GridChanged {
		g, err := LoadGrid(ctx, new.Grid)
		a.metrics.RecordGridLoad(ctx, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("app: reload grid: %w", err))
		} else {
			prev := a.calc.Swap(g)
			slog.Info("price grid reloaded", "rows", g.Len(), "version", g.Version(), "previous_version", prev.Version())
		}
	}

	if d.ExtractionChanged {
		engine, err := BuildEngine(new.Extraction)
		if err != nil {
			errs = append(errs, fmt.Errorf("app: rebuild extraction engine: %w", err))
		} else {
			a.orch.SetEngine(engine)
			slog.Info("extraction engine rebuilt", "alias_file", new.Extraction.AliasFile)
		}
	}

	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "settings", d.RestartRequired)
	}

	a.cfgMu.Lock()
	a.cfg = new
	a.cfgMu.Unlock()

	return errors.Join(errs...)
}

func (a *App) config() *config.Config {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	return a.cfg
}

// Shutdown stops the sweeper, drains the HTTP server and runs the remaining
// closers. It respects the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.sweeper.Stop(ctx); err != nil {
			slog.Warn("session manager stop error", "err", err)
		}

		if a.httpServer != nil {
			if err := a.httpServer.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown error", "err", err)
				shutdownErr = err
			}
		}

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

		slog.Info("shutdown complete", "sessions", a.sessions.Len())
	})
	return shutdownErr
}
