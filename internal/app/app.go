// Package app wires all mcav subsystems into a running server process.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run starts the listeners and the broadcast loop and blocks
// until the context is cancelled, and Shutdown tears everything down in
// order.
//
// For testing, inject doubles via functional options (WithAuthStore,
// WithRendererClient, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/mcav/internal/auth"
	"github.com/MrWong99/mcav/internal/banner"
	"github.com/MrWong99/mcav/internal/config"
	"github.com/MrWong99/mcav/internal/health"
	"github.com/MrWong99/mcav/internal/observe"
	"github.com/MrWong99/mcav/internal/renderer"
	"github.com/MrWong99/mcav/internal/server"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

const (
	readHeaderTimeout   = 5 * time.Second
	httpShutdownTimeout = 5 * time.Second
)

// App owns all subsystem lifetimes of the mcav server.
type App struct {
	cfg *config.Config
	log *slog.Logger

	// Subsystems — initialised in New, torn down in Shutdown.
	metrics *observe.Metrics
	watcher *auth.Watcher
	banners *banner.Store
	mc      *renderer.Client
	srv     *server.Server

	// staticAuth, when injected, replaces the credential file watcher.
	staticAuth *auth.Store

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogger injects a logger instead of slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithMetrics injects a metrics set and skips the OTel provider setup.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithAuthStore injects a fixed credential store instead of watching the
// configured file.
func WithAuthStore(s *auth.Store) Option {
	return func(a *App) { a.staticAuth = s }
}

// WithRendererClient injects a renderer client instead of creating one
// from config.
func WithRendererClient(c *renderer.Client) Option {
	return func(a *App) { a.mc = c }
}

// New creates an App by wiring all subsystems together. Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: telemetry providers,
// credential loading, banner profile loading, renderer client creation,
// and server core assembly. Listeners are not bound until Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg: cfg,
		log: slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if a.metrics == nil {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    "mcav",
			ServiceVersion: Version,
		})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.closers = append(a.closers, func() error {
			sctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			return shutdown(sctx)
		})
		a.metrics = observe.DefaultMetrics()
	}

	// ── 2. Credentials ───────────────────────────────────────────────────
	authProvider, err := a.initAuth()
	if err != nil {
		return nil, fmt.Errorf("app: init auth: %w", err)
	}

	// ── 3. Banner profiles ───────────────────────────────────────────────
	a.banners = banner.NewStore(cfg.Banner.Path)
	if err := a.banners.Load(); err != nil {
		return nil, fmt.Errorf("app: load banner profiles: %w", err)
	}

	// ── 4. Renderer client ───────────────────────────────────────────────
	if a.mc == nil && !cfg.Renderer.Disabled {
		a.mc = renderer.NewClient(cfg.Renderer.URL(), cfg.Renderer.Zone, a.log)
		a.closers = append(a.closers, a.mc.Close)
	}

	// ── 5. Server core ───────────────────────────────────────────────────
	a.srv = server.New(server.Options{
		Log:          a.log,
		Metrics:      a.metrics,
		Auth:         authProvider,
		RequireAuth:  cfg.Auth.Require,
		Renderer:     a.mc,
		Banners:      a.banners,
		Zone:         cfg.Renderer.Zone,
		EntityCount:  cfg.Viz.EntityCount,
		Pattern:      cfg.Viz.Pattern,
		Preset:       cfg.Viz.Preset,
		RendererHost: cfg.Renderer.Host,
		RendererPort: cfg.Renderer.Port,
	})

	return a, nil
}

// initAuth resolves the credential source: an injected store, the watched
// credential file, or none at all. A missing file is fatal only when auth
// is required.
func (a *App) initAuth() (server.AuthProvider, error) {
	if a.staticAuth != nil {
		s := a.staticAuth
		return func() *auth.Store { return s }, nil
	}
	if a.cfg.Auth.Path == "" {
		if a.cfg.Auth.Require {
			return nil, errors.New("auth.require is set but auth.path is empty")
		}
		return nil, nil
	}

	w, err := auth.NewWatcher(a.cfg.Auth.Path, func(old, new *auth.Store) {
		a.log.Info("credentials reloaded", "path", a.cfg.Auth.Path)
	})
	if err != nil {
		if a.cfg.Auth.Require {
			return nil, err
		}
		a.log.Warn("credential file unavailable, running open", "path", a.cfg.Auth.Path, "err", err)
		return nil, nil
	}

	a.watcher = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	return w.Current, nil
}

// Server exposes the wired server core, mainly for tests.
func (a *App) Server() *server.Server { return a.srv }

// ─── Run ─────────────────────────────────────────────────────────────────────

// listener pairs an HTTP server with a name for logs.
type listener struct {
	name string
	srv  *http.Server
}

// Run binds all listeners and starts the broadcast loop, the browser
// heartbeat, and the renderer supervisor. It blocks until ctx is
// cancelled or a listener fails, then gracefully drains the HTTP servers.
func (a *App) Run(ctx context.Context) error {
	listeners := []listener{
		{"dj", &http.Server{
			Addr:              a.cfg.Server.DJListenAddr,
			Handler:           http.HandlerFunc(a.srv.HandleDJ),
			ReadHeaderTimeout: readHeaderTimeout,
		}},
		{"browser", &http.Server{
			Addr:              a.cfg.Server.BrowserListenAddr,
			Handler:           http.HandlerFunc(a.srv.HandleBrowser),
			ReadHeaderTimeout: readHeaderTimeout,
		}},
		{"http", &http.Server{
			Addr:              a.cfg.Server.HTTPListenAddr,
			Handler:           a.adminHandler(),
			ReadHeaderTimeout: readHeaderTimeout,
		}},
		{"metrics", &http.Server{
			Addr:              a.cfg.Server.MetricsListenAddr,
			Handler:           a.metricsHandler(),
			ReadHeaderTimeout: readHeaderTimeout,
		}},
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, l := range listeners {
		a.log.Info("listening", "server", l.name, "addr", l.srv.Addr)
		g.Go(func() error {
			if err := l.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s listener: %w", l.name, err)
			}
			return nil
		})
	}

	g.Go(func() error { return a.srv.RunBroadcastLoop(ctx) })
	g.Go(func() error { return a.srv.Hub().Heartbeat(ctx) })

	if a.mc != nil {
		sup := renderer.NewSupervisor(a.mc, a.log)
		sup.OnChange = a.srv.OnRendererChange
		sup.OnReconnect = a.srv.OnRendererReconnect
		g.Go(func() error {
			if err := sup.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	// Drain the HTTP servers once the context ends so the listener
	// goroutines above unblock.
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		for _, l := range listeners {
			if err := l.srv.Shutdown(sctx); err != nil {
				a.log.Warn("listener shutdown", "server", l.name, "err", err)
			}
		}
		return nil
	})

	a.log.Info("mcav running", "version", Version)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// adminHandler builds the plain-HTTP surface: health probes, the stats
// snapshot, and the static admin UI, all behind the telemetry middleware.
func (a *App) adminHandler() http.Handler {
	h := health.New(a.rendererCheck()).WithStats(a.srv.HealthSnapshot)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("/", http.FileServer(http.Dir("web")))

	return observe.Middleware(a.metrics)(mux)
}

func (a *App) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// rendererCheck reports readiness of the downstream renderer. A disabled
// renderer always passes; a configured one must be connected.
func (a *App) rendererCheck() health.Checker {
	return health.Checker{
		Name: "renderer",
		Check: func(ctx context.Context) error {
			if a.mc == nil {
				return nil
			}
			if !a.mc.Connected() {
				return errors.New("renderer not connected")
			}
			return nil
		},
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers
// are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
