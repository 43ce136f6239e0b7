// Package app wires all voxauth subsystems into a running HTTP server.
//
// The App struct owns the full lifecycle: New connects the gallery store
// and builds the session runtime and HTTP routes, Run serves until the
// context is cancelled, and Shutdown tears everything down in order.
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

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxauth/internal/config"
	"github.com/MrWong99/voxauth/internal/health"
	"github.com/MrWong99/voxauth/internal/observe"
	"github.com/MrWong99/voxauth/internal/session"
	"github.com/MrWong99/voxauth/pkg/gallery"
	galmem "github.com/MrWong99/voxauth/pkg/gallery/memory"
	galpg "github.com/MrWong99/voxauth/pkg/gallery/postgres"
)

const (
	// maxFrameBytes bounds inbound WebSocket frames. A 10s 16-bit WAV at
	// 16 kHz is ~320 KiB; 4 MiB leaves headroom for higher-rate uploads.
	maxFrameBytes = 4 << 20

	// shutdownTimeout bounds the HTTP server drain after ctx is cancelled.
	shutdownTimeout = 10 * time.Second
)

// App owns the gallery store, session runtime, and HTTP server.
type App struct {
	cfg     *config.Config
	store   gallery.Store
	runtime *session.Runtime
	metrics *observe.Metrics
	handler http.Handler

	// checks feed the /readyz endpoint.
	checks []health.Checker

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a gallery store instead of creating one from config.
func WithStore(s gallery.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics instance instead of the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithChecker adds an extra readiness checker.
func WithChecker(c health.Checker) Option {
	return func(a *App) { a.checks = append(a.checks, c) }
}

// New creates an App by wiring the store, session runtime, and routes.
// The processor comes from main (model pools behind the pipeline); tests
// pass stubs.
func New(ctx context.Context, cfg *config.Config, proc session.Processor, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	a.runtime = session.NewRuntime(session.Config{
		IdleTimeout:         cfg.Session.IdleTimeout,
		MaxRetries:          cfg.Auth.MaxRetries,
		SimilarityThreshold: cfg.Auth.SimilarityThreshold,
		ChallengeMinLength:  cfg.Auth.ChallengeMinLength,
		ChallengeMaxLength:  cfg.Auth.ChallengeMaxLength,
	}, proc, a.store, a.metrics)

	a.handler = a.routes()
	return a, nil
}

// ApplyAuthPolicy swaps the authentication knobs on the session runtime.
// Called from the config reload loop; in-flight sessions keep the policy
// they started with, new connections pick up the change.
func (a *App) ApplyAuthPolicy(auth config.AuthConfig) {
	a.runtime.SetPolicy(session.Config{
		IdleTimeout:         a.cfg.Session.IdleTimeout,
		MaxRetries:          auth.MaxRetries,
		SimilarityThreshold: auth.SimilarityThreshold,
		ChallengeMinLength:  auth.ChallengeMinLength,
		ChallengeMaxLength:  auth.ChallengeMaxLength,
	})
	slog.Info("auth policy updated",
		"similarity_threshold", auth.SimilarityThreshold,
		"max_retries", auth.MaxRetries,
	)
}

// initStore connects the gallery store or falls back to the in-memory one.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}

	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		slog.Warn("no postgres_dsn configured; using in-memory gallery")
		a.store = galmem.New()
		return nil
	}

	dims := a.cfg.Store.EmbeddingDimensions
	if dims <= 0 {
		dims = 192
	}

	store, err := galpg.NewStore(ctx, dsn, dims)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	a.checks = append(a.checks, health.Checker{Name: "database", Check: store.Ping})
	return nil
}

// routes builds the HTTP mux: WebSocket endpoints, health probes, and the
// Prometheus scrape endpoint, all behind the observability middleware.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	health.New(a.checks...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /ws/enroll", a.serveWS(a.runtime.HandleEnrollment))
	mux.HandleFunc("GET /ws/verify", a.serveWS(a.runtime.HandleVerification))

	return observe.Middleware(a.metrics)(mux)
}

// serveWS upgrades the request and hands the connection to a session flow.
// The flow blocks until the session terminates; request-scoped cancellation
// reaches it through r.Context().
func (a *App) serveWS(flow func(context.Context, session.Conn)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			slog.Warn("websocket accept failed", "path", r.URL.Path, "error", err)
			return
		}
		c.SetReadLimit(maxFrameBytes)
		flow(r.Context(), session.NewWebsocketConn(c))
	}
}

// Handler returns the root HTTP handler. Used by tests with httptest.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP until ctx is cancelled, then drains the server. Sessions
// inherit ctx through the server's base context, so cancellation also stops
// in-flight WebSocket sessions.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: listen on %q: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			slog.Info("server listening", "addr", ln.Addr().String(), "tls", true)
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("server listening", "addr", ln.Addr().String(), "tls", false)
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(drainCtx); err != nil {
			slog.Warn("server drain incomplete", "error", err)
		}
		return gctx.Err()
	})

	return g.Wait()
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
