// Package app wires all Vigil subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject in-memory stores via functional options
// (WithEventStore, WithReferenceStore, WithMetrics). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/proctorly/vigil/internal/alert"
	"github.com/proctorly/vigil/internal/config"
	"github.com/proctorly/vigil/internal/facecache"
	"github.com/proctorly/vigil/internal/health"
	"github.com/proctorly/vigil/internal/notify"
	"github.com/proctorly/vigil/internal/observe"
	"github.com/proctorly/vigil/internal/session"
	"github.com/proctorly/vigil/internal/violation"
	"github.com/proctorly/vigil/pkg/analysis"
	"github.com/proctorly/vigil/pkg/store"
	"github.com/proctorly/vigil/pkg/store/postgres"
)

// shutdownGrace bounds how long Run waits for in-flight HTTP requests
// after the context is cancelled.
const shutdownGrace = 10 * time.Second

// App owns all subsystem lifetimes and serves the Vigil proctoring API.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	events  store.EventStore
	refs    store.ReferenceStore
	faces   *facecache.Cache
	hub     *notify.Hub
	manager *session.Manager
	server  *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithEventStore injects an event store instead of creating one from config.
func WithEventStore(s store.EventStore) Option {
	return func(a *App) { a.events = s }
}

// WithReferenceStore injects a reference-face store instead of creating one
// from config.
func WithReferenceStore(s store.ReferenceStore) Option {
	return func(a *App) { a.refs = s }
}

// WithMetrics injects a metrics instance instead of using the global one.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStores(ctx); err != nil {
		return nil, fmt.Errorf("app: init stores: %w", err)
	}

	preset, err := analysis.PresetByName(cfg.Analysis.CalibrationPreset)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a.faces = facecache.New(a.refs)
	a.hub = notify.NewHub()
	a.manager = session.NewManager(session.Params{
		Calibrator:           analysis.NewCalibrator(preset),
		Aggregator:           violation.NewAggregator(cfg.Analysis.FaceMismatchThreshold, cfg.Analysis.OcclusionLandmarkMinimum),
		Dedup:                alert.NewDeduplicator(alert.NewShardedStore(), cfg.Alerts.CooldownPeriod),
		Events:               a.events,
		Faces:                a.faces,
		Publisher:            a.hub,
		Metrics:              a.metrics,
		SpeechRatioThreshold: cfg.Analysis.SpeechRatioThreshold,
	})

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.buildHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// initStores sets up the PostgreSQL store or falls back to memory. Injected
// stores take precedence.
func (a *App) initStores(ctx context.Context) error {
	if a.events != nil && a.refs != nil {
		return nil
	}

	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		mem := store.NewMemStore()
		if a.events == nil {
			a.events = mem
		}
		if a.refs == nil {
			a.refs = mem
		}
		slog.Warn("running with in-memory storage; events will not survive a restart")
		return nil
	}

	pg, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	if a.events == nil {
		a.events = pg
	}
	if a.refs == nil {
		a.refs = pg
	}
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	return nil
}

// buildHandler assembles the HTTP mux: operational endpoints, the alert
// stream, and the proctoring API, all behind the observability middleware.
func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()

	h := health.New(health.Checker{
		Name:  "store",
		Check: a.events.Ping,
	})
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /ws/alerts", a.hub)
	a.registerAPI(mux)

	return observe.Middleware(a.metrics)(mux)
}

// Manager exposes the session manager, mainly for tests.
func (a *App) Manager() *session.Manager { return a.manager }

// Handler exposes the fully assembled HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Run serves the HTTP API and blocks until ctx is cancelled or the server
// fails. In-flight requests get [shutdownGrace] to finish after
// cancellation.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server listening", "addr", a.server.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Shutdown tears down all subsystems in order. It respects the context
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
