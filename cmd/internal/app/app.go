// Package app wires the taskflow server runtime: config, logging, storage,
// HTTP routes and the invalidation feed.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"taskflow/cmd/internal/auth/api"
	"taskflow/cmd/internal/auth/federated"
	"taskflow/cmd/internal/auth/session"
	"taskflow/cmd/internal/metrics"
	"taskflow/cmd/internal/realtime"
	"taskflow/cmd/internal/tasks"
	"taskflow/cmd/security/token"
)

// App owns the server's dependencies and their lifecycle.
type App struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics

	stores   *stores
	sessions *session.Service
	auth     *api.Handler
	tasks    *tasks.Handler
	ws       *realtime.WSGateway

	handler http.Handler
}

// New opens the stores and builds every component. Close releases them.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = NewLogger(nil, cfg.LogLevel, cfg.LogFormat, cfg.LogColor)
	}

	hasher, err := newTokenHasher(cfg)
	if err != nil {
		return nil, err
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a, err := build(ctx, cfg, log, st, hasher)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg Config, log *slog.Logger, st *stores, hasher token.Hasher) (*App, error) {
	m := metrics.New()

	sessions, err := session.NewService(cfg.Session, st.principals, hasher,
		session.WithLogger(log), session.WithMetrics(m))
	if err != nil {
		return nil, err
	}

	var authOpts []api.HandlerOption
	if cfg.Google.Enabled() {
		ex, err := federated.NewOIDC(ctx, cfg.Google)
		if err != nil {
			return nil, err
		}
		authOpts = append(authOpts, api.WithExchanger(ex))
		log.Info("auth.google.enabled", "issuer", cfg.Google.Issuer)
	}
	auth, err := api.NewHandler(log, cfg.Auth, st.principals, sessions, cfg.Passwords, authOpts...)
	if err != nil {
		return nil, err
	}

	hub := realtime.NewHub(log)
	taskSvc, err := tasks.NewService(st.tasks, st.cache, cfg.CacheTTL,
		tasks.WithLogger(log), tasks.WithMetrics(m), tasks.WithNotifier(hub))
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		stores:   st,
		sessions: sessions,
		auth:     auth,
		tasks:    tasks.NewHandler(taskSvc, tasks.WithHandlerLogger(log), tasks.WithMaxBodyBytes(cfg.Auth.MaxBodyBytes)),
		ws:       realtime.NewWSGateway(log, hub, cfg.WS),
	}
	a.handler = a.routes()
	return a, nil
}

// Handler is the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"store", a.cfg.StoreDriver,
		"cache", a.cfg.CacheDriver,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}
	a.log.Info("server.stopped")
	return nil
}

// Close releases the pool, the bolt file and the redis client.
func (a *App) Close() error {
	if err := a.stores.Close(); err != nil {
		a.log.Error("store.close.fail", "err", err)
		return err
	}
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
