package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"taskflow/cmd/identity"
	"taskflow/cmd/internal/auth/federated"
	"taskflow/cmd/internal/auth/session"
	"taskflow/cmd/security/password"
)

// Handler wires the auth endpoints to the principal store and the session
// service.
type Handler struct {
	log *slog.Logger
	cfg Config

	principals identity.Store
	sessions   *session.Service
	passwords  password.Config
	exchanger  federated.Exchanger
	limiter    *ipLimiter
	now        func() time.Time

	dummyHash string
}

type HandlerOption func(*Handler)

// WithExchanger enables the Google routes.
func WithExchanger(ex federated.Exchanger) HandlerOption {
	return func(h *Handler) { h.exchanger = ex }
}

// WithClock overrides time.Now for verification, issuance and cookies.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHandler(log *slog.Logger, cfg Config, principals identity.Store, sessions *session.Service, passwords password.Config, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if principals == nil || sessions == nil {
		return nil, errors.New("auth: nil principal store or session service")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Handler{
		log:        log,
		cfg:        cfg,
		principals: principals,
		sessions:   sessions,
		passwords:  passwords,
		limiter:    newIPLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst, cfg.RateLimitClients, cfg.RateLimitIdle),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	// Missing accounts still pay for one Argon2id verify.
	dummy, err := passwords.Placeholder()
	if err != nil {
		return nil, fmt.Errorf("auth: dummy hash: %w", err)
	}
	h.dummyHash = dummy
	return h, nil
}

// Register mounts the auth routes.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/auth/register", h.rateLimited(h.handleRegister))
	mux.HandleFunc("POST /api/auth/login", h.rateLimited(h.handleLogin))
	mux.HandleFunc("POST /api/auth/refresh-token", h.handleRefresh)
	mux.Handle("POST /api/auth/logout", h.RequireAuth(http.HandlerFunc(h.handleLogout)))
	mux.Handle("GET /api/auth/me", h.RequireAuth(http.HandlerFunc(h.handleMe)))
	mux.Handle("PATCH /api/auth/profile", h.RequireAuth(http.HandlerFunc(h.handleProfile)))
	mux.HandleFunc("GET /api/auth/google", h.handleGoogleStart)
	mux.HandleFunc("GET /api/auth/google/callback", h.rateLimited(h.handleGoogleCallback))
}

func (h *Handler) Sessions() *session.Service { return h.sessions }
