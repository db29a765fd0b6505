package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"taskflow/cmd/identity"
	"taskflow/cmd/internal/auth/federated"
	"taskflow/cmd/internal/httpx"
)

const federatedFailurePath = "/login?error=authentication_failed"

func (h *Handler) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	if h.exchanger == nil {
		httpx.WriteError(w, http.StatusNotFound, "federated_disabled", "federated login is not configured")
		return
	}
	flow, err := federated.NewFlow()
	if err != nil {
		h.log.Error("auth.google.flow.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	// The callback is a top-level cross-site navigation; Lax is enough.
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.StateCookieName,
		Value:    flow.Encode(),
		Path:     "/api/auth/google",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   int(h.cfg.StateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.exchanger.AuthCodeURL(flow), http.StatusFound)
}

func (h *Handler) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.exchanger == nil {
		httpx.WriteError(w, http.StatusNotFound, "federated_disabled", "federated login is not configured")
		return
	}
	raw := cookieValue(r, h.cfg.StateCookieName)
	h.expireStateCookie(w)

	q := r.URL.Query()
	flow, ok := federated.DecodeFlow(raw)
	state := q.Get("state")
	if !ok || state == "" || subtle.ConstantTimeCompare([]byte(flow.State), []byte(state)) != 1 {
		h.federatedFailed(w, r, "state_mismatch", nil)
		return
	}
	if e := q.Get("error"); e != "" {
		h.federatedFailed(w, r, "provider_error", errors.New(e))
		return
	}
	code := q.Get("code")
	if code == "" {
		h.federatedFailed(w, r, "missing_code", nil)
		return
	}

	ctx := r.Context()
	ext, err := h.exchanger.Exchange(ctx, code, flow)
	if err != nil {
		h.federatedFailed(w, r, "exchange", err)
		return
	}

	p, err := h.principals.GetPrincipalByExternalID(ctx, ext.ExternalID)
	if identity.IsNotFound(err) {
		p, err = h.createFederated(r, ext)
	}
	if err != nil {
		h.federatedFailed(w, r, "principal", err)
		return
	}

	now := h.now().UTC()
	pair, err := h.sessions.Login(ctx, now, p)
	if err != nil {
		h.federatedFailed(w, r, "login", err)
		return
	}
	h.audit(r, "auth.google.success", p.ID)
	h.setSessionCookies(w, pair, now)
	http.Redirect(w, r, h.clientURL("/dashboard"), http.StatusFound)
}

// createFederated provisions a principal for a first-time external login.
// An email held by another principal is a conflict; accounts are never
// linked implicitly.
func (h *Handler) createFederated(r *http.Request, ext federated.Identity) (identity.Principal, error) {
	placeholder, err := h.passwords.Placeholder()
	if err != nil {
		return identity.Principal{}, err
	}
	extID := ext.ExternalID
	p, err := h.principals.CreatePrincipal(r.Context(), identity.CreatePrincipalInput{
		Email:        ext.Email,
		DisplayName:  ext.DisplayName,
		PasswordHash: &placeholder,
		ExternalID:   &extID,
		Now:          h.now().UTC(),
	})
	if err != nil {
		return identity.Principal{}, err
	}
	h.audit(r, "auth.google.created", p.ID)
	return p, nil
}

func (h *Handler) federatedFailed(w http.ResponseWriter, r *http.Request, stage string, err error) {
	attrs := []any{"stage", stage}
	if err != nil {
		attrs = append(attrs, "err", err.Error())
	}
	if identity.IsConflict(err) {
		attrs = append(attrs, "field", identity.ConflictField(err))
	}
	h.audit(r, "auth.google.failed", "", attrs...)
	http.Redirect(w, r, h.clientURL(federatedFailurePath), http.StatusFound)
}

func (h *Handler) expireStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.StateCookieName,
		Value:    "",
		Path:     "/api/auth/google",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clientURL(path string) string {
	return strings.TrimRight(h.cfg.ClientURL, "/") + path
}
