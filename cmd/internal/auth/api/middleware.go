package api

import (
	"errors"
	"net/http"

	"taskflow/cmd/internal/auth/session"
	"taskflow/cmd/internal/httpx"
)

// RequireAuth verifies the access credential and attaches the identity to
// the request context (session.IdentityFromContext). Failures answer 401
// with the code in the X-Auth-Error header, or 503 when the principal store
// is down.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := h.sessions.VerifyAccess(r.Context(), h.accessToken(r), h.now())
		if err != nil {
			if errors.Is(err, session.ErrCredentialMissing) {
				h.log.Debug("auth.access.missing", "path", r.URL.Path)
			} else if !errors.Is(err, session.ErrStoreUnavailable) {
				h.log.Info("auth.access.rejected", "path", r.URL.Path, "code", session.CodeOf(err))
			}
			h.writeAuthError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(session.ContextWithIdentity(r.Context(), id)))
	})
}

// writeAuthError maps session failures onto the HTTP error envelope.
func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	code := session.CodeOf(err)
	switch {
	case code == "":
		h.log.Error("auth.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
	case errors.Is(err, session.ErrStoreUnavailable):
		h.log.Error("auth.store.unavailable", "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, code, "please retry later")
	default:
		w.Header().Set(session.HeaderAuthError, code)
		httpx.WriteError(w, http.StatusUnauthorized, code, authMessages[code])
	}
}

var authMessages = map[string]string{
	session.CodeCredentialMissing: "authentication required",
	session.CodeCredentialInvalid: "invalid access credential",
	session.CodeCredentialExpired: "access credential expired",
	session.CodePrincipalNotFound: "account not found",
	session.CodeRefreshMissing:    "refresh credential required",
	session.CodeRefreshInvalid:    "invalid refresh credential",
	session.CodeRefreshExpired:    "refresh credential expired",
	session.CodeRefreshSuperseded: "refresh credential no longer valid",
}
