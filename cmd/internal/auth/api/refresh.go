package api

import (
	"errors"
	"net/http"

	"taskflow/cmd/internal/auth/session"
	"taskflow/cmd/internal/httpx"
)

// handleRefresh rotates the pair. The refresh credential comes from its
// cookie, or from {"refreshToken": ...} for clients without a cookie jar.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refresh := cookieValue(r, h.cfg.RefreshCookieName)
	if refresh == "" {
		var req refreshRequest
		err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req)
		if err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
		refresh = req.RefreshToken
	}

	now := h.now().UTC()
	pair, err := h.sessions.Rotate(r.Context(), now, refresh)
	if err != nil {
		if !errors.Is(err, session.ErrStoreUnavailable) && session.CodeOf(err) != "" {
			h.audit(r, "auth.refresh.rejected", "", "code", session.CodeOf(err))
			h.clearSessionCookies(w)
		}
		h.writeAuthError(w, err)
		return
	}

	h.setSessionCookies(w, pair, now)
	httpx.WriteJSON(w, http.StatusOK, refreshResponse{Session: toSessionResponse(pair)})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, _ := session.IdentityFromContext(r.Context())
	if err := h.sessions.Logout(r.Context(), h.now().UTC(), id.PrincipalID); err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.audit(r, "auth.logout", id.PrincipalID)
	h.clearSessionCookies(w)
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}
