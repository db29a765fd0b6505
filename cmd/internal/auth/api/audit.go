package api

import (
	"net/http"
	"strings"
)

// audit writes a security event to the structured log. Extra attrs follow
// slog's key/value convention.
func (h *Handler) audit(r *http.Request, action, principalID string, attrs ...any) {
	args := make([]any, 0, 8+len(attrs))
	args = append(args, "action", action)
	if principalID != "" {
		args = append(args, "principal_id", principalID)
	}
	if ip := clientIP(r, h.cfg.TrustProxy); ip != "" {
		args = append(args, "ip", ip)
	}
	if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
		args = append(args, "user_agent", ua)
	}
	args = append(args, attrs...)
	h.log.InfoContext(r.Context(), "auth.audit", args...)
}
