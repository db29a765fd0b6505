package api

import (
	"net/http"
	"strings"
	"time"

	"taskflow/cmd/internal/auth/session"
)

// setSessionCookies delivers a freshly issued pair.
func (h *Handler) setSessionCookies(w http.ResponseWriter, p session.Pair, now time.Time) {
	h.setCookie(w, h.cfg.AccessCookieName, p.AccessToken, p.AccessExp, now, "/")
	h.setCookie(w, h.cfg.RefreshCookieName, p.RefreshToken, p.RefreshExp, now, "/")
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	h.expireCookie(w, h.cfg.AccessCookieName, "/")
	h.expireCookie(w, h.cfg.RefreshCookieName, "/")
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, exp, now time.Time, path string) {
	maxAge := int(exp.Sub(now).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   h.cfg.CookieDomain,
		Expires:  exp,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.sameSite(),
	})
}

func (h *Handler) expireCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.sameSite(),
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

// accessToken prefers the cookie and falls back to Authorization: Bearer.
func (h *Handler) accessToken(r *http.Request) string {
	if v := cookieValue(r, h.cfg.AccessCookieName); v != "" {
		return v
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}
