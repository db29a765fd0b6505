package api

import (
	"net/http"
	"net/netip"
	"strings"
)

// clientIP is the caller address used for rate limiting and audit lines,
// or "" when none parses. Forwarding headers count only with TrustProxy.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
			if a, err := netip.ParseAddr(strings.TrimSpace(hop)); err == nil {
				return a.Unmap().String()
			}
		}
		if a, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
			return a.Unmap().String()
		}
	}
	if ap, err := netip.ParseAddrPort(strings.TrimSpace(r.RemoteAddr)); err == nil {
		return ap.Addr().Unmap().String()
	}
	if a, err := netip.ParseAddr(strings.TrimSpace(r.RemoteAddr)); err == nil {
		return a.Unmap().String()
	}
	return ""
}
