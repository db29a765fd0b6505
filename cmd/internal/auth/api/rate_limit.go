package api

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"taskflow/cmd/internal/httpx"
)

// ipLimiter keeps one token bucket per client IP. Idle buckets age out of
// the LRU, so memory is bounded by the client cap.
type ipLimiter struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
	every   rate.Limit
	burst   int
}

func newIPLimiter(perMinute, burst, clients int, idle time.Duration) *ipLimiter {
	return &ipLimiter{
		buckets: expirable.NewLRU[string, *rate.Limiter](clients, nil, idle),
		every:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
	}
}

// reserve reports whether key may proceed now, or how long it must wait.
func (l *ipLimiter) reserve(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	lim, ok := l.buckets.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.buckets.Add(key, lim)
	}
	l.mu.Unlock()

	if lim.AllowN(now, 1) {
		return true, 0
	}
	res := lim.ReserveN(now, 1)
	wait := res.DelayFrom(now)
	res.CancelAt(now)
	return false, wait
}

// rateLimited guards next with the per-IP limiter.
func (h *Handler) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r, h.cfg.TrustProxy)
		if key == "" {
			key = "unknown"
		}
		ok, wait := h.limiter.reserve(key, h.now())
		if !ok {
			h.audit(r, "auth.rate_limited", "", "retry_after_s", int64(wait.Seconds()))
			writeRateLimited(w, wait)
			return
		}
		next(w, r)
	}
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64(math.Ceil(retryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
