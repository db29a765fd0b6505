package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls cookie transport, limits and redirects. Fields load from
// TASKFLOW_AUTH_* and TASKFLOW_CLIENT_URL.
type Config struct {
	AccessCookieName  string `env:"AUTH_ACCESS_COOKIE_NAME" envDefault:"accessToken"`
	RefreshCookieName string `env:"AUTH_REFRESH_COOKIE_NAME" envDefault:"refreshToken"`
	StateCookieName   string `env:"AUTH_STATE_COOKIE_NAME" envDefault:"oauthState"`
	CookieDomain      string `env:"AUTH_COOKIE_DOMAIN"`
	CookieSecure      bool   `env:"AUTH_COOKIE_SECURE" envDefault:"true"`
	// CookieSameSite is one of "none", "lax", "strict" or "default".
	CookieSameSite string `env:"AUTH_COOKIE_SAMESITE" envDefault:"none"`

	MaxBodyBytes int64 `env:"AUTH_MAX_BODY_BYTES" envDefault:"1048576"`
	TrustProxy   bool  `env:"AUTH_TRUST_PROXY" envDefault:"false"`

	// Per client IP, for login, register and the federated callback.
	RateLimitPerMinute int           `env:"AUTH_RATE_PER_MINUTE" envDefault:"30"`
	RateLimitBurst     int           `env:"AUTH_RATE_BURST" envDefault:"10"`
	RateLimitClients   int           `env:"AUTH_RATE_CLIENTS" envDefault:"10000"`
	RateLimitIdle      time.Duration `env:"AUTH_RATE_IDLE" envDefault:"15m"`

	StateTTL time.Duration `env:"AUTH_STATE_TTL" envDefault:"10m"`

	// ClientURL is the browser application; federated login redirects there.
	ClientURL string `env:"CLIENT_URL" envDefault:"http://localhost:5173"`
}

func DefaultConfig() Config {
	return Config{
		AccessCookieName:   "accessToken",
		RefreshCookieName:  "refreshToken",
		StateCookieName:    "oauthState",
		CookieSecure:       true,
		CookieSameSite:     "none",
		MaxBodyBytes:       1 << 20,
		RateLimitPerMinute: 30,
		RateLimitBurst:     10,
		RateLimitClients:   10000,
		RateLimitIdle:      15 * time.Minute,
		StateTTL:           10 * time.Minute,
		ClientURL:          "http://localhost:5173",
	}
}

// LoadConfigFromEnv parses the environment over DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "TASKFLOW_"}); err != nil {
		return Config{}, fmt.Errorf("auth api config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the cookie guardrails browsers apply anyway.
func (c Config) Validate() error {
	names := []string{c.AccessCookieName, c.RefreshCookieName, c.StateCookieName}
	for i, n := range names {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("auth api config: empty cookie name")
		}
		for _, m := range names[:i] {
			if n == m {
				return fmt.Errorf("auth api config: cookie name %q used twice", n)
			}
		}
	}
	if _, ok := sameSiteModes[strings.ToLower(strings.TrimSpace(c.CookieSameSite))]; !ok {
		return fmt.Errorf("auth api config: unknown SameSite mode %q", c.CookieSameSite)
	}
	if c.sameSite() == http.SameSiteNoneMode && !c.CookieSecure {
		return fmt.Errorf("auth api config: SameSite=None requires secure cookies")
	}
	if c.RateLimitPerMinute <= 0 || c.RateLimitBurst <= 0 || c.RateLimitClients <= 0 {
		return fmt.Errorf("auth api config: rate limits must be positive")
	}
	return nil
}

var sameSiteModes = map[string]http.SameSite{
	"default": http.SameSiteDefaultMode,
	"lax":     http.SameSiteLaxMode,
	"strict":  http.SameSiteStrictMode,
	"none":    http.SameSiteNoneMode,
}

func (c Config) sameSite() http.SameSite {
	if m, ok := sameSiteModes[strings.ToLower(strings.TrimSpace(c.CookieSameSite))]; ok {
		return m
	}
	return http.SameSiteLaxMode
}
