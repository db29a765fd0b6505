package app

import (
	"strings"

	paseto "aidanwoods.dev/go-paseto"

	"taskflow/cmd/internal/auth/session"
)

// testConfig is a memory-backed config that browsers would accept over
// plain HTTP.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	cfg.Session.RefreshSecret = strings.Repeat("s", session.MinRefreshSecretBytes)
	cfg.Auth.CookieSecure = false
	cfg.Auth.CookieSameSite = "lax"
	cfg.Passwords.Params.MemoryKiB = 8 * 1024
	cfg.Passwords.Params.Iterations = 1
	cfg.Passwords.Params.Parallelism = 1
	cfg.WS.AllowedOrigins = nil
	return cfg
}
