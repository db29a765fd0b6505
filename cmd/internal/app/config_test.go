package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TASKFLOW_PASETO_V4_SECRET_KEY_HEX", paseto.NewV4AsymmetricSecretKey().ExportHex())
	t.Setenv("TASKFLOW_AUTH_REFRESH_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, CacheMemory, cfg.CacheDriver)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, time.Hour, cfg.Session.AccessTokenTTL)
	assert.Equal(t, "accessToken", cfg.Auth.AccessCookieName)
	assert.Equal(t, uint32(64*1024), cfg.Passwords.Params.MemoryKiB)
	assert.False(t, cfg.Google.Enabled())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	setRequiredEnv(t)
	t.Setenv("TASKFLOW_STORE_DRIVER", "bolt")
	t.Setenv("TASKFLOW_BOLT_PATH", "/tmp/tf.db")
	t.Setenv("TASKFLOW_CACHE_DRIVER", "redis")
	t.Setenv("TASKFLOW_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TASKFLOW_CACHE_TTL", "30s")
	t.Setenv("TASKFLOW_CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("TASKFLOW_AUTH_ACCESS_TTL", "15m")
	t.Setenv("TASKFLOW_WS_ALLOWED_ORIGINS", "https://a.example")
	t.Setenv("TASKFLOW_GOOGLE_CLIENT_ID", "client")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StoreBolt, cfg.StoreDriver)
	assert.Equal(t, "/tmp/tf.db", cfg.BoltPath)
	assert.Equal(t, CacheRedis, cfg.CacheDriver)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 15*time.Minute, cfg.Session.AccessTokenTTL)
	assert.Equal(t, []string{"https://a.example"}, cfg.WS.AllowedOrigins)
	assert.True(t, cfg.Google.Enabled())
}

func TestLoadConfig_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	setRequiredEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TASKFLOW_HTTP_ADDR=127.0.0.1:9999\n"), 0o600))
	// Registers cleanup; godotenv only fills variables that are unset.
	t.Setenv("TASKFLOW_HTTP_ADDR", "")
	require.NoError(t, os.Unsetenv("TASKFLOW_HTTP_ADDR"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.HTTPAddr)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, testConfig().Validate())

	cases := map[string]func(*Config){
		"unknown store":        func(c *Config) { c.StoreDriver = "sqlite" },
		"postgres without url": func(c *Config) { c.StoreDriver = StorePostgres },
		"bolt without path":    func(c *Config) { c.StoreDriver = StoreBolt; c.BoltPath = "" },
		"unknown cache":        func(c *Config) { c.CacheDriver = "memcached" },
		"redis without url":    func(c *Config) { c.CacheDriver = CacheRedis },
		"zero cache ttl":       func(c *Config) { c.CacheTTL = 0 },
		"missing paseto key":   func(c *Config) { c.Session.PasetoV4SecretKeyHex = "" },
		"bad cookie policy":    func(c *Config) { c.Auth.CookieSecure = false; c.Auth.CookieSameSite = "none" },
		"weak argon2":          func(c *Config) { c.Passwords.Params.MemoryKiB = 1024 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewTokenHasher(t *testing.T) {
	cfg := testConfig()
	h, err := newTokenHasher(cfg)
	require.NoError(t, err)
	assert.False(t, h.HMAC())

	cfg.RequireTokenHMAC = true
	_, err = newTokenHasher(cfg)
	assert.ErrorContains(t, err, "missing")

	cfg.TokenHMACKey = "short"
	_, err = newTokenHasher(cfg)
	assert.ErrorContains(t, err, "too short")

	cfg.TokenHMACKey = "0123456789abcdef0123456789abcdef"
	h, err = newTokenHasher(cfg)
	require.NoError(t, err)
	assert.True(t, h.HMAC())
}
