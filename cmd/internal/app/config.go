package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"taskflow/cmd/internal/auth/api"
	"taskflow/cmd/internal/auth/federated"
	"taskflow/cmd/internal/auth/session"
	"taskflow/cmd/internal/realtime"
	"taskflow/cmd/security/password"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "TASKFLOW_"

const (
	StoreMemory   = "memory"
	StoreBolt     = "bolt"
	StorePostgres = "postgres"

	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogColor  bool   `env:"LOG_COLOR" envDefault:"false"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxHeaderBytes    int           `env:"HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	// StoreDriver is memory, bolt or postgres.
	StoreDriver    string `env:"STORE_DRIVER" envDefault:"memory"`
	DatabaseURL    string `env:"DATABASE_URL"`
	DatabaseSchema string `env:"DATABASE_SCHEMA" envDefault:"taskflow"`
	DBMaxConns     int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns     int32  `env:"DB_MIN_CONNS" envDefault:"0"`
	AutoMigrate    bool   `env:"AUTO_MIGRATE" envDefault:"false"`
	BoltPath       string `env:"BOLT_PATH" envDefault:"taskflow.db"`

	// CacheDriver is memory or redis.
	CacheDriver string        `env:"CACHE_DRIVER" envDefault:"memory"`
	RedisURL    string        `env:"REDIS_URL"`
	CacheTTL    time.Duration `env:"CACHE_TTL" envDefault:"1h"`
	CacheSize   int           `env:"CACHE_SIZE" envDefault:"1024"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
	CORSMaxAgeSeconds  int      `env:"CORS_MAX_AGE_SECONDS" envDefault:"600"`

	// ReadinessRequireDB makes /readyz fail unless Postgres is configured.
	ReadinessRequireDB bool `env:"READINESS_REQUIRE_DB" envDefault:"false"`

	// RequireTokenHMAC refuses to start unless refresh digests are keyed.
	RequireTokenHMAC bool   `env:"REQUIRE_TOKEN_HMAC" envDefault:"false"`
	TokenHMACKey     string `env:"TOKEN_HMAC_KEY"`

	Session   session.Config
	Auth      api.Config
	Passwords password.Config
	Google    federated.Config
	WS        realtime.GatewayConfig
}

// DefaultConfig seeds every section with its package defaults.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:           "0.0.0.0:8080",
		LogLevel:           "info",
		LogFormat:          "json",
		ReadHeaderTimeout:  5 * time.Second,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		MaxHeaderBytes:     1 << 20,
		StoreDriver:        StoreMemory,
		DatabaseSchema:     "taskflow",
		DBMaxConns:         10,
		BoltPath:           "taskflow.db",
		CacheDriver:        CacheMemory,
		CacheTTL:           time.Hour,
		CacheSize:          1024,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
		CORSMaxAgeSeconds:  600,
		Session:            session.DefaultConfig(),
		Auth:               api.DefaultConfig(),
		Passwords:          password.DefaultConfig(),
		Google:             federated.Config{Issuer: federated.GoogleIssuer},
		WS:                 realtime.DefaultGatewayConfig(),
	}
}

// LoadConfig reads .env when present, then the TASKFLOW_* environment.
func LoadConfig() (Config, error) {
	cfg, err := ReadConfig()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// ReadConfig parses .env and the environment without validating. Commands
// that only need storage settings use it directly.
func ReadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.StoreDriver) {
	case StoreMemory:
	case StoreBolt:
		if strings.TrimSpace(c.BoltPath) == "" {
			return errors.New("TASKFLOW_BOLT_PATH is required for the bolt store")
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("TASKFLOW_DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	switch strings.ToLower(c.CacheDriver) {
	case CacheMemory:
		if c.CacheSize <= 0 {
			return errors.New("TASKFLOW_CACHE_SIZE must be positive")
		}
	case CacheRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return errors.New("TASKFLOW_REDIS_URL is required for the redis cache")
		}
	default:
		return fmt.Errorf("unknown cache driver %q", c.CacheDriver)
	}
	if c.CacheTTL <= 0 {
		return errors.New("TASKFLOW_CACHE_TTL must be positive")
	}

	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Passwords.Check()
}
