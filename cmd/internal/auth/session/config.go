package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// MinRefreshSecretBytes bounds the HS256 refresh signing secret.
const MinRefreshSecretBytes = 32

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// Issuer is the "iss" claim of both credentials.
	Issuer string `env:"AUTH_ISSUER"`

	AccessTokenTTL  time.Duration `env:"AUTH_ACCESS_TTL"`
	RefreshTokenTTL time.Duration `env:"AUTH_REFRESH_TTL"`

	// ClockSkew tolerates "nbf" slightly in the future. Expiry is never
	// relaxed: a credential is rejected from its exp instant on.
	ClockSkew time.Duration `env:"AUTH_CLOCK_SKEW"`

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key used to
	// sign access credentials.
	PasetoV4SecretKeyHex string `env:"PASETO_V4_SECRET_KEY_HEX"`

	// RefreshSecret signs refresh credentials. It is unrelated to the access
	// key so neither credential can pass for the other.
	RefreshSecret string `env:"AUTH_REFRESH_SECRET"`

	// RevokeOnReuse clears the refresh slot when a superseded refresh
	// credential is presented, ending the session everywhere.
	RevokeOnReuse bool `env:"AUTH_REVOKE_ON_REUSE"`
}

// DefaultConfig returns defaults without keys.
func DefaultConfig() Config {
	return Config{
		Issuer:          "taskflow",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		ClockSkew:       30 * time.Second,
	}
}

// LoadConfigFromEnv overlays TASKFLOW_AUTH_* and TASKFLOW_PASETO_V4_SECRET_KEY_HEX
// on DefaultConfig.
//
// Required:
//   - TASKFLOW_PASETO_V4_SECRET_KEY_HEX
//   - TASKFLOW_AUTH_REFRESH_SECRET (at least 32 bytes)
//
// Returns an error wrapping ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "TASKFLOW_"}); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants NewIssuer relies on.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Issuer) == "":
		return fmt.Errorf("%w: empty issuer", ErrConfig)
	case c.AccessTokenTTL <= 0:
		return fmt.Errorf("%w: access ttl must be positive", ErrConfig)
	case c.RefreshTokenTTL <= c.AccessTokenTTL:
		return fmt.Errorf("%w: refresh ttl must exceed access ttl", ErrConfig)
	case c.ClockSkew < 0:
		return fmt.Errorf("%w: negative clock skew", ErrConfig)
	case strings.TrimSpace(c.PasetoV4SecretKeyHex) == "":
		return fmt.Errorf("%w: missing PASETO v4 secret key", ErrConfig)
	case len(strings.TrimSpace(c.RefreshSecret)) < MinRefreshSecretBytes:
		return fmt.Errorf("%w: refresh secret shorter than %d bytes", ErrConfig, MinRefreshSecretBytes)
	}
	return nil
}
