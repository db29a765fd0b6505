package password

import (
	"fmt"
	"math"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// Argon2idParams controls Argon2id hashing cost. MemoryKiB is in KiB as
// argon2.IDKey expects.
type Argon2idParams struct {
	MemoryKiB   uint32 `env:"ARGON2_MEMORY_KIB"`
	Iterations  uint32 `env:"ARGON2_ITERATIONS"`
	Parallelism uint32 `env:"ARGON2_PARALLELISM"`
	SaltLength  uint32 `env:"ARGON2_SALT_LEN"`
	KeyLength   uint32 `env:"ARGON2_KEY_LEN"`
}

// Policy bounds accepted passwords.
type Policy struct {
	MinLength      int  `env:"PASSWORD_MIN_LEN"`
	MaxLength      int  `env:"PASSWORD_MAX_LEN"`
	RejectVeryWeak bool `env:"PASSWORD_REJECT_VERY_WEAK"`
}

type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the interactive-login baseline.
func DefaultConfig() Config {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint32(threads), // #nosec G115 -- clamped to [1..4]
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 8,
			MaxLength: 256,
		},
	}
}

// FromEnv overlays TASKFLOW_PASSWORD_* and TASKFLOW_ARGON2_* variables on
// DefaultConfig and checks every value against sane bounds.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "TASKFLOW_"}); err != nil {
		return Config{}, fmt.Errorf("password config: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Check bounds every parameter the way FromEnv does.
func (c Config) Check() error {
	checks := []struct {
		name     string
		val      uint64
		min, max uint64
	}{
		{"TASKFLOW_PASSWORD_MIN_LEN", uint64(max(c.Policy.MinLength, 0)), 1, 1024},
		{"TASKFLOW_PASSWORD_MAX_LEN", uint64(max(c.Policy.MaxLength, 0)), 1, 4096},
		{"TASKFLOW_ARGON2_MEMORY_KIB", uint64(c.Params.MemoryKiB), 8 * 1024, 1024 * 1024},
		{"TASKFLOW_ARGON2_ITERATIONS", uint64(c.Params.Iterations), 1, 20},
		{"TASKFLOW_ARGON2_PARALLELISM", uint64(c.Params.Parallelism), 1, math.MaxUint8},
		{"TASKFLOW_ARGON2_SALT_LEN", uint64(c.Params.SaltLength), 8, 64},
		{"TASKFLOW_ARGON2_KEY_LEN", uint64(c.Params.KeyLength), 16, 64},
	}
	for _, ch := range checks {
		if ch.val < ch.min || ch.val > ch.max {
			return fmt.Errorf("%s: out of range [%d..%d]", ch.name, ch.min, ch.max)
		}
	}
	if c.Policy.MinLength > c.Policy.MaxLength {
		return fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			c.Policy.MinLength,
			c.Policy.MaxLength,
		)
	}
	return nil
}
