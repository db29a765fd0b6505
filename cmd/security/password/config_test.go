package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.Policy, cfg.Policy)
	assert.Equal(t, def.Params.MemoryKiB, cfg.Params.MemoryKiB)
}

func TestFromEnv_Override(t *testing.T) {
	t.Setenv("TASKFLOW_PASSWORD_MIN_LEN", "10")
	t.Setenv("TASKFLOW_PASSWORD_MAX_LEN", "200")
	t.Setenv("TASKFLOW_PASSWORD_REJECT_VERY_WEAK", "true")
	t.Setenv("TASKFLOW_ARGON2_MEMORY_KIB", "32768")
	t.Setenv("TASKFLOW_ARGON2_ITERATIONS", "4")
	t.Setenv("TASKFLOW_ARGON2_PARALLELISM", "2")
	t.Setenv("TASKFLOW_ARGON2_SALT_LEN", "24")
	t.Setenv("TASKFLOW_ARGON2_KEY_LEN", "32")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, Policy{MinLength: 10, MaxLength: 200, RejectVeryWeak: true}, cfg.Policy)
	assert.Equal(t, Argon2idParams{
		MemoryKiB:   32768,
		Iterations:  4,
		Parallelism: 2,
		SaltLength:  24,
		KeyLength:   32,
	}, cfg.Params)
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"min above max":  {"TASKFLOW_PASSWORD_MIN_LEN": "20", "TASKFLOW_PASSWORD_MAX_LEN": "10"},
		"memory too low": {"TASKFLOW_ARGON2_MEMORY_KIB": "1024"},
		"not a number":   {"TASKFLOW_ARGON2_ITERATIONS": "many"},
		"bad bool":       {"TASKFLOW_PASSWORD_REJECT_VERY_WEAK": "perhaps"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
		})
	}
}
