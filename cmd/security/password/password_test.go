package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap keeps argon2 fast in tests.
func cheap() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHashAndVerify(t *testing.T) {
	cfg := cheap()

	h, err := cfg.Hash("this is a strong password 123!")
	require.NoError(t, err)

	ok, err := cfg.Verify(h, "this is a strong password 123!")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cfg.Verify(h, "wrong password")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHash_Salted(t *testing.T) {
	cfg := cheap()
	a, err := cfg.Hash("same password here")
	require.NoError(t, err)
	b, err := cfg.Hash("same password here")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerify_InvalidHash(t *testing.T) {
	cfg := cheap()
	for _, enc := range []string{
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaGhhc2hoYXNoaGFzaA",
	} {
		ok, err := cfg.Verify(enc, "whatever")
		assert.ErrorIs(t, err, ErrInvalidHash, enc)
		assert.False(t, ok)
	}
}

func TestVerify_RefusesExpensiveHash(t *testing.T) {
	strong := cheap()
	strong.Params.MemoryKiB = 64 * 1024
	h, err := strong.Hash("some password value")
	require.NoError(t, err)

	ok, err := cheap().Verify(h, "some password value")
	assert.ErrorIs(t, err, ErrInvalidHash)
	assert.False(t, ok)
}

func TestPlaceholder_MatchesNothing(t *testing.T) {
	cfg := cheap()
	h, err := cfg.Placeholder()
	require.NoError(t, err)

	ok, err := cfg.Verify(h, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidate_MinMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.MinLength = 12
	cfg.Policy.MaxLength = 16

	assert.ErrorIs(t, cfg.Validate("short"), ErrPasswordTooShort)
	assert.ErrorIs(t, cfg.Validate("this password is definitely too long"), ErrPasswordTooLong)
	assert.NoError(t, cfg.Validate("goodpassw0rd!"))
}

func TestPolicy_RejectVeryWeak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.RejectVeryWeak = true
	cfg.Policy.MinLength = 6

	for _, pw := range []string{"password", "11111111", "aaaaaaaa", "123456"} {
		assert.ErrorIs(t, cfg.Validate(pw), ErrWeakPassword, pw)
	}
	assert.NoError(t, cfg.Validate("a-very-ok-pass"))
}
