package app

import (
	"errors"
	"fmt"

	"taskflow/cmd/security/token"
)

// newTokenHasher applies the refresh-digest policy. With
// TASKFLOW_REQUIRE_TOKEN_HMAC=true startup fails rather than falling back
// to plain SHA-256.
func newTokenHasher(cfg Config) (token.Hasher, error) {
	h, err := token.NewHasher(cfg.TokenHMACKey, cfg.RequireTokenHMAC)
	switch {
	case errors.Is(err, token.ErrHMACKeyMissing):
		return token.Hasher{}, errors.New("security policy: TASKFLOW_REQUIRE_TOKEN_HMAC=true but TASKFLOW_TOKEN_HMAC_KEY is missing")
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Hasher{}, fmt.Errorf("security policy: TASKFLOW_TOKEN_HMAC_KEY is too short (min %d bytes)", token.MinHMACKeyBytes)
	case err != nil:
		return token.Hasher{}, err
	}
	if cfg.RequireTokenHMAC && !h.HMAC() {
		return token.Hasher{}, errors.New("security policy: token hasher is not in HMAC mode")
	}
	return h, nil
}
