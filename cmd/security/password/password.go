package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Version = argon2.Version

var b64 = base64.RawStdEncoding

// Hash validates the password against the policy and returns its encoded
// Argon2id hash.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}
	return c.hash(password)
}

// Placeholder returns a well-formed hash of 32 random bytes. It is stored for
// principals that authenticate through a federated provider so the password
// column is never empty yet no password can match it.
func (c Config) Placeholder() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("placeholder: %w", err)
	}
	return c.hash(hex.EncodeToString(raw))
}

func (c Config) hash(password string) (string, error) {
	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	p := c.Params
	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, uint8(p.Parallelism), p.KeyLength) // #nosec G115 -- bounded by Check()

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version, p.MemoryKiB, p.Iterations, p.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encodedHash. A malformed or
// out-of-bounds hash yields (false, ErrInvalidHash).
func (c Config) Verify(encodedHash, password string) (bool, error) {
	h, err := decode(encodedHash)
	if err != nil {
		return false, err
	}
	if !h.within(c.Params) {
		return false, ErrInvalidHash
	}

	key := argon2.IDKey(
		[]byte(password),
		h.salt,
		h.params.Iterations,
		h.params.MemoryKiB,
		uint8(h.params.Parallelism), // #nosec G115 -- decode rejects p > 255
		h.params.KeyLength,
	)
	return subtle.ConstantTimeCompare(key, h.key) == 1, nil
}

type decodedHash struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

// within accepts hashes made with older, cheaper settings and refuses ones
// far above the configured cost.
func (h decodedHash) within(limits Argon2idParams) bool {
	p := h.params
	return p.MemoryKiB <= limits.MemoryKiB*2 &&
		p.Iterations <= limits.Iterations*2 &&
		p.Parallelism <= limits.Parallelism*2 &&
		p.SaltLength >= 8 && p.SaltLength <= 64 &&
		p.KeyLength >= 16 && p.KeyLength <= 128
}

func decode(encoded string) (decodedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return decodedHash{}, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return decodedHash{}, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return decodedHash{}, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return decodedHash{}, ErrInvalidHash
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return decodedHash{}, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return decodedHash{}, ErrInvalidHash
	}

	return decodedHash{
		params: Argon2idParams{
			MemoryKiB:   mem,
			Iterations:  it,
			Parallelism: par,
			SaltLength:  uint32(len(salt)), // #nosec G115 -- base64 segment of a bounded string
			KeyLength:   uint32(len(key)),  // #nosec G115 -- base64 segment of a bounded string
		},
		salt: salt,
		key:  key,
	}, nil
}
