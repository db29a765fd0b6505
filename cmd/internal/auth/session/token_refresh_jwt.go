package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskflow/cmd/identity/ids"
)

type refreshClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// refreshCodec signs and parses HS256 refresh credentials. Every credential
// carries a fresh ULID jti, so two credentials minted for the same principal
// in the same second still differ.
type refreshCodec struct {
	issuer string
	ttl    time.Duration
	secret []byte
}

func newRefreshCodec(cfg Config) *refreshCodec {
	return &refreshCodec{
		issuer: cfg.Issuer,
		ttl:    cfg.RefreshTokenTTL,
		secret: []byte(cfg.RefreshSecret),
	}
}

func (c *refreshCodec) issue(principalID string, now time.Time) (string, time.Time, error) {
	jti, err := ids.NewULID(now)
	if err != nil {
		return "", time.Time{}, err
	}
	exp := now.Add(c.ttl)

	claims := refreshClaims{
		Type: typRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// parse returns the principal id of a valid refresh credential.
func (c *refreshCodec) parse(raw string, now time.Time) (string, error) {
	var claims refreshClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrCredentialExpired
		}
		return "", ErrCredentialInvalid
	}
	if claims.Type != typRefresh || claims.Subject == "" || claims.ID == "" {
		return "", ErrCredentialInvalid
	}
	return claims.Subject, nil
}
