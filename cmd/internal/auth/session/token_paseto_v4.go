package session

import (
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

const (
	typAccess  = "access"
	typRefresh = "refresh"
)

// accessCodec signs and verifies PASETO v4.public access credentials.
// Verification uses the public key only.
type accessCodec struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

func newAccessCodec(cfg Config) (*accessCodec, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
	if err != nil {
		return nil, ErrConfig
	}
	return &accessCodec{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		secret:    secret,
		public:    secret.Public(),
	}, nil
}

// issue signs an access credential. now must already be truncated to the
// second, the precision of the encoded timestamps.
func (c *accessCodec) issue(id Identity, now time.Time) (string, time.Time) {
	exp := now.Add(c.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(c.issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	tok.SetString("uid", id.PrincipalID)
	tok.SetString("email", id.Email)
	tok.SetString("typ", typAccess)

	return tok.V4Sign(c.secret, nil), exp
}

// verify checks signature, issuer, type and time claims. It returns
// ErrCredentialExpired when now >= exp and ErrCredentialInvalid for anything
// else wrong with the token.
func (c *accessCodec) verify(token string, now time.Time) (Identity, error) {
	// Expiry is checked below against the caller's clock, not the parser's.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(c.issuer))

	parsed, err := p.ParseV4Public(c.public, token, nil)
	if err != nil {
		return Identity{}, ErrCredentialInvalid
	}

	if typ, err := parsed.GetString("typ"); err != nil || typ != typAccess {
		return Identity{}, ErrCredentialInvalid
	}
	uid, err := parsed.GetString("uid")
	if err != nil || uid == "" {
		return Identity{}, ErrCredentialInvalid
	}
	email, _ := parsed.GetString("email")

	exp, err := parsed.GetExpiration()
	if err != nil {
		return Identity{}, ErrCredentialInvalid
	}
	if nbf, err := parsed.GetNotBefore(); err == nil && now.Add(c.clockSkew).Before(nbf) {
		return Identity{}, ErrCredentialInvalid
	}
	if !now.Before(exp) {
		return Identity{}, ErrCredentialExpired
	}

	return Identity{PrincipalID: uid, Email: email}, nil
}

func (c *accessCodec) publicKeyHex() string { return c.public.ExportHex() }
