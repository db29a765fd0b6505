package session

import "time"

// Identity is what a verified access credential asserts.
type Identity struct {
	PrincipalID string
	Email       string
}

// Pair is a freshly minted access/refresh credential pair.
type Pair struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// Issuer mints credential pairs. It has no side effects: persisting the
// refresh digest is the caller's job.
type Issuer struct {
	access  *accessCodec
	refresh *refreshCodec
}

// NewIssuer parses the signing keys. Any misconfiguration returns an error
// wrapping ErrConfig and is fatal at startup.
func NewIssuer(cfg Config) (*Issuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	access, err := newAccessCodec(cfg)
	if err != nil {
		return nil, err
	}
	return &Issuer{access: access, refresh: newRefreshCodec(cfg)}, nil
}

// Issue mints a pair for id. Timestamps are truncated to whole seconds, the
// precision both credential formats encode.
func (i *Issuer) Issue(id Identity, now time.Time) (Pair, error) {
	now = now.UTC().Truncate(time.Second)

	access, accessExp := i.access.issue(id, now)
	refresh, refreshExp, err := i.refresh.issue(id.PrincipalID, now)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: refresh,
		RefreshExp:   refreshExp,
	}, nil
}

// PublicKeyHex exports the access verification key.
func (i *Issuer) PublicKeyHex() string { return i.access.publicKeyHex() }
