package session

import (
	"context"
	"strings"
	"time"

	"taskflow/cmd/identity"
)

// Verifier checks access credentials. It never looks at refresh credentials.
type Verifier struct {
	access     *accessCodec
	principals PrincipalReader
}

// NewVerifier builds a Verifier sharing the issuer's access key.
func NewVerifier(iss *Issuer, principals PrincipalReader) *Verifier {
	return &Verifier{access: iss.access, principals: principals}
}

// VerifyAccess resolves token to the identity of an existing principal.
// Every failure is an *AuthError with Credential == Access.
func (v *Verifier) VerifyAccess(ctx context.Context, token string, now time.Time) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, authErr(Access, ErrCredentialMissing, nil)
	}

	id, err := v.access.verify(token, now)
	if err != nil {
		return Identity{}, authErr(Access, err, nil)
	}

	p, err := v.principals.GetPrincipal(ctx, id.PrincipalID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Identity{}, authErr(Access, ErrPrincipalNotFound, nil)
		}
		return Identity{}, authErr(Access, ErrStoreUnavailable, err)
	}
	return Identity{PrincipalID: p.ID, Email: p.Email}, nil
}
