package identity

import (
	"context"
	"strings"
	"time"
)

// Principal is the account identity that owns tasks and session state.
//
// RefreshTokenHash is the single active refresh slot. It holds the digest of
// the only refresh credential that may currently rotate, or nil after logout.
type Principal struct {
	ID          string
	Email       string
	EmailNorm   string
	DisplayName string

	// PasswordHash is an Argon2id PHC string. Federated principals carry a
	// random placeholder.
	PasswordHash *string
	// ExternalID is the federated provider subject, when any.
	ExternalID *string

	RefreshTokenHash *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreatePrincipalInput describes a new principal. The password, when any, is
// already hashed by the caller.
type CreatePrincipalInput struct {
	Email        string
	DisplayName  string
	PasswordHash *string
	ExternalID   *string
	Now          time.Time
}

// UpdateProfileInput changes the mutable profile fields. Nil fields are left
// as they are.
type UpdateProfileInput struct {
	PrincipalID string
	Email       *string
	DisplayName *string
	Now         time.Time
}

// Store is the principal persistence boundary.
//
// Refresh slot contract:
//   - ReplaceRefresh overwrites the slot unconditionally (login).
//   - CurrentRefresh returns ok=false when the slot is empty.
//   - SwapRefresh replaces the slot only if it still equals expected and
//     returns ErrStale otherwise. It is the rotation commit point.
//   - RevokeRefresh clears the slot (logout). Clearing an empty slot is not an error.
//
// All slot operations return a NotFoundError when the principal is missing.
type Store interface {
	CreatePrincipal(ctx context.Context, in CreatePrincipalInput) (Principal, error)
	GetPrincipal(ctx context.Context, id string) (Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (Principal, error)
	GetPrincipalByExternalID(ctx context.Context, externalID string) (Principal, error)
	UpdateProfile(ctx context.Context, in UpdateProfileInput) (Principal, error)

	ReplaceRefresh(ctx context.Context, principalID, hash string, now time.Time) error
	CurrentRefresh(ctx context.Context, principalID string) (hash string, ok bool, err error)
	SwapRefresh(ctx context.Context, principalID, expected, next string, now time.Time) error
	RevokeRefresh(ctx context.Context, principalID string, now time.Time) error
}

// prepareCreate validates and normalizes a create request shared by all stores.
func prepareCreate(op string, in CreatePrincipalInput) (CreatePrincipalInput, string, error) {
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" {
		return in, "", invalid(op, "email is required")
	}
	if !strings.Contains(in.Email, "@") {
		return in, "", invalid(op, "email is malformed")
	}
	in.DisplayName = NormalizeDisplayName(in.DisplayName)
	if in.DisplayName == "" {
		return in, "", invalid(op, "display name is required")
	}
	in.PasswordHash = trimPtr(in.PasswordHash)
	in.ExternalID = trimPtr(in.ExternalID)
	if in.PasswordHash == nil && in.ExternalID == nil {
		return in, "", invalid(op, "password hash or external id is required")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, NormalizeEmail(in.Email), nil
}

// prepareUpdate validates a profile update shared by all stores.
func prepareUpdate(op string, in UpdateProfileInput) (UpdateProfileInput, error) {
	if strings.TrimSpace(in.PrincipalID) == "" {
		return in, invalid(op, "missing principal id")
	}
	if in.Email != nil {
		e := strings.TrimSpace(*in.Email)
		if e == "" || !strings.Contains(e, "@") {
			return in, invalid(op, "email is malformed")
		}
		in.Email = &e
	}
	if in.DisplayName != nil {
		d := NormalizeDisplayName(*in.DisplayName)
		if d == "" {
			return in, invalid(op, "display name is empty")
		}
		in.DisplayName = &d
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}

func checkSlotArgs(op, principalID string, hashes ...string) error {
	if strings.TrimSpace(principalID) == "" {
		return invalid(op, "missing principal id")
	}
	for _, h := range hashes {
		if strings.TrimSpace(h) == "" {
			return invalid(op, "missing refresh hash")
		}
	}
	return nil
}

// trimPtr trims a string pointer, returning nil if the result is empty.
func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := *p
	return &s
}

func (p Principal) clone() Principal {
	p.PasswordHash = clonePtr(p.PasswordHash)
	p.ExternalID = clonePtr(p.ExternalID)
	p.RefreshTokenHash = clonePtr(p.RefreshTokenHash)
	return p
}
