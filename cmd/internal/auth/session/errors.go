package session

import (
	"errors"
	"fmt"
)

var (
	ErrCredentialMissing = errors.New("credential missing")
	ErrCredentialInvalid = errors.New("credential invalid")
	ErrCredentialExpired = errors.New("credential expired")
	ErrPrincipalNotFound = errors.New("principal not found")

	// ErrRefreshSuperseded is returned when a refresh credential no longer
	// matches the principal's refresh slot: it was rotated already, replaced
	// by a newer login, or revoked by logout.
	ErrRefreshSuperseded = errors.New("refresh credential superseded")

	// ErrStoreUnavailable wraps failures of the principal store.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// HeaderAuthError carries the AuthError code on every 401 response.
const HeaderAuthError = "X-Auth-Error"

// Codes returned by AuthError.Code.
const (
	CodeCredentialMissing = "credential_missing"
	CodeCredentialInvalid = "credential_invalid"
	CodeCredentialExpired = "credential_expired"
	CodePrincipalNotFound = "principal_not_found"
	CodeRefreshMissing    = "refresh_missing"
	CodeRefreshInvalid    = "refresh_invalid"
	CodeRefreshExpired    = "refresh_expired"
	CodeRefreshSuperseded = "refresh_superseded"
	CodeStoreUnavailable  = "store_unavailable"
)

// Credential names which credential an AuthError is about.
type Credential int

const (
	Access Credential = iota
	Refresh
)

func (c Credential) String() string {
	if c == Refresh {
		return "refresh"
	}
	return "access"
}

// AuthError is the failure type of VerifyAccess and Rotate. Kind is one of the
// sentinels above; Err optionally carries the underlying cause for logs.
type AuthError struct {
	Credential Credential
	Kind       error
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s credential: %v", e.Credential, e.Kind)
	}
	return fmt.Sprintf("%s credential: %v: %v", e.Credential, e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Kind }

// Code is the stable machine-readable code sent to clients.
func (e *AuthError) Code() string {
	switch {
	case errors.Is(e.Kind, ErrStoreUnavailable):
		return CodeStoreUnavailable
	case errors.Is(e.Kind, ErrPrincipalNotFound):
		return CodePrincipalNotFound
	}

	if e.Credential == Refresh {
		switch {
		case errors.Is(e.Kind, ErrCredentialMissing):
			return CodeRefreshMissing
		case errors.Is(e.Kind, ErrCredentialExpired):
			return CodeRefreshExpired
		case errors.Is(e.Kind, ErrRefreshSuperseded):
			return CodeRefreshSuperseded
		default:
			return CodeRefreshInvalid
		}
	}

	switch {
	case errors.Is(e.Kind, ErrCredentialMissing):
		return CodeCredentialMissing
	case errors.Is(e.Kind, ErrCredentialExpired):
		return CodeCredentialExpired
	default:
		return CodeCredentialInvalid
	}
}

// CodeOf returns the AuthError code carried by err, or "".
func CodeOf(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code()
	}
	return ""
}

func authErr(c Credential, kind error, cause error) error {
	return &AuthError{Credential: c, Kind: kind, Err: cause}
}
