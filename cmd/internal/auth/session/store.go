package session

import (
	"context"
	"time"

	"taskflow/cmd/identity"
)

// PrincipalReader resolves the principal named by a credential.
type PrincipalReader interface {
	GetPrincipal(ctx context.Context, id string) (identity.Principal, error)
}

// Store is the principal store as seen by the session lifecycle: principal
// lookup plus the single refresh slot. identity.MemoryStore, BoltStore and
// PostgresStore implement it.
type Store interface {
	PrincipalReader

	ReplaceRefresh(ctx context.Context, principalID, hash string, now time.Time) error
	CurrentRefresh(ctx context.Context, principalID string) (hash string, ok bool, err error)
	SwapRefresh(ctx context.Context, principalID, expected, next string, now time.Time) error
	RevokeRefresh(ctx context.Context, principalID string, now time.Time) error
}
