package session

import (
	"context"
	"strings"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/stretchr/testify/require"

	"taskflow/cmd/identity"
	"taskflow/cmd/security/token"
)

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	cfg.RefreshSecret = strings.Repeat("r", MinRefreshSecretBytes)
	return cfg
}

func newTestService(t *testing.T, store Store, mutate ...func(*Config)) *Service {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	svc, err := NewService(cfg, store, token.Hasher{})
	require.NoError(t, err)
	return svc
}

func createPrincipal(t *testing.T, store *identity.MemoryStore, email string) identity.Principal {
	t.Helper()
	pw := "$argon2id$placeholder"
	p, err := store.CreatePrincipal(context.Background(), identity.CreatePrincipalInput{
		Email:        email,
		DisplayName:  "Test User",
		PasswordHash: &pw,
		Now:          t0,
	})
	require.NoError(t, err)
	return p
}

// faultyStore wraps a Store and lets a test inject failures or hooks.
type faultyStore struct {
	Store
	getErr      error
	currentErr  error
	onCurrent   func()
	swapErr     error
	revokeCalls int
}

func (f *faultyStore) GetPrincipal(ctx context.Context, id string) (identity.Principal, error) {
	if f.getErr != nil {
		return identity.Principal{}, f.getErr
	}
	return f.Store.GetPrincipal(ctx, id)
}

func (f *faultyStore) CurrentRefresh(ctx context.Context, id string) (string, bool, error) {
	if f.onCurrent != nil {
		f.onCurrent()
	}
	if f.currentErr != nil {
		return "", false, f.currentErr
	}
	return f.Store.CurrentRefresh(ctx, id)
}

func (f *faultyStore) SwapRefresh(ctx context.Context, id, expected, next string, now time.Time) error {
	if f.swapErr != nil {
		return f.swapErr
	}
	return f.Store.SwapRefresh(ctx, id, expected, next, now)
}

func (f *faultyStore) RevokeRefresh(ctx context.Context, id string, now time.Time) error {
	f.revokeCalls++
	return f.Store.RevokeRefresh(ctx, id, now)
}
