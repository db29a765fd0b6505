package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskflow/cmd/identity"
	"taskflow/cmd/internal/metrics"
	"taskflow/cmd/security/token"
)

// maxCredentialLen bounds presented credentials before any parsing.
const maxCredentialLen = 4096

// Service runs the session lifecycle over a principal Store.
type Service struct {
	cfg      Config
	issuer   *Issuer
	verifier *Verifier
	store    Store
	hasher   token.Hasher
	locks    *keyedMutex

	log     *slog.Logger
	metrics *metrics.Metrics
}

// Option customizes a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService builds the issuer and verifier from cfg.
func NewService(cfg Config, store Store, hasher token.Hasher, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrConfig)
	}
	iss, err := NewIssuer(cfg)
	if err != nil {
		return nil, err
	}
	s := &Service{
		cfg:      cfg,
		issuer:   iss,
		verifier: NewVerifier(iss, store),
		store:    store,
		hasher:   hasher,
		locks:    newKeyedMutex(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Service) Config() Config { return s.cfg }

func (s *Service) Issuer() *Issuer { return s.issuer }

func (s *Service) Verifier() *Verifier { return s.verifier }

// VerifyAccess verifies an access credential and counts failures.
func (s *Service) VerifyAccess(ctx context.Context, tok string, now time.Time) (Identity, error) {
	id, err := s.verifier.VerifyAccess(ctx, tok, now)
	if err != nil {
		s.metrics.VerifyFailure(CodeOf(err))
	}
	return id, err
}

// Login issues a pair for p and makes its refresh credential the only one
// that may rotate. Any previous refresh credential is superseded.
func (s *Service) Login(ctx context.Context, now time.Time, p identity.Principal) (Pair, error) {
	pair, err := s.issuer.Issue(Identity{PrincipalID: p.ID, Email: p.Email}, now)
	if err != nil {
		return Pair{}, err
	}
	if err := s.store.ReplaceRefresh(ctx, p.ID, s.hasher.Hash(pair.RefreshToken), now); err != nil {
		if identity.IsNotFound(err) {
			return Pair{}, authErr(Refresh, ErrPrincipalNotFound, nil)
		}
		return Pair{}, authErr(Refresh, ErrStoreUnavailable, err)
	}
	return pair, nil
}

// Logout clears the refresh slot. A missing principal is already logged out.
func (s *Service) Logout(ctx context.Context, now time.Time, principalID string) error {
	err := s.store.RevokeRefresh(ctx, principalID, now)
	if err != nil && !identity.IsNotFound(err) {
		return authErr(Refresh, ErrStoreUnavailable, err)
	}
	return nil
}

// Rotate exchanges a refresh credential for a new pair.
//
// The presented credential must verify and its digest must equal the
// principal's refresh slot. The compare and swap run under a per-principal
// lock and on a context detached from the caller's cancellation, so a
// rotation that has started either completes or leaves the slot untouched.
// Every failure is an *AuthError with Credential == Refresh.
func (s *Service) Rotate(ctx context.Context, now time.Time, refresh string) (Pair, error) {
	pair, err := s.rotate(ctx, now, refresh)
	if err != nil {
		s.metrics.Rotation(CodeOf(err))
		return Pair{}, err
	}
	s.metrics.Rotation("ok")
	return pair, nil
}

func (s *Service) rotate(ctx context.Context, now time.Time, refresh string) (Pair, error) {
	refresh = strings.TrimSpace(refresh)
	if refresh == "" {
		return Pair{}, authErr(Refresh, ErrCredentialMissing, nil)
	}
	if len(refresh) > maxCredentialLen {
		return Pair{}, authErr(Refresh, ErrCredentialInvalid, nil)
	}

	principalID, err := s.issuer.refresh.parse(refresh, now)
	if err != nil {
		return Pair{}, authErr(Refresh, err, nil)
	}

	p, err := s.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return Pair{}, s.storeErr(err)
	}

	ctx = context.WithoutCancel(ctx)
	unlock := s.locks.lock(principalID)
	defer unlock()

	presented := s.hasher.Hash(refresh)
	current, ok, err := s.store.CurrentRefresh(ctx, principalID)
	if err != nil {
		return Pair{}, s.storeErr(err)
	}
	if !ok || !token.Equal(current, presented) {
		return Pair{}, s.superseded(ctx, now, principalID)
	}

	pair, err := s.issuer.Issue(Identity{PrincipalID: p.ID, Email: p.Email}, now)
	if err != nil {
		return Pair{}, err
	}

	err = s.store.SwapRefresh(ctx, principalID, presented, s.hasher.Hash(pair.RefreshToken), now)
	if err != nil {
		if identity.IsStale(err) {
			// Another process rotated between our compare and swap.
			return Pair{}, s.superseded(ctx, now, principalID)
		}
		return Pair{}, s.storeErr(err)
	}
	return pair, nil
}

func (s *Service) superseded(ctx context.Context, now time.Time, principalID string) error {
	if s.cfg.RevokeOnReuse {
		if err := s.store.RevokeRefresh(ctx, principalID, now); err != nil {
			s.log.Error("auth.refresh.revoke_on_reuse.fail", "principal_id", principalID, "err", err)
		} else {
			s.log.Warn("auth.refresh.reuse_revoked", "principal_id", principalID)
		}
	}
	return authErr(Refresh, ErrRefreshSuperseded, nil)
}

func (s *Service) storeErr(err error) error {
	if identity.IsNotFound(err) {
		return authErr(Refresh, ErrPrincipalNotFound, nil)
	}
	return authErr(Refresh, ErrStoreUnavailable, err)
}
