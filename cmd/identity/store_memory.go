package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"taskflow/cmd/identity/ids"
	"taskflow/cmd/security/token"
)

// MemoryStore keeps principals in process memory. A single mutex guards the
// maps, so every slot operation is atomic with the principal record.
type MemoryStore struct {
	mu         sync.Mutex
	byID       map[string]*Principal
	byEmail    map[string]string // email_norm -> id
	byExternal map[string]string // external_id -> id
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*Principal),
		byEmail:    make(map[string]string),
		byExternal: make(map[string]string),
	}
}

func (s *MemoryStore) CreatePrincipal(ctx context.Context, in CreatePrincipalInput) (Principal, error) {
	const op = "identity.CreatePrincipal"
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	in, emailNorm, err := prepareCreate(op, in)
	if err != nil {
		return Principal{}, err
	}
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Principal{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[emailNorm]; taken {
		return Principal{}, ConflictError{Op: op, Field: "email"}
	}
	if in.ExternalID != nil {
		if _, taken := s.byExternal[*in.ExternalID]; taken {
			return Principal{}, ConflictError{Op: op, Field: "external_id"}
		}
	}

	p := &Principal{
		ID:           id,
		Email:        in.Email,
		EmailNorm:    emailNorm,
		DisplayName:  in.DisplayName,
		PasswordHash: in.PasswordHash,
		ExternalID:   in.ExternalID,
		CreatedAt:    in.Now,
		UpdatedAt:    in.Now,
	}
	s.byID[id] = p
	s.byEmail[emailNorm] = id
	if p.ExternalID != nil {
		s.byExternal[*p.ExternalID] = id
	}
	return p.clone(), nil
}

func (s *MemoryStore) GetPrincipal(ctx context.Context, id string) (Principal, error) {
	const op = "identity.GetPrincipal"
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Principal{}, principalNotFound(op)
	}
	return p.clone(), nil
}

func (s *MemoryStore) GetPrincipalByEmail(ctx context.Context, email string) (Principal, error) {
	const op = "identity.GetPrincipalByEmail"
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return Principal{}, principalNotFound(op)
	}
	return s.byID[id].clone(), nil
}

func (s *MemoryStore) GetPrincipalByExternalID(ctx context.Context, externalID string) (Principal, error) {
	const op = "identity.GetPrincipalByExternalID"
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byExternal[strings.TrimSpace(externalID)]
	if !ok {
		return Principal{}, principalNotFound(op)
	}
	return s.byID[id].clone(), nil
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, in UpdateProfileInput) (Principal, error) {
	const op = "identity.UpdateProfile"
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	in, err := prepareUpdate(op, in)
	if err != nil {
		return Principal{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[in.PrincipalID]
	if !ok {
		return Principal{}, principalNotFound(op)
	}
	if in.Email != nil {
		norm := NormalizeEmail(*in.Email)
		if owner, taken := s.byEmail[norm]; taken && owner != p.ID {
			return Principal{}, ConflictError{Op: op, Field: "email"}
		}
		delete(s.byEmail, p.EmailNorm)
		s.byEmail[norm] = p.ID
		p.Email = *in.Email
		p.EmailNorm = norm
	}
	if in.DisplayName != nil {
		p.DisplayName = *in.DisplayName
	}
	p.UpdatedAt = in.Now
	return p.clone(), nil
}

func (s *MemoryStore) ReplaceRefresh(ctx context.Context, principalID, hash string, now time.Time) error {
	const op = "identity.ReplaceRefresh"
	if err := checkSlotArgs(op, principalID, hash); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[principalID]
	if !ok {
		return principalNotFound(op)
	}
	p.RefreshTokenHash = &hash
	p.UpdatedAt = now
	return nil
}

func (s *MemoryStore) CurrentRefresh(ctx context.Context, principalID string) (string, bool, error) {
	const op = "identity.CurrentRefresh"
	if err := checkSlotArgs(op, principalID); err != nil {
		return "", false, err
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[principalID]
	if !ok {
		return "", false, principalNotFound(op)
	}
	if p.RefreshTokenHash == nil {
		return "", false, nil
	}
	return *p.RefreshTokenHash, true, nil
}

func (s *MemoryStore) SwapRefresh(ctx context.Context, principalID, expected, next string, now time.Time) error {
	const op = "identity.SwapRefresh"
	if err := checkSlotArgs(op, principalID, expected, next); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[principalID]
	if !ok {
		return principalNotFound(op)
	}
	if p.RefreshTokenHash == nil || !token.Equal(*p.RefreshTokenHash, expected) {
		return staleSwap()
	}
	p.RefreshTokenHash = &next
	p.UpdatedAt = now
	return nil
}

func (s *MemoryStore) RevokeRefresh(ctx context.Context, principalID string, now time.Time) error {
	const op = "identity.RevokeRefresh"
	if err := checkSlotArgs(op, principalID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[principalID]
	if !ok {
		return principalNotFound(op)
	}
	p.RefreshTokenHash = nil
	p.UpdatedAt = now
	return nil
}
