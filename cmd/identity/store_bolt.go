package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"taskflow/cmd/identity/ids"
	"taskflow/cmd/security/token"
)

var (
	principalsBucket      = []byte("principals")
	principalEmailBucket  = []byte("principals_by_email")
	principalExtIDsBucket = []byte("principals_by_external_id")
)

// BoltStore persists principals in a bbolt database. Each operation runs in
// a single bolt transaction, which bolt serializes for writers. The database
// handle is owned by the caller.
type BoltStore struct {
	db *bolt.DB
}

type boltPrincipal struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	EmailNorm        string    `json:"email_norm"`
	DisplayName      string    `json:"display_name"`
	PasswordHash     *string   `json:"password_hash,omitempty"`
	ExternalID       *string   `json:"external_id,omitempty"`
	RefreshTokenHash *string   `json:"refresh_token_hash,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewBoltStore creates the principal buckets if needed.
func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	if db == nil {
		return nil, fmt.Errorf("identity: nil bolt db")
	}
	err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{principalsBucket, principalEmailBucket, principalExtIDsBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("identity: initializing bolt buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) CreatePrincipal(ctx context.Context, in CreatePrincipalInput) (Principal, error) {
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

	rec := boltPrincipal{
		ID:           id,
		Email:        in.Email,
		EmailNorm:    emailNorm,
		DisplayName:  in.DisplayName,
		PasswordHash: in.PasswordHash,
		ExternalID:   in.ExternalID,
		CreatedAt:    in.Now,
		UpdatedAt:    in.Now,
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		emails := tx.Bucket(principalEmailBucket)
		if emails.Get([]byte(emailNorm)) != nil {
			return ConflictError{Op: op, Field: "email"}
		}
		exts := tx.Bucket(principalExtIDsBucket)
		if rec.ExternalID != nil && exts.Get([]byte(*rec.ExternalID)) != nil {
			return ConflictError{Op: op, Field: "external_id"}
		}
		if err := emails.Put([]byte(emailNorm), []byte(id)); err != nil {
			return err
		}
		if rec.ExternalID != nil {
			if err := exts.Put([]byte(*rec.ExternalID), []byte(id)); err != nil {
				return err
			}
		}
		return putPrincipal(tx, rec)
	})
	if err != nil {
		return Principal{}, err
	}
	return rec.principal(), nil
}

func (s *BoltStore) GetPrincipal(ctx context.Context, id string) (Principal, error) {
	return s.view(ctx, "identity.GetPrincipal", func(tx *bolt.Tx) []byte {
		return []byte(strings.TrimSpace(id))
	})
}

func (s *BoltStore) GetPrincipalByEmail(ctx context.Context, email string) (Principal, error) {
	return s.view(ctx, "identity.GetPrincipalByEmail", func(tx *bolt.Tx) []byte {
		return tx.Bucket(principalEmailBucket).Get([]byte(NormalizeEmail(email)))
	})
}

func (s *BoltStore) GetPrincipalByExternalID(ctx context.Context, externalID string) (Principal, error) {
	return s.view(ctx, "identity.GetPrincipalByExternalID", func(tx *bolt.Tx) []byte {
		return tx.Bucket(principalExtIDsBucket).Get([]byte(strings.TrimSpace(externalID)))
	})
}

// view resolves a principal id inside a read transaction and loads the record.
func (s *BoltStore) view(ctx context.Context, op string, resolve func(*bolt.Tx) []byte) (Principal, error) {
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	var rec boltPrincipal
	err := s.db.View(func(tx *bolt.Tx) error {
		id := resolve(tx)
		if len(id) == 0 {
			return principalNotFound(op)
		}
		var err error
		rec, err = getPrincipal(tx, op, string(id))
		return err
	})
	if err != nil {
		return Principal{}, err
	}
	return rec.principal(), nil
}

func (s *BoltStore) UpdateProfile(ctx context.Context, in UpdateProfileInput) (Principal, error) {
	const op = "identity.UpdateProfile"
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	in, err := prepareUpdate(op, in)
	if err != nil {
		return Principal{}, err
	}

	var rec boltPrincipal
	err = s.db.Update(func(tx *bolt.Tx) error {
		var err error
		rec, err = getPrincipal(tx, op, in.PrincipalID)
		if err != nil {
			return err
		}
		if in.Email != nil {
			norm := NormalizeEmail(*in.Email)
			emails := tx.Bucket(principalEmailBucket)
			if owner := emails.Get([]byte(norm)); owner != nil && string(owner) != rec.ID {
				return ConflictError{Op: op, Field: "email"}
			}
			if err := emails.Delete([]byte(rec.EmailNorm)); err != nil {
				return err
			}
			if err := emails.Put([]byte(norm), []byte(rec.ID)); err != nil {
				return err
			}
			rec.Email = *in.Email
			rec.EmailNorm = norm
		}
		if in.DisplayName != nil {
			rec.DisplayName = *in.DisplayName
		}
		rec.UpdatedAt = in.Now
		return putPrincipal(tx, rec)
	})
	if err != nil {
		return Principal{}, err
	}
	return rec.principal(), nil
}

func (s *BoltStore) ReplaceRefresh(ctx context.Context, principalID, hash string, now time.Time) error {
	const op = "identity.ReplaceRefresh"
	if err := checkSlotArgs(op, principalID, hash); err != nil {
		return err
	}
	return s.updateSlot(ctx, op, principalID, func(cur *string) (*string, error) {
		return &hash, nil
	}, now)
}

func (s *BoltStore) CurrentRefresh(ctx context.Context, principalID string) (string, bool, error) {
	const op = "identity.CurrentRefresh"
	if err := checkSlotArgs(op, principalID); err != nil {
		return "", false, err
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var slot *string
	err := s.db.View(func(tx *bolt.Tx) error {
		rec, err := getPrincipal(tx, op, principalID)
		slot = rec.RefreshTokenHash
		return err
	})
	if err != nil {
		return "", false, err
	}
	if slot == nil {
		return "", false, nil
	}
	return *slot, true, nil
}

func (s *BoltStore) SwapRefresh(ctx context.Context, principalID, expected, next string, now time.Time) error {
	const op = "identity.SwapRefresh"
	if err := checkSlotArgs(op, principalID, expected, next); err != nil {
		return err
	}
	return s.updateSlot(ctx, op, principalID, func(cur *string) (*string, error) {
		if cur == nil || !token.Equal(*cur, expected) {
			return nil, staleSwap()
		}
		return &next, nil
	}, now)
}

func (s *BoltStore) RevokeRefresh(ctx context.Context, principalID string, now time.Time) error {
	const op = "identity.RevokeRefresh"
	if err := checkSlotArgs(op, principalID); err != nil {
		return err
	}
	return s.updateSlot(ctx, op, principalID, func(*string) (*string, error) {
		return nil, nil
	}, now)
}

func (s *BoltStore) updateSlot(ctx context.Context, op, principalID string, fn func(cur *string) (*string, error), now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		rec, err := getPrincipal(tx, op, principalID)
		if err != nil {
			return err
		}
		next, err := fn(rec.RefreshTokenHash)
		if err != nil {
			return err
		}
		rec.RefreshTokenHash = next
		rec.UpdatedAt = now
		return putPrincipal(tx, rec)
	})
}

func getPrincipal(tx *bolt.Tx, op, id string) (boltPrincipal, error) {
	raw := tx.Bucket(principalsBucket).Get([]byte(id))
	if raw == nil {
		return boltPrincipal{}, principalNotFound(op)
	}
	var rec boltPrincipal
	if err := json.Unmarshal(raw, &rec); err != nil {
		return boltPrincipal{}, fmt.Errorf("%s: decoding principal %s: %w", op, id, err)
	}
	return rec, nil
}

func putPrincipal(tx *bolt.Tx, rec boltPrincipal) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Bucket(principalsBucket).Put([]byte(rec.ID), raw)
}

func (r boltPrincipal) principal() Principal {
	return Principal{
		ID:               r.ID,
		Email:            r.Email,
		EmailNorm:        r.EmailNorm,
		DisplayName:      r.DisplayName,
		PasswordHash:     clonePtr(r.PasswordHash),
		ExternalID:       clonePtr(r.ExternalID),
		RefreshTokenHash: clonePtr(r.RefreshTokenHash),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}
