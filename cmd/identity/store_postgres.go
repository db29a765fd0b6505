package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskflow/cmd/identity/ids"
)

// PostgresStore implements principal persistence over PostgreSQL.
//
// The pgx pool is owned by the caller. Schema and table identifiers are
// quoted. SwapRefresh locks the principal row with SELECT ... FOR UPDATE so
// concurrent rotations across processes serialize on the row.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultSchema is the schema the migrations create.
const DefaultSchema = "taskflow"

// WithSchema sets the Postgres schema (default "taskflow").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const principalColumns = `id, email, email_norm, display_name, password_hash, external_id, refresh_token_hash, created_at, updated_at`

func scanPrincipal(row pgx.Row) (Principal, error) {
	var p Principal
	err := row.Scan(
		&p.ID, &p.Email, &p.EmailNorm, &p.DisplayName,
		&p.PasswordHash, &p.ExternalID, &p.RefreshTokenHash,
		&p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (s *PostgresStore) CreatePrincipal(ctx context.Context, in CreatePrincipalInput) (Principal, error) {
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

	p, err := scanPrincipal(s.pool.QueryRow(ctx,
		`INSERT INTO `+s.table()+` (
		     id, email, email_norm, display_name, password_hash, external_id, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 RETURNING `+principalColumns,
		id, in.Email, emailNorm, in.DisplayName, in.PasswordHash, in.ExternalID, in.Now,
	))
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Principal{}, ConflictError{Op: op, Field: field}
		}
		return Principal{}, err
	}
	return p, nil
}

func (s *PostgresStore) GetPrincipal(ctx context.Context, id string) (Principal, error) {
	return s.getBy(ctx, "identity.GetPrincipal", "id", strings.TrimSpace(id))
}

func (s *PostgresStore) GetPrincipalByEmail(ctx context.Context, email string) (Principal, error) {
	return s.getBy(ctx, "identity.GetPrincipalByEmail", "email_norm", NormalizeEmail(email))
}

func (s *PostgresStore) GetPrincipalByExternalID(ctx context.Context, externalID string) (Principal, error) {
	return s.getBy(ctx, "identity.GetPrincipalByExternalID", "external_id", strings.TrimSpace(externalID))
}

// getBy loads one principal by a unique column. column is always a constant.
func (s *PostgresStore) getBy(ctx context.Context, op, column, value string) (Principal, error) {
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	if value == "" {
		return Principal{}, principalNotFound(op)
	}
	p, err := scanPrincipal(s.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM `+s.table()+` WHERE `+column+` = $1`,
		value,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, principalNotFound(op)
		}
		return Principal{}, err
	}
	return p, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, in UpdateProfileInput) (Principal, error) {
	const op = "identity.UpdateProfile"
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	in, err := prepareUpdate(op, in)
	if err != nil {
		return Principal{}, err
	}

	var emailNorm *string
	if in.Email != nil {
		n := NormalizeEmail(*in.Email)
		emailNorm = &n
	}

	p, err := scanPrincipal(s.pool.QueryRow(ctx,
		`UPDATE `+s.table()+`
		    SET email = COALESCE($2, email),
		        email_norm = COALESCE($3, email_norm),
		        display_name = COALESCE($4, display_name),
		        updated_at = $5
		  WHERE id = $1
		 RETURNING `+principalColumns,
		in.PrincipalID, in.Email, emailNorm, in.DisplayName, in.Now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, principalNotFound(op)
		}
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Principal{}, ConflictError{Op: op, Field: field}
		}
		return Principal{}, err
	}
	return p, nil
}

func (s *PostgresStore) ReplaceRefresh(ctx context.Context, principalID, hash string, now time.Time) error {
	const op = "identity.ReplaceRefresh"
	if err := checkSlotArgs(op, principalID, hash); err != nil {
		return err
	}
	return s.execSlot(ctx, op,
		`UPDATE `+s.table()+` SET refresh_token_hash = $2, updated_at = $3 WHERE id = $1`,
		principalID, hash, now,
	)
}

func (s *PostgresStore) RevokeRefresh(ctx context.Context, principalID string, now time.Time) error {
	const op = "identity.RevokeRefresh"
	if err := checkSlotArgs(op, principalID); err != nil {
		return err
	}
	return s.execSlot(ctx, op,
		`UPDATE `+s.table()+` SET refresh_token_hash = NULL, updated_at = $2 WHERE id = $1`,
		principalID, now,
	)
}

func (s *PostgresStore) execSlot(ctx context.Context, op, sql string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ct, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return principalNotFound(op)
	}
	return nil
}

func (s *PostgresStore) CurrentRefresh(ctx context.Context, principalID string) (string, bool, error) {
	const op = "identity.CurrentRefresh"
	if err := checkSlotArgs(op, principalID); err != nil {
		return "", false, err
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	var slot *string
	err := s.pool.QueryRow(ctx,
		`SELECT refresh_token_hash FROM `+s.table()+` WHERE id = $1`,
		principalID,
	).Scan(&slot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, principalNotFound(op)
		}
		return "", false, err
	}
	if slot == nil {
		return "", false, nil
	}
	return *slot, true, nil
}

func (s *PostgresStore) SwapRefresh(ctx context.Context, principalID, expected, next string, now time.Time) error {
	const op = "identity.SwapRefresh"
	if err := checkSlotArgs(op, principalID, expected, next); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var slot *string
	err = tx.QueryRow(ctx,
		`SELECT refresh_token_hash FROM `+s.table()+` WHERE id = $1 FOR UPDATE`,
		principalID,
	).Scan(&slot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return principalNotFound(op)
		}
		return err
	}
	if slot == nil || !ctEqHex64(*slot, expected) {
		return staleSwap()
	}

	if _, err := tx.Exec(ctx,
		`UPDATE `+s.table()+` SET refresh_token_hash = $2, updated_at = $3 WHERE id = $1`,
		principalID, next, now,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) table() string { return pgIdent(s.schema, "principals") }

// ctEqHex64 compares two 64-char hex digests in constant time. Any other
// length never matches.
func ctEqHex64(a, b string) bool {
	if len(a) != 64 || len(b) != 64 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_principals_email_norm", strings.Contains(c, "email"):
		return "email", true
	case c == "uq_principals_external_id", strings.Contains(c, "external"):
		return "external_id", true
	default:
		return "unique", true
	}
}
