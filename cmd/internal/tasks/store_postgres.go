package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists tasks in <schema>.tasks. The pool is owned by the
// caller.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

type PostgresOption func(*postgresOptions)

type postgresOptions struct {
	schema string
}

// WithSchema overrides the default "taskflow" schema.
func WithSchema(schema string) PostgresOption {
	return func(o *postgresOptions) { o.schema = strings.TrimSpace(schema) }
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("tasks: nil pool")
	}
	o := postgresOptions{schema: "taskflow"}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.schema == "" {
		return nil, fmt.Errorf("tasks: empty schema")
	}
	return &PostgresStore{
		pool:  pool,
		table: pgx.Identifier{o.schema, "tasks"}.Sanitize(),
	}, nil
}

const taskColumns = `id, principal_id, title, description, priority, status, due_date, created_at, updated_at`

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(
		&t.ID, &t.PrincipalID, &t.Title, &t.Description,
		&t.Priority, &t.Status, &t.DueDate,
		&t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func (s *PostgresStore) Create(ctx context.Context, t Task) (Task, error) {
	return scanTask(s.pool.QueryRow(ctx,
		`INSERT INTO `+s.table+` (`+taskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+taskColumns,
		t.ID, t.PrincipalID, t.Title, t.Description,
		string(t.Priority), string(t.Status), t.DueDate,
		t.CreatedAt, t.UpdatedAt,
	))
}

func (s *PostgresStore) List(ctx context.Context, principalID string) ([]Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM `+s.table+`
		 WHERE principal_id = $1
		 ORDER BY created_at, id`,
		strings.TrimSpace(principalID),
	)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Task, error) {
		return scanTask(row)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Task{}
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, principalID, id string) (Task, error) {
	const op = "tasks.Get"
	principalID, id, err := ownerArgs(op, principalID, id)
	if err != nil {
		return Task{}, err
	}
	t, err := scanTask(s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM `+s.table+` WHERE id = $1 AND principal_id = $2`,
		id, principalID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, notFound(op)
	}
	return t, err
}

func (s *PostgresStore) Update(ctx context.Context, t Task) (Task, error) {
	const op = "tasks.Update"
	out, err := scanTask(s.pool.QueryRow(ctx,
		`UPDATE `+s.table+`
		    SET title = $3, description = $4, priority = $5, status = $6,
		        due_date = $7, updated_at = $8
		  WHERE id = $1 AND principal_id = $2
		 RETURNING `+taskColumns,
		t.ID, t.PrincipalID, t.Title, t.Description,
		string(t.Priority), string(t.Status), t.DueDate, t.UpdatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, notFound(op)
	}
	return out, err
}

func (s *PostgresStore) Delete(ctx context.Context, principalID, id string) error {
	const op = "tasks.Delete"
	principalID, id, err := ownerArgs(op, principalID, id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table+` WHERE id = $1 AND principal_id = $2`,
		id, principalID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(op)
	}
	return nil
}
