package tasks

import (
	"context"
	"strings"
)

// Store persists tasks. Every method is scoped to principalID; tasks owned by
// another principal are ErrNotFound. List returns tasks oldest first.
type Store interface {
	Create(ctx context.Context, t Task) (Task, error)
	List(ctx context.Context, principalID string) ([]Task, error)
	Get(ctx context.Context, principalID, id string) (Task, error)
	Update(ctx context.Context, t Task) (Task, error)
	Delete(ctx context.Context, principalID, id string) error
}

func ownerArgs(op, principalID, id string) (string, string, error) {
	principalID = strings.TrimSpace(principalID)
	id = strings.TrimSpace(id)
	if principalID == "" || id == "" {
		return "", "", notFound(op)
	}
	return principalID, id, nil
}
