package tasks

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryStore keeps tasks in process memory. It is the default store for
// development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byOwner map[string]map[string]Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byOwner: make(map[string]map[string]Task)}
}

func (s *MemoryStore) Create(ctx context.Context, t Task) (Task, error) {
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.byOwner[t.PrincipalID]
	if owned == nil {
		owned = make(map[string]Task)
		s.byOwner[t.PrincipalID] = owned
	}
	owned[t.ID] = t.clone()
	return t.clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, principalID string) ([]Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := s.byOwner[strings.TrimSpace(principalID)]
	out := make([]Task, 0, len(owned))
	for _, t := range owned {
		out = append(out, t.clone())
	}
	slices.SortFunc(out, compareCreated)
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, principalID, id string) (Task, error) {
	const op = "tasks.Get"
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}
	principalID, id, err := ownerArgs(op, principalID, id)
	if err != nil {
		return Task{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byOwner[principalID][id]
	if !ok {
		return Task{}, notFound(op)
	}
	return t.clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, t Task) (Task, error) {
	const op = "tasks.Update"
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.byOwner[t.PrincipalID]
	if _, ok := owned[t.ID]; !ok {
		return Task{}, notFound(op)
	}
	owned[t.ID] = t.clone()
	return t.clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, principalID, id string) error {
	const op = "tasks.Delete"
	if err := ctx.Err(); err != nil {
		return err
	}
	principalID, id, err := ownerArgs(op, principalID, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.byOwner[principalID]
	if _, ok := owned[id]; !ok {
		return notFound(op)
	}
	delete(owned, id)
	return nil
}

func compareCreated(a, b Task) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
