package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskflow/cmd/identity/ids"
	"taskflow/cmd/internal/cache"
	"taskflow/cmd/internal/metrics"
)

// CachePrefix namespaces task-list cache keys: "tasks:<principalID>".
const CachePrefix = "tasks"

// Notifier learns that a principal's task list changed. The realtime hub
// implements it.
type Notifier interface {
	TasksChanged(principalID string)
}

// Service is the task CRUD surface used by the HTTP handlers.
type Service struct {
	store    Store
	list     *cache.ReadThrough[[]Task]
	notifier Notifier
	log      *slog.Logger
	metrics  *metrics.Metrics
}

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

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService fronts store with a read-through cache on backend. Entries live
// for ttl unless a write drops them first.
func NewService(store Store, backend cache.Backend, ttl time.Duration, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("tasks: nil store")
	}
	if backend == nil {
		return nil, fmt.Errorf("tasks: nil cache backend")
	}
	s := &Service{
		store: store,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.list = cache.NewReadThrough[[]Task](backend, CachePrefix, ttl, s.store.List,
		cache.WithLogger(s.log),
		cache.WithMetrics(s.metrics),
	)
	return s, nil
}

// List returns the principal's tasks, oldest first, through the cache.
func (s *Service) List(ctx context.Context, principalID string) ([]Task, error) {
	out, err := s.list.Get(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Task{}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, principalID, id string) (Task, error) {
	return s.store.Get(ctx, principalID, id)
}

func (s *Service) Create(ctx context.Context, now time.Time, principalID string, d Draft) (Task, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return Task{}, ValidationError{Field: "principalId", Msg: "owner is required"}
	}
	d = d.normalize()
	if err := d.validate(); err != nil {
		return Task{}, err
	}
	now = now.UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return Task{}, err
	}

	t, err := s.store.Create(ctx, Task{
		ID:          id,
		PrincipalID: principalID,
		Title:       d.Title,
		Description: d.Description,
		Priority:    d.Priority,
		Status:      d.Status,
		DueDate:     d.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Task{}, err
	}
	s.changed(ctx, principalID)
	return t, nil
}

func (s *Service) Update(ctx context.Context, now time.Time, principalID, id string, p Patch) (Task, error) {
	if err := p.validate(); err != nil {
		return Task{}, err
	}
	cur, err := s.store.Get(ctx, principalID, id)
	if err != nil {
		return Task{}, err
	}
	next := p.apply(cur)
	d := next.draft().normalize()
	if err := d.validate(); err != nil {
		return Task{}, err
	}
	next.Title = d.Title
	next.Description = d.Description
	next.Priority = d.Priority
	next.Status = d.Status
	next.DueDate = d.DueDate
	next.UpdatedAt = now.UTC()

	t, err := s.store.Update(ctx, next)
	if err != nil {
		return Task{}, err
	}
	s.changed(ctx, cur.PrincipalID)
	return t, nil
}

func (s *Service) Delete(ctx context.Context, principalID, id string) error {
	if err := s.store.Delete(ctx, principalID, id); err != nil {
		return err
	}
	s.changed(ctx, strings.TrimSpace(principalID))
	return nil
}

// changed drops the cached list before the write returns. A failed delete is
// logged and counted; the write itself has already succeeded.
func (s *Service) changed(ctx context.Context, principalID string) {
	if err := s.list.Invalidate(context.WithoutCancel(ctx), principalID); err != nil {
		s.log.Error("cache.invalidate.fail", "key", s.list.Key(principalID), "err", err)
		s.metrics.InvalidateFailure()
	}
	if s.notifier != nil {
		s.notifier.TasksChanged(principalID)
	}
}
