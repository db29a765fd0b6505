package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"taskflow/cmd/internal/metrics"
)

// Loader reads the authoritative value for a principal.
type Loader[T any] func(ctx context.Context, principalID string) (T, error)

type options struct {
	log     *slog.Logger
	metrics *metrics.Metrics
}

// Option customizes a ReadThrough.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// ReadThrough caches JSON-encoded values of T keyed by principal id.
type ReadThrough[T any] struct {
	backend Backend
	load    Loader[T]
	prefix  string
	ttl     time.Duration
	opts    options

	mu   sync.Mutex
	keys map[string]*keyState
}

// keyState orders a key's stores against its invalidations. It lives only
// while a Get or Invalidate holds it; a fresh state is safe because no load
// can be in flight for an unreferenced key.
type keyState struct {
	mu   sync.Mutex
	gen  uint64
	refs int
}

// NewReadThrough builds a cache whose keys are prefix + ":" + principalID.
func NewReadThrough[T any](backend Backend, prefix string, ttl time.Duration, load Loader[T], opts ...Option) *ReadThrough[T] {
	o := options{log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &ReadThrough[T]{
		backend: backend,
		load:    load,
		prefix:  prefix,
		ttl:     ttl,
		opts:    o,
		keys:    make(map[string]*keyState),
	}
}

// Key returns the backend key for principalID.
func (r *ReadThrough[T]) Key(principalID string) string {
	return r.prefix + ":" + principalID
}

// Get returns the cached value or loads, stores and returns it. Backend and
// decode failures are logged and served from the loader; only loader errors
// reach the caller.
func (r *ReadThrough[T]) Get(ctx context.Context, principalID string) (T, error) {
	key := r.Key(principalID)

	raw, err := r.backend.Get(ctx, key)
	switch {
	case err == nil:
		var v T
		derr := json.Unmarshal(raw, &v)
		if derr == nil {
			r.opts.metrics.CacheLookup("hit")
			return v, nil
		}
		r.opts.log.Warn("cache.decode.fail", "key", key, "err", derr)
		r.opts.metrics.CacheLookup("error")
	case errors.Is(err, ErrMiss):
		r.opts.metrics.CacheLookup("miss")
	default:
		r.opts.log.Warn("cache.get.fail", "key", key, "err", err)
		r.opts.metrics.CacheLookup("error")
	}

	st := r.acquire(key)
	defer r.release(key, st)
	st.mu.Lock()
	gen := st.gen
	st.mu.Unlock()

	v, err := r.load(ctx, principalID)
	if err != nil {
		var zero T
		return zero, err
	}

	r.store(ctx, st, gen, key, v)
	return v, nil
}

// store writes v unless key was invalidated after the load began.
func (r *ReadThrough[T]) store(ctx context.Context, st *keyState, gen uint64, key string, v T) {
	raw, err := json.Marshal(v)
	if err != nil {
		r.opts.log.Warn("cache.encode.fail", "key", key, "err", err)
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.gen != gen {
		return
	}
	if err := r.backend.Set(ctx, key, raw, r.ttl); err != nil {
		r.opts.log.Warn("cache.set.fail", "key", key, "err", err)
	}
}

// Invalidate deletes the principal's entry. The error wraps
// ErrStoreUnavailable; the entry may then live until its TTL lapses.
func (r *ReadThrough[T]) Invalidate(ctx context.Context, principalID string) error {
	key := r.Key(principalID)
	st := r.acquire(key)
	defer r.release(key, st)

	st.mu.Lock()
	defer st.mu.Unlock()
	st.gen++
	if err := r.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrStoreUnavailable, key, err)
	}
	return nil
}

func (r *ReadThrough[T]) acquire(key string) *keyState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.keys[key]
	if st == nil {
		st = &keyState{}
		r.keys[key] = st
	}
	st.refs++
	return st
}

func (r *ReadThrough[T]) release(key string, st *keyState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st.refs--
	if st.refs == 0 {
		delete(r.keys, key)
	}
}

// tracked is the number of keys with a Get or Invalidate in progress.
func (r *ReadThrough[T]) tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}
