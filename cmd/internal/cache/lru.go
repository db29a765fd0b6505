package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUBackend is an in-process backend with a size bound and a fixed TTL.
type LRUBackend struct {
	lru *expirable.LRU[string, []byte]
}

// NewLRUBackend keeps at most size entries, each for ttl. The per-call ttl
// passed to Set is ignored in favor of this one.
func NewLRUBackend(size int, ttl time.Duration) *LRUBackend {
	if size <= 0 {
		size = 1024
	}
	return &LRUBackend{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (b *LRUBackend) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := b.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (b *LRUBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.lru.Add(key, value)
	return nil
}

func (b *LRUBackend) Delete(_ context.Context, key string) error {
	b.lru.Remove(key)
	return nil
}

// Len reports the number of live entries.
func (b *LRUBackend) Len() int { return b.lru.Len() }
