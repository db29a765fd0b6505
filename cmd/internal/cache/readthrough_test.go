package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Title string `json:"title"`
}

// recordLoader serves a mutable system of record and counts loads.
type recordLoader struct {
	mu    sync.Mutex
	data  map[string][]item
	calls atomic.Int32
}

func (l *recordLoader) load(_ context.Context, id string) ([]item, error) {
	l.calls.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]item(nil), l.data[id]...), nil
}

func (l *recordLoader) write(id string, items ...item) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data[id] = items
}

func newLoader() *recordLoader {
	return &recordLoader{data: map[string][]item{}}
}

// flakyBackend fails the operations a test switches on.
type flakyBackend struct {
	Backend
	getErr, setErr, delErr error
	raw                    []byte
}

func (f *flakyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.raw != nil {
		return f.raw, nil
	}
	return f.Backend.Get(ctx, key)
}

func (f *flakyBackend) Set(ctx context.Context, key string, v []byte, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Backend.Set(ctx, key, v, ttl)
}

func (f *flakyBackend) Delete(ctx context.Context, key string) error {
	if f.delErr != nil {
		return f.delErr
	}
	return f.Backend.Delete(ctx, key)
}

func TestReadThrough_MissThenHit(t *testing.T) {
	l := newLoader()
	l.write("p1", item{"a"})
	rt := NewReadThrough[[]item](NewLRUBackend(16, time.Hour), "tasks", time.Hour, l.load)
	ctx := context.Background()

	got, err := rt.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []item{{"a"}}, got)

	got, err = rt.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []item{{"a"}}, got)
	assert.Equal(t, int32(1), l.calls.Load(), "second read is a hit")
	assert.Equal(t, "tasks:p1", rt.Key("p1"))
}

func TestReadThrough_InvalidateAfterWrite(t *testing.T) {
	l := newLoader()
	l.write("p1", item{"old"})
	rt := NewReadThrough[[]item](NewLRUBackend(16, time.Hour), "tasks", time.Hour, l.load)
	ctx := context.Background()

	_, err := rt.Get(ctx, "p1")
	require.NoError(t, err)

	l.write("p1", item{"old"}, item{"new"})
	require.NoError(t, rt.Invalidate(ctx, "p1"))

	got, err := rt.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestReadThrough_KeysArePerPrincipal(t *testing.T) {
	l := newLoader()
	l.write("p1", item{"mine"})
	l.write("p2", item{"theirs"})
	rt := NewReadThrough[[]item](NewLRUBackend(16, time.Hour), "tasks", time.Hour, l.load)
	ctx := context.Background()

	a, err := rt.Get(ctx, "p1")
	require.NoError(t, err)
	b, err := rt.Get(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "mine", a[0].Title)
	assert.Equal(t, "theirs", b[0].Title)

	require.NoError(t, rt.Invalidate(ctx, "p1"))
	_, err = rt.Get(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, int32(2), l.calls.Load(), "p2 stays cached")
}

func TestReadThrough_StaleLoadDoesNotRepopulate(t *testing.T) {
	l := newLoader()
	l.write("p1", item{"old"})

	started := make(chan struct{})
	release := make(chan struct{})
	var first atomic.Bool
	slow := func(ctx context.Context, id string) ([]item, error) {
		v, err := l.load(ctx, id)
		if first.CompareAndSwap(false, true) {
			close(started)
			<-release
		}
		return v, err
	}

	backend := NewLRUBackend(16, time.Hour)
	rt := NewReadThrough[[]item](backend, "tasks", time.Hour, slow)
	ctx := context.Background()

	done := make(chan []item)
	go func() {
		v, err := rt.Get(ctx, "p1")
		assert.NoError(t, err)
		done <- v
	}()

	<-started
	assert.Equal(t, 1, rt.tracked(), "the in-flight read pins its key state")
	// A write lands while the read is holding pre-write data.
	l.write("p1", item{"new"})
	require.NoError(t, rt.Invalidate(ctx, "p1"))
	close(release)

	stale := <-done
	assert.Equal(t, "old", stale[0].Title, "the in-flight read answers with what it read")
	assert.Equal(t, 0, backend.Len(), "but must not store it")

	got, err := rt.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "new", got[0].Title)
}

func TestReadThrough_KeyStateIsReleased(t *testing.T) {
	l := newLoader()
	backend := NewLRUBackend(4, time.Hour)
	rt := NewReadThrough[[]item](backend, "tasks", time.Hour, l.load)
	ctx := context.Background()

	for i := range 10_000 {
		id := fmt.Sprintf("p%d", i)
		_, err := rt.Get(ctx, id)
		require.NoError(t, err)
		if i%3 == 0 {
			require.NoError(t, rt.Invalidate(ctx, id))
		}
	}
	assert.LessOrEqual(t, backend.Len(), 4)
	assert.Zero(t, rt.tracked())

	var wg sync.WaitGroup
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i%8)
			_, _ = rt.Get(ctx, id)
			_ = rt.Invalidate(ctx, id)
		}()
	}
	wg.Wait()
	assert.Zero(t, rt.tracked())
}

func TestReadThrough_BackendFailuresFallBackToLoader(t *testing.T) {
	l := newLoader()
	l.write("p1", item{"a"})
	ctx := context.Background()

	cases := map[string]*flakyBackend{
		"get fails":    {Backend: NewLRUBackend(4, time.Hour), getErr: errors.New("conn refused")},
		"set fails":    {Backend: NewLRUBackend(4, time.Hour), setErr: errors.New("oom")},
		"garbage blob": {Backend: NewLRUBackend(4, time.Hour), raw: []byte("{not json")},
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			rt := NewReadThrough[[]item](b, "tasks", time.Hour, l.load)
			got, err := rt.Get(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, "a", got[0].Title)
		})
	}
}

func TestReadThrough_LoaderErrorSurfaces(t *testing.T) {
	boom := errors.New("db down")
	rt := NewReadThrough[[]item](NewLRUBackend(4, time.Hour), "tasks", time.Hour,
		func(context.Context, string) ([]item, error) { return nil, boom })

	_, err := rt.Get(context.Background(), "p1")
	assert.ErrorIs(t, err, boom)
}

func TestReadThrough_InvalidateErrorIsReturned(t *testing.T) {
	b := &flakyBackend{Backend: NewLRUBackend(4, time.Hour), delErr: errors.New("timeout")}
	rt := NewReadThrough[[]item](b, "tasks", time.Hour, newLoader().load)

	err := rt.Invalidate(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestLRUBackend_Expires(t *testing.T) {
	b := NewLRUBackend(4, 20*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, b.Set(ctx, "k", []byte("v"), 0))

	v, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	assert.Eventually(t, func() bool {
		_, err := b.Get(ctx, "k")
		return errors.Is(err, ErrMiss)
	}, time.Second, 5*time.Millisecond)
}
