package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndmx/upscale/internal/domain/catalog"
	"github.com/ndmx/upscale/internal/infrastructure/persistence/memory"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client), mr
}

func TestRateGuard_FiftyPerHour(t *testing.T) {
	cache, _ := newTestCache(t)
	now := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	g := NewRateGuard(cache, 50, time.Hour, func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		d, err := g.Allow(ctx, "203.0.113.7")
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i+1)
		now = now.Add(time.Second)
	}

	d, err := g.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 59*time.Minute+10*time.Second, d.RetryAfter)

	other, err := g.Allow(ctx, "198.51.100.4")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	now = time.Date(2024, 9, 1, 9, 0, 1, 0, time.UTC)
	d, err = g.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "oldest request left the window")
}

func TestLocker_SerializesHolders(t *testing.T) {
	cache, _ := newTestCache(t)
	l := NewLocker(cache, time.Second, nil)
	l.interval = time.Millisecond

	var (
		inside  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "confirm:ref_1")
			if !assert.NoError(t, err) {
				return
			}
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load())
}

func TestLocker_ReleaseKeepsForeignToken(t *testing.T) {
	cache, mr := newTestCache(t)
	l := NewLocker(cache, time.Second, nil)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// The lock expired and someone else took it.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set(LockKey("k"), "other-token"))

	unlock()
	got, err := mr.Get(LockKey("k"))
	require.NoError(t, err)
	assert.Equal(t, "other-token", got)
}

func TestLocker_ContextCancel(t *testing.T) {
	cache, _ := newTestCache(t)
	l := NewLocker(cache, time.Minute, nil)
	l.interval = time.Millisecond

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type countingRepo struct {
	catalog.Repository
	gets atomic.Int32
}

func (r *countingRepo) Get(ctx context.Context, id string) (*catalog.Course, error) {
	r.gets.Add(1)
	return r.Repository.Get(ctx, id)
}

func TestCatalogCache_ReadThrough(t *testing.T) {
	cache, _ := newTestCache(t)
	repo := &countingRepo{Repository: memory.NewStore().Courses()}
	c := NewCatalogCache(repo, cache, nil)
	ctx := context.Background()

	course := catalog.BuildCourse(catalog.DefaultSeed[0])
	require.NoError(t, c.Create(ctx, course))

	for i := 0; i < 3; i++ {
		got, err := c.Get(ctx, course.ID)
		require.NoError(t, err)
		assert.Equal(t, course.Title, got.Title)
		assert.Len(t, got.Modules, len(course.Modules))
	}
	assert.EqualValues(t, 1, repo.gets.Load())

	list, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
