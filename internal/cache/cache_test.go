package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache[string](2, time.Minute)

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)

	c.Set(ctx, "a", "1")
	c.Set(ctx, "a", "2")
	v, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "2", v)
	assert.Equal(t, 1, c.Size())

	c.Delete(ctx, "a")
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache[int](2, time.Minute)

	c.Set(ctx, "a", 1)
	c.Set(ctx, "b", 2)
	_, _ = c.Get(ctx, "a")
	c.Set(ctx, "c", 3)

	_, ok := c.Get(ctx, "b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestLRUCache_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set(ctx, "a", 1)
	c.Set(ctx, "b", 2)
	now = now.Add(2 * time.Minute)
	c.Set(ctx, "c", 3)

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.CleanExpired(), "only b is left to sweep")
	assert.Equal(t, 1, c.Size())
}

func TestManager_SweepsRegisteredCaches(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache[int](10, time.Nanosecond)
	c.Set(ctx, "a", 1)

	var removed atomic.Int64
	m := NewManager(func(n int) { removed.Add(int64(n)) })
	m.Register(c)
	m.StartCleanup(5 * time.Millisecond)
	defer m.Stop()

	require.Eventually(t, func() bool { return removed.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, c.Size())
}

func TestRedisCache_UnreachableServerIsAMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewRedisCache[int](client, "milkman:test", time.Minute, nil)
	ctx := context.Background()

	c.Set(ctx, "a", 1)
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	c.Delete(ctx, "a")
	assert.Equal(t, "milkman:test:a", c.key("a"))
}

func TestNewRedisClient_FailsFast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := NewRedisClient(ctx, RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
