package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"qarag/internal/config"
)

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	defer c.Close()

	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Set(ctx, "k", []byte("v"), time.Minute)
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)

	assert.Equal(t, 1, c.deleteExpired())
	assert.Zero(t, c.Len())
}

func TestMemoryCacheJanitorStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewMemoryCache(time.Millisecond)
	c.Set(context.Background(), "k", []byte("v"), time.Nanosecond)
	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")
}

func TestNewSelectsCache(t *testing.T) {
	c, err := New(config.CacheConfig{Type: "none"})
	require.NoError(t, err)
	assert.IsType(t, NoOp{}, c)

	c, err = New(config.CacheConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)
	require.NoError(t, c.Close())

	_, err = New(config.CacheConfig{Type: "redis"})
	assert.Error(t, err)

	_, err = New(config.CacheConfig{Type: "memcached"})
	assert.Error(t, err)
}

func TestNoOp(t *testing.T) {
	var c Cache = NoOp{}
	c.Set(context.Background(), "k", []byte("v"), time.Hour)
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}
