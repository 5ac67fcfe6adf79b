package cacheadapter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillforge/modelrouter/pkg/cacheadapter"
)

func TestMemoryCache_SetGet_RoundTrip(t *testing.T) {
	t.Parallel()

	c := cacheadapter.NewMemoryCache(time.Hour)
	defer c.Close()

	ctx := context.Background()

	err := c.Set(ctx, "k", []byte("v"), time.Minute)
	require.NoError(t, err)

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestMemoryCache_Get_NotFound(t *testing.T) {
	t.Parallel()

	c := cacheadapter.NewMemoryCache(time.Hour)
	defer c.Close()

	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, cacheadapter.ErrNotFound)
}

func TestMemoryCache_Get_ExpiredEntry(t *testing.T) {
	t.Parallel()

	c := cacheadapter.NewMemoryCache(time.Hour)
	defer c.Close()

	ctx := context.Background()

	err := c.Set(ctx, "k", []byte("v"), time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = c.Get(ctx, "k")
	assert.True(t, errors.Is(err, cacheadapter.ErrNotFound))
}

func TestMemoryCache_Set_ZeroTTL_NeverExpires(t *testing.T) {
	t.Parallel()

	c := cacheadapter.NewMemoryCache(time.Hour)
	defer c.Close()

	ctx := context.Background()

	err := c.Set(ctx, "k", []byte("v"), 0)
	require.NoError(t, err)

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestMemoryCache_Del(t *testing.T) {
	t.Parallel()

	c := cacheadapter.NewMemoryCache(time.Hour)
	defer c.Close()

	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Del(ctx, "k"))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, cacheadapter.ErrNotFound)
}

func TestMemoryCache_HitMissCounters(t *testing.T) {
	t.Parallel()

	c := cacheadapter.NewMemoryCache(time.Hour)
	defer c.Close()

	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "missing")

	assert.Equal(t, int64(2), c.CacheHits())
	assert.Equal(t, int64(1), c.CacheMisses())
}

func TestMemoryCache_Sweep_EvictsExpired(t *testing.T) {
	t.Parallel()

	c := cacheadapter.NewMemoryCache(10 * time.Millisecond)
	defer c.Close()

	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Millisecond))

	// Give the sweep loop a couple of ticks to run; the entry is already
	// expired by the time the first tick fires.
	time.Sleep(50 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, cacheadapter.ErrNotFound)
}

func TestMemoryCache_Close_Idempotent(t *testing.T) {
	t.Parallel()

	c := cacheadapter.NewMemoryCache(time.Hour)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
