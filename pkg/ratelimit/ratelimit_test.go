package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillforge/modelrouter/pkg/cacheadapter"
	"github.com/quillforge/modelrouter/pkg/ratelimit"
)

// failingCache always fails, to exercise the fail-open policy.
type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("storage unavailable")
}

func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("storage unavailable")
}

func (failingCache) Del(context.Context, string) error {
	return errors.New("storage unavailable")
}

func TestLimiter_Check_FirstRequest_Allowed(t *testing.T) {
	t.Parallel()

	cache := cacheadapter.NewMemoryCache(time.Hour)
	defer cache.Close()

	l := ratelimit.New(cache)

	result := l.Check(context.Background(), "client-a", ratelimit.Policy{MaxRequests: 3, WindowSeconds: 60})
	assert.True(t, result.Allowed)
	assert.Equal(t, 2, result.Remaining)
}

func TestLimiter_Check_BlocksAtLimit(t *testing.T) {
	t.Parallel()

	cache := cacheadapter.NewMemoryCache(time.Hour)
	defer cache.Close()

	l := ratelimit.New(cache)
	ctx := context.Background()
	policy := ratelimit.Policy{MaxRequests: 2, WindowSeconds: 60}

	r1 := l.Check(ctx, "client-b", policy)
	require.True(t, r1.Allowed)

	r2 := l.Check(ctx, "client-b", policy)
	require.True(t, r2.Allowed)
	assert.Equal(t, 0, r2.Remaining)

	r3 := l.Check(ctx, "client-b", policy)
	assert.False(t, r3.Allowed)
	assert.Equal(t, 0, r3.Remaining)
}

func TestLimiter_Check_ResetsAfterWindow(t *testing.T) {
	t.Parallel()

	cache := cacheadapter.NewMemoryCache(time.Hour)
	defer cache.Close()

	l := ratelimit.New(cache)
	ctx := context.Background()
	policy := ratelimit.Policy{MaxRequests: 1, WindowSeconds: 1}

	r1 := l.Check(ctx, "client-c", policy)
	require.True(t, r1.Allowed)

	r2 := l.Check(ctx, "client-c", policy)
	require.False(t, r2.Allowed)

	time.Sleep(1100 * time.Millisecond)

	r3 := l.Check(ctx, "client-c", policy)
	assert.True(t, r3.Allowed)
	assert.Equal(t, 0, r3.Remaining)
}

func TestLimiter_Check_DistinctClients_Independent(t *testing.T) {
	t.Parallel()

	cache := cacheadapter.NewMemoryCache(time.Hour)
	defer cache.Close()

	l := ratelimit.New(cache)
	ctx := context.Background()
	policy := ratelimit.Policy{MaxRequests: 1, WindowSeconds: 60}

	r1 := l.Check(ctx, "client-d", policy)
	require.True(t, r1.Allowed)

	r2 := l.Check(ctx, "client-e", policy)
	assert.True(t, r2.Allowed)
}

func TestLimiter_Check_StorageFailure_FailsOpen(t *testing.T) {
	t.Parallel()

	l := ratelimit.New(failingCache{})

	result := l.Check(context.Background(), "client-f", ratelimit.Policy{MaxRequests: 5, WindowSeconds: 60})
	assert.True(t, result.Allowed)
	assert.Equal(t, 5, result.Remaining)
}
