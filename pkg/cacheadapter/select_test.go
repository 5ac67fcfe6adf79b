package cacheadapter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quillforge/modelrouter/pkg/cacheadapter"
	"github.com/quillforge/modelrouter/pkg/config"
)

func TestNewFromConfig_SelectsRemote_WhenCredentialsPresent(t *testing.T) {
	t.Parallel()

	c := cacheadapter.NewFromConfig(config.CacheConfig{
		RemoteURL:   "https://cache.example.com",
		RemoteToken: "tok",
	})
	defer closeIfCloser(t, c)

	_, ok := c.(*cacheadapter.RemoteCache)
	assert.True(t, ok)
}

func TestNewFromConfig_SelectsMemory_WhenNoCredentials(t *testing.T) {
	t.Parallel()

	c := cacheadapter.NewFromConfig(config.CacheConfig{})
	defer closeIfCloser(t, c)

	_, ok := c.(*cacheadapter.MemoryCache)
	assert.True(t, ok)
}

func TestNewFromConfig_SelectsMemory_WhenOnlyURLPresent(t *testing.T) {
	t.Parallel()

	c := cacheadapter.NewFromConfig(config.CacheConfig{RemoteURL: "https://cache.example.com"})
	defer closeIfCloser(t, c)

	_, ok := c.(*cacheadapter.MemoryCache)
	assert.True(t, ok)
}

func closeIfCloser(t *testing.T, c cacheadapter.Cache) {
	t.Helper()

	if closer, ok := c.(interface{ Close() error }); ok {
		assert.NoError(t, closer.Close())
	}
}
