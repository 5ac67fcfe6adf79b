// Package cacheadapter provides the process-wide CacheAdapter (spec §4.1):
// a uniform get/set/del contract over opaque bytes with TTL, backed either
// by an in-process map or by a remote key/value store reached over HTTP.
package cacheadapter

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when key is absent or has expired.
var ErrNotFound = errors.New("cacheadapter: not found")

// Cache is the uniform contract both adapter variants satisfy.
type Cache interface {
	// Get returns the bytes stored at key, or ErrNotFound if absent or
	// expired. The remote variant never returns a non-ErrNotFound error
	// from Get: transport failures are folded into ErrNotFound so callers
	// can always treat caching as best-effort.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set overwrites key with value and sets its expiry ttl from now.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Del removes key, if present.
	Del(ctx context.Context, key string) error
}
