// Package ratelimit implements the RateLimiter (spec §4.2): a
// per-identifier sliding-window request counter built atop a
// cacheadapter.Cache, fail-open on any storage failure.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quillforge/modelrouter/pkg/cacheadapter"
)

// Policy bounds one rate-limit check.
type Policy struct {
	MaxRequests   int
	WindowSeconds int
}

// Result is the outcome of a Check call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAtMs int64
}

// entry is the sliding-window counter persisted in the cache, keyed by
// "{id}:{window_seconds}".
type entry struct {
	Count     int   `json:"count"`
	ResetAtMs int64 `json:"reset_at_ms"`
}

// Limiter is the RateLimiter component.
type Limiter struct {
	cache cacheadapter.Cache
}

// New creates a Limiter atop the given CacheAdapter.
func New(cache cacheadapter.Cache) *Limiter {
	return &Limiter{cache: cache}
}

// Check implements the check(client_id, policy) operation of spec §4.2.
// Any storage failure is absorbed: Check always returns a result rather
// than propagating the error, per the fail-open policy ("a stalled
// limiter must not DoS the legitimate traffic that caused it").
func (l *Limiter) Check(ctx context.Context, clientID string, policy Policy) Result {
	key := fmt.Sprintf("%s:%d", clientID, policy.WindowSeconds)
	windowMs := int64(policy.WindowSeconds) * 1000

	raw, err := l.cache.Get(ctx, key)
	if err != nil && err != cacheadapter.ErrNotFound {
		return Result{Allowed: true, Remaining: policy.MaxRequests}
	}

	nowMs := time.Now().UnixMilli()

	var e entry
	if err == nil {
		if unmarshalErr := json.Unmarshal(raw, &e); unmarshalErr != nil {
			// Corrupt entry: treat as absent, same as a storage failure.
			return Result{Allowed: true, Remaining: policy.MaxRequests}
		}
	}

	if err == cacheadapter.ErrNotFound || nowMs >= e.ResetAtMs {
		fresh := entry{Count: 1, ResetAtMs: nowMs + windowMs}

		if setErr := l.writeEntry(ctx, key, fresh, time.Duration(policy.WindowSeconds)*time.Second); setErr != nil {
			return Result{Allowed: true, Remaining: policy.MaxRequests}
		}

		return Result{Allowed: true, Remaining: policy.MaxRequests - 1, ResetAtMs: fresh.ResetAtMs}
	}

	if e.Count >= policy.MaxRequests {
		return Result{Allowed: false, Remaining: 0, ResetAtMs: e.ResetAtMs}
	}

	e.Count++

	remainingWindow := time.Duration(e.ResetAtMs-nowMs) * time.Millisecond
	remainingSeconds := ceilSeconds(remainingWindow)

	if setErr := l.writeEntry(ctx, key, e, remainingSeconds); setErr != nil {
		return Result{Allowed: true, Remaining: policy.MaxRequests}
	}

	return Result{Allowed: true, Remaining: policy.MaxRequests - e.Count, ResetAtMs: e.ResetAtMs}
}

func (l *Limiter) writeEntry(ctx context.Context, key string, e entry, ttl time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal rate limit entry: %w", err)
	}

	return l.cache.Set(ctx, key, data, ttl)
}

// ceilSeconds rounds d up to the nearest whole second, per spec's "TTL =
// remaining window seconds (ceil)".
func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}

	secs := d / time.Second
	if d%time.Second != 0 {
		secs++
	}

	return secs * time.Second
}
