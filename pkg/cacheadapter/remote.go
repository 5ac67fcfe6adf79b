package cacheadapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultRemoteTimeout bounds every RemoteCache HTTP round-trip.
const DefaultRemoteTimeout = 2 * time.Second

// RemoteCache forwards CacheAdapter operations to an external key/value
// store reached over HTTP, selected at init by REMOTE_CACHE_URL /
// REMOTE_CACHE_TOKEN. No third-party HTTP client library appears anywhere
// in the example pack (the teacher and every other repo use net/http
// directly for outbound calls), so RemoteCache is built on the standard
// library's http.Client rather than an ecosystem wrapper.
//
// On any transport failure, all operations fail-closed except Get, which
// folds the failure into ErrNotFound rather than raising: "caching is
// always best-effort."
type RemoteCache struct {
	baseURL string
	token   string
	client  *http.Client

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRemoteCache creates a RemoteCache pointed at baseURL, authenticating
// with token as a bearer credential.
func NewRemoteCache(baseURL, token string, timeout time.Duration) *RemoteCache {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}

	return &RemoteCache{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *RemoteCache) endpoint(key string) string {
	return r.baseURL + "/" + url.PathEscape(key)
}

func (r *RemoteCache) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	return req, nil
}

// Get implements Cache. Any transport failure or non-200 response is
// treated as ErrNotFound rather than raised, per the fail-open contract.
func (r *RemoteCache) Get(ctx context.Context, key string) ([]byte, error) {
	req, err := r.newRequest(ctx, http.MethodGet, r.endpoint(key), nil)
	if err != nil {
		r.misses.Add(1)

		return nil, ErrNotFound
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.misses.Add(1)

		return nil, ErrNotFound
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.misses.Add(1)

		return nil, ErrNotFound
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		r.misses.Add(1)

		return nil, ErrNotFound
	}

	r.hits.Add(1)

	return data, nil
}

// Set implements Cache, fail-closed: transport and non-2xx failures are
// returned to the caller.
func (r *RemoteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	endpoint := r.endpoint(key)

	q := url.Values{}
	if ttl > 0 {
		q.Set("ttl_seconds", fmt.Sprintf("%d", int64(ttl.Seconds())))
	}

	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := r.newRequest(ctx, http.MethodPut, endpoint, bytes.NewReader(value))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote cache set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote cache set: unexpected status %d", resp.StatusCode)
	}

	return nil
}

// Del implements Cache, fail-closed.
func (r *RemoteCache) Del(ctx context.Context, key string) error {
	req, err := r.newRequest(ctx, http.MethodDelete, r.endpoint(key), nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote cache del: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("remote cache del: unexpected status %d", resp.StatusCode)
	}

	return nil
}

// CacheHits implements observability.CacheStatsProvider.
func (r *RemoteCache) CacheHits() int64 { return r.hits.Load() }

// CacheMisses implements observability.CacheStatsProvider.
func (r *RemoteCache) CacheMisses() int64 { return r.misses.Load() }
