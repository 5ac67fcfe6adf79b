package moderation_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillforge/modelrouter/pkg/cacheadapter"
	"github.com/quillforge/modelrouter/pkg/llm"
	"github.com/quillforge/modelrouter/pkg/moderation"
	"github.com/quillforge/modelrouter/pkg/ratelimit"
	"github.com/quillforge/modelrouter/pkg/router"
)

// stubSelector always selects a fixed backend.
type stubSelector struct {
	backend string
	err     error
	calls   atomic.Int32
}

func (s *stubSelector) Select(context.Context, llm.RouterConfig) (router.Selection, error) {
	s.calls.Add(1)

	if s.err != nil {
		return router.Selection{}, s.err
	}

	return router.Selection{Backend: s.backend}, nil
}

// stubTelemetry records Update calls.
type stubTelemetry struct {
	mu      sync.Mutex
	updates int
}

func (s *stubTelemetry) Update(context.Context, string, int64, bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updates++

	return nil
}

func (s *stubTelemetry) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updates
}

// stubLLMClient returns a fixed ModerationResult per Invoke call.
type stubLLMClient struct {
	result llm.ModerationResult
	err    error
	calls  atomic.Int32

	streamChunks []llm.StreamChunk
}

func (c *stubLLMClient) Invoke(_ context.Context, _ string, _ llm.InvokeRequest) (llm.InvokeResponse, error) {
	c.calls.Add(1)

	if c.err != nil {
		return llm.InvokeResponse{}, c.err
	}

	raw, _ := json.Marshal(c.result)

	return llm.InvokeResponse{Output: raw, LatencyMs: 10}, nil
}

func (c *stubLLMClient) InvokeStream(context.Context, string, llm.InvokeRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, len(c.streamChunks))
	for _, sc := range c.streamChunks {
		ch <- sc
	}
	close(ch)

	return ch, nil
}

// stubValidator always accepts.
type stubValidator struct{}

func (stubValidator) Validate([]byte, any) error { return nil }

func safeResult() llm.ModerationResult {
	return llm.ModerationResult{
		Language: "English", LanguageCode: "en", Severity: llm.SeveritySafe,
		Confidence: 0.9, RiskScore: 1, Flagged: false, Reasoning: "benign",
	}
}

func newService(t *testing.T, llmClient *stubLLMClient, sel *stubSelector, tel *stubTelemetry) (*moderation.Service, cacheadapter.Cache) {
	t.Helper()

	cache := cacheadapter.NewMemoryCache(time.Minute)
	t.Cleanup(func() { _ = cache.Close() })

	limiter := ratelimit.New(cache)

	svc := moderation.New(cache, limiter, sel, tel, llmClient, stubValidator{})

	return svc, cache
}

func TestModerate_CacheMissThenHit(t *testing.T) {
	t.Parallel()

	llmClient := &stubLLMClient{result: safeResult()}
	sel := &stubSelector{backend: "fast-economy"}
	tel := &stubTelemetry{}

	svc, _ := newService(t, llmClient, sel, tel)

	req := moderation.Request{Message: "hello", Locale: "en"}

	resp1, err := svc.Moderate(context.Background(), "client-a", req)
	require.NoError(t, err)
	assert.False(t, resp1.Cached)

	resp2, err := svc.Moderate(context.Background(), "client-a", req)
	require.NoError(t, err)
	assert.True(t, resp2.Cached)

	assert.Equal(t, int32(1), llmClient.calls.Load())
	assert.Equal(t, 1, tel.count())
}

func TestModerate_CriticalResultNeverCached(t *testing.T) {
	t.Parallel()

	critical := safeResult()
	critical.Severity = llm.SeverityCritical
	critical.Flagged = true

	llmClient := &stubLLMClient{result: critical}
	sel := &stubSelector{backend: "fast-economy"}
	tel := &stubTelemetry{}

	svc, _ := newService(t, llmClient, sel, tel)

	req := moderation.Request{Message: "bad stuff", Locale: "en"}

	resp1, err := svc.Moderate(context.Background(), "client-b", req)
	require.NoError(t, err)
	assert.False(t, resp1.Cached)
	assert.Equal(t, llm.SeverityCritical, resp1.Result.Severity)

	resp2, err := svc.Moderate(context.Background(), "client-b", req)
	require.NoError(t, err)
	assert.False(t, resp2.Cached) // still a miss: critical is never cached.
	assert.Equal(t, int32(2), llmClient.calls.Load())
}

func TestModerate_CriticalResultCoercedToFlagged(t *testing.T) {
	t.Parallel()

	// Backend returns an internally inconsistent result: critical severity
	// but flagged left false. The service must coerce this before it is
	// trusted or returned.
	critical := safeResult()
	critical.Severity = llm.SeverityCritical
	critical.Flagged = false
	critical.Categories = []string{"violence"}

	llmClient := &stubLLMClient{result: critical}
	sel := &stubSelector{backend: "fast-economy"}
	tel := &stubTelemetry{}

	svc, _ := newService(t, llmClient, sel, tel)

	resp, err := svc.Moderate(context.Background(), "client-c", moderation.Request{Message: "bad stuff", Locale: "en"})
	require.NoError(t, err)
	assert.True(t, resp.Result.Flagged)
}

func TestModerate_SafeResultCoercedToNoCategories(t *testing.T) {
	t.Parallel()

	// Backend returns an internally inconsistent result: safe severity
	// but non-empty categories. The service must clear them.
	safe := safeResult()
	safe.Categories = []string{"spam"}

	llmClient := &stubLLMClient{result: safe}
	sel := &stubSelector{backend: "fast-economy"}
	tel := &stubTelemetry{}

	svc, _ := newService(t, llmClient, sel, tel)

	resp, err := svc.Moderate(context.Background(), "client-d", moderation.Request{Message: "hello", Locale: "en"})
	require.NoError(t, err)
	assert.Empty(t, resp.Result.Categories)
}

func TestModerate_EmptyMessage_ReturnsError(t *testing.T) {
	t.Parallel()

	llmClient := &stubLLMClient{result: safeResult()}
	sel := &stubSelector{backend: "fast-economy"}
	tel := &stubTelemetry{}

	svc, _ := newService(t, llmClient, sel, tel)

	_, err := svc.Moderate(context.Background(), "client-c", moderation.Request{Message: "   "})
	assert.ErrorIs(t, err, moderation.ErrEmptyMessage)
}

func TestModerate_RateLimitExceeded_ReturnsRateLimitedError(t *testing.T) {
	t.Parallel()

	llmClient := &stubLLMClient{result: safeResult()}
	sel := &stubSelector{backend: "fast-economy"}
	tel := &stubTelemetry{}

	cache := cacheadapter.NewMemoryCache(time.Minute)
	t.Cleanup(func() { _ = cache.Close() })

	limiter := ratelimit.New(cache)
	svc := moderation.New(cache, limiter, sel, tel, llmClient, stubValidator{},
		moderation.WithRateLimitPolicy(ratelimit.Policy{MaxRequests: 1, WindowSeconds: 60}))

	ctx := context.Background()
	req := moderation.Request{Message: "distinct message one"}

	_, err := svc.Moderate(ctx, "client-d", req)
	require.NoError(t, err)

	_, err = svc.Moderate(ctx, "client-d", moderation.Request{Message: "distinct message two"})

	var rlErr *moderation.RateLimitedError
	require.ErrorAs(t, err, &rlErr)
}

func TestModerate_LLMError_ReturnsSafeFallback(t *testing.T) {
	t.Parallel()

	llmClient := &stubLLMClient{err: assertError{"backend down"}}
	sel := &stubSelector{backend: "fast-economy"}
	tel := &stubTelemetry{}

	svc, _ := newService(t, llmClient, sel, tel)

	resp, err := svc.Moderate(context.Background(), "client-e", moderation.Request{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, llm.SeveritySafe, resp.Result.Severity)
	assert.False(t, resp.Result.Flagged)
	assert.Contains(t, resp.Result.Reasoning, "error:")
	assert.Equal(t, 1, tel.count()) // telemetry still updated, marked failed.
}

func TestModerate_FlaggedResult_EmitsAlert(t *testing.T) {
	t.Parallel()

	flagged := safeResult()
	flagged.Flagged = true
	flagged.Severity = llm.SeverityWarning

	llmClient := &stubLLMClient{result: flagged}
	sel := &stubSelector{backend: "fast-economy"}
	tel := &stubTelemetry{}

	cache := cacheadapter.NewMemoryCache(time.Minute)
	t.Cleanup(func() { _ = cache.Close() })

	limiter := ratelimit.New(cache)

	alerts := &recordingAlertSink{}
	svc := moderation.New(cache, limiter, sel, tel, llmClient, stubValidator{}, moderation.WithAlertSink(alerts))

	_, err := svc.Moderate(context.Background(), "client-f", moderation.Request{Message: "flag me"})
	require.NoError(t, err)

	assert.Equal(t, 1, alerts.count())
}

func TestModerate_DifferentLocale_DistinctCacheKey(t *testing.T) {
	t.Parallel()

	llmClient := &stubLLMClient{result: safeResult()}
	sel := &stubSelector{backend: "fast-economy"}
	tel := &stubTelemetry{}

	svc, _ := newService(t, llmClient, sel, tel)

	ctx := context.Background()

	_, err := svc.Moderate(ctx, "client-g", moderation.Request{Message: "hello", Locale: "en"})
	require.NoError(t, err)

	_, err = svc.Moderate(ctx, "client-g", moderation.Request{Message: "hello", Locale: "fr"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), llmClient.calls.Load())
}

func TestModerateStream_BypassesCache(t *testing.T) {
	t.Parallel()

	result := safeResult()
	raw, _ := json.Marshal(result)

	llmClient := &stubLLMClient{streamChunks: []llm.StreamChunk{
		{Delta: string(raw), Done: true},
	}}
	sel := &stubSelector{backend: "fast-economy"}
	tel := &stubTelemetry{}

	svc, _ := newService(t, llmClient, sel, tel)

	ch, err := svc.ModerateStream(context.Background(), "client-h", moderation.Request{Message: "hi", Stream: true})
	require.NoError(t, err)

	var last llm.StreamChunk
	for c := range ch {
		last = c
	}

	assert.True(t, last.Done)
	assert.Equal(t, 1, tel.count())
}

// recordingAlertSink counts Emit calls.
type recordingAlertSink struct {
	mu sync.Mutex
	n  int
}

func (r *recordingAlertSink) Emit(context.Context, moderation.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.n++
}

func (r *recordingAlertSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.n
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
