// Package moderation implements the Moderation Service (spec §4.8): one
// end-to-end request pipeline wiring the RateLimiter, CacheAdapter, Model
// Router, Telemetry Store, and LLMClient behind a fail-safe contract.
package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/quillforge/modelrouter/pkg/cacheadapter"
	"github.com/quillforge/modelrouter/pkg/llm"
	"github.com/quillforge/modelrouter/pkg/ratelimit"
	"github.com/quillforge/modelrouter/pkg/router"
)

// cacheKeyPrefix namespaces moderation cache entries within a shared
// CacheAdapter instance.
const cacheKeyPrefix = "moderation:"

// DefaultMaxLatencyMs is the spec §4.8 literal router budget for a
// classification call ("max_latency_ms: 2000"), used unless overridden via
// WithMaxLatencyMs.
const DefaultMaxLatencyMs = int64(2000)

// DefaultCacheTTL is how long a non-critical moderation result is cached.
const DefaultCacheTTL = 15 * time.Minute

// ErrEmptyMessage is returned when Request.Message is blank.
var ErrEmptyMessage = errors.New("moderation: message is required")

// Request is one inbound moderation call.
type Request struct {
	Message string
	Locale  string
	Stream  bool
}

// Response is the outcome of a unary (non-streaming) Moderate call.
type Response struct {
	Result llm.ModerationResult
	Cached bool
}

// RateLimitedError is returned when RateLimiter.Check denies a request,
// carrying everything a caller needs to produce the spec §6 429 response
// (body + Retry-After/X-RateLimit-* headers).
type RateLimitedError struct {
	Result ratelimit.Result
	Policy ratelimit.Policy
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("moderation: rate limit exceeded, resets at %d", e.Result.ResetAtMs)
}

// TelemetrySink is the subset of telemetry.Store the Moderation Service
// depends on, declared narrowly so this package does not import telemetry
// directly.
type TelemetrySink interface {
	Update(ctx context.Context, backend string, latencyMs int64, success bool) error
}

// Selector is the subset of router.Router the Moderation Service depends
// on.
type Selector interface {
	Select(ctx context.Context, cfg llm.RouterConfig) (router.Selection, error)
}

// Option configures a Service at construction.
type Option func(*Service)

// WithAlertSink overrides the default stderr AlertSink.
func WithAlertSink(sink AlertSink) Option {
	return func(s *Service) { s.alerts = sink }
}

// WithLogger overrides the default slog.Default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithDefaultLocale overrides the locale used when a request omits one.
func WithDefaultLocale(locale string) Option {
	return func(s *Service) { s.defaultLocale = locale }
}

// WithRateLimitPolicy overrides the default rate-limit policy applied to
// every request.
func WithRateLimitPolicy(policy ratelimit.Policy) Option {
	return func(s *Service) { s.policy = policy }
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service implements the Moderation Service request pipeline.
type Service struct {
	cache     cacheadapter.Cache
	limiter   *ratelimit.Limiter
	selector  Selector
	telemetry TelemetrySink
	llmClient llm.LLMClient
	validator llm.SchemaValidator

	alerts        AlertSink
	metrics       *rollingMetrics
	policy        ratelimit.Policy
	defaultLocale string
	cacheTTL      time.Duration
	maxLatencyMs  int64
	logger        *slog.Logger
	now           func() time.Time
}

// WithCacheTTL overrides the TTL applied to cached (non-critical) results.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

// WithMaxLatencyMs overrides the router/LLM call deadline (spec default
// 2000ms for a classification task).
func WithMaxLatencyMs(ms int64) Option {
	return func(s *Service) { s.maxLatencyMs = ms }
}

// New creates a Service. cache, limiter's backing cache, and telemetry are
// typically the same process-wide instances the Model Router uses.
func New(
	cache cacheadapter.Cache,
	limiter *ratelimit.Limiter,
	selector Selector,
	telemetry TelemetrySink,
	llmClient llm.LLMClient,
	validator llm.SchemaValidator,
	opts ...Option,
) *Service {
	s := &Service{
		cache:         cache,
		limiter:       limiter,
		selector:      selector,
		telemetry:     telemetry,
		llmClient:     llmClient,
		validator:     validator,
		alerts:        NewStderrAlertSink(nil),
		metrics:       newRollingMetrics(),
		policy:        ratelimit.Policy{MaxRequests: 100, WindowSeconds: 60},
		defaultLocale: "en",
		cacheTTL:      DefaultCacheTTL,
		maxLatencyMs:  DefaultMaxLatencyMs,
		logger:        slog.Default(),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Moderate runs the full spec §4.8 pipeline for one unary (non-streaming)
// request. clientID identifies the rate-limit bucket (typically derived
// from the inbound connection via ratelimit.ClientID). Callers with
// req.Stream set should use ModerateStream instead.
func (s *Service) Moderate(ctx context.Context, clientID string, req Request) (Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Response{}, ErrEmptyMessage
	}

	locale := req.Locale
	if locale == "" {
		locale = s.defaultLocale
	}

	limitResult := s.limiter.Check(ctx, clientID, s.policy)
	if !limitResult.Allowed {
		return Response{}, &RateLimitedError{Result: limitResult, Policy: s.policy}
	}

	key := cacheKey(req.Message, locale)

	if cached, ok := s.lookupCache(ctx, key); ok {
		s.metrics.recordCacheHit()

		return Response{Result: cached, Cached: true}, nil
	}

	sel, selErr := s.selector.Select(ctx, llm.RouterConfig{
		Task:                 llm.TaskClassification,
		Priority:             llm.PrioritySpeed,
		Complexity:           llm.ComplexityLow,
		MaxLatencyMs:         s.maxLatencyMs,
		RequiredCapabilities: s.requiredCapabilities(req),
	})
	if selErr != nil {
		return Response{}, fmt.Errorf("moderation: select backend: %w", selErr)
	}

	result, invokeErr := s.invoke(ctx, sel.Backend, req.Message, locale)
	if invokeErr != nil {
		s.logger.WarnContext(ctx, "moderation invocation failed, returning safe fallback",
			slog.String("backend", sel.Backend), slog.String("error", invokeErr.Error()))

		return Response{Result: llm.SafeFallback(invokeErr.Error())}, nil
	}

	if result.Severity == llm.SeverityCritical || result.Flagged {
		s.alerts.Emit(ctx, Alert{Backend: sel.Backend, Result: result, Locale: locale})
	}

	if result.Severity != llm.SeverityCritical {
		s.cacheResult(ctx, key, result)
	}

	return Response{Result: result}, nil
}

// ModerateStream runs the streaming variant of the pipeline (spec §4.8:
// "Streaming mode: bypasses cache ... emits the structured-output stream
// directly to the client. Still updates telemetry on completion."). The
// returned channel carries the same StreamChunk contract as LLMClient's
// InvokeStream; the caller is responsible for assembling and validating
// the final structured output.
func (s *Service) ModerateStream(ctx context.Context, clientID string, req Request) (<-chan llm.StreamChunk, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	locale := req.Locale
	if locale == "" {
		locale = s.defaultLocale
	}

	limitResult := s.limiter.Check(ctx, clientID, s.policy)
	if !limitResult.Allowed {
		return nil, &RateLimitedError{Result: limitResult, Policy: s.policy}
	}

	req.Stream = true

	sel, selErr := s.selector.Select(ctx, llm.RouterConfig{
		Task:                 llm.TaskClassification,
		Priority:             llm.PrioritySpeed,
		Complexity:           llm.ComplexityLow,
		MaxLatencyMs:         s.maxLatencyMs,
		RequiredCapabilities: s.requiredCapabilities(req),
	})
	if selErr != nil {
		return nil, fmt.Errorf("moderation: select backend: %w", selErr)
	}

	start := s.now()

	upstream, invokeErr := s.llmClient.InvokeStream(ctx, sel.Backend, llm.InvokeRequest{
		Prompt: moderationPrompt(locale, req.Message),
		Schema: llm.ModerationResultSchema,
		Locale: locale,
	})
	if invokeErr != nil {
		_ = s.telemetry.Update(ctx, sel.Backend, 0, false)

		return nil, fmt.Errorf("invoke stream backend %s: %w", sel.Backend, invokeErr)
	}

	out := make(chan llm.StreamChunk)

	go s.relayStream(ctx, sel.Backend, start, upstream, out)

	return out, nil
}

// relayStream forwards upstream chunks to out, recording telemetry once
// the stream terminates (success or error).
func (s *Service) relayStream(
	ctx context.Context,
	backend string,
	start time.Time,
	upstream <-chan llm.StreamChunk,
	out chan<- llm.StreamChunk,
) {
	defer close(out)

	success := true

	for chunk := range upstream {
		if chunk.Err != nil {
			success = false
		}

		out <- chunk

		if chunk.Done {
			break
		}
	}

	latencyMs := s.now().Sub(start).Milliseconds()
	_ = s.telemetry.Update(ctx, backend, latencyMs, success)
}

// requiredCapabilities builds the router's required-capability set for one
// request: structured output is always required (moderation is a
// structured-output task); streaming is additionally required when the
// caller asked to stream.
func (s *Service) requiredCapabilities(req Request) []string {
	caps := []string{llm.CapabilityStructuredOutput}
	if req.Stream {
		caps = append(caps, llm.CapabilityStreaming)
	}

	return caps
}

func (s *Service) lookupCache(ctx context.Context, key string) (llm.ModerationResult, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		return llm.ModerationResult{}, false
	}

	var result llm.ModerationResult
	if jsonErr := json.Unmarshal(raw, &result); jsonErr != nil {
		return llm.ModerationResult{}, false
	}

	return result, true
}

func (s *Service) cacheResult(ctx context.Context, key string, result llm.ModerationResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}

	_ = s.cache.Set(ctx, key, raw, s.cacheTTL)
}

// invoke performs the unary LLMClient call, validates the structured
// output, and updates telemetry. Always updates telemetry exactly once,
// regardless of outcome (spec §4.8 steps 6-7).
func (s *Service) invoke(ctx context.Context, backend, message, locale string) (llm.ModerationResult, error) {
	deadline := s.now().Add(time.Duration(s.maxLatencyMs) * time.Millisecond)

	callCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	resp, err := s.llmClient.Invoke(callCtx, backend, llm.InvokeRequest{
		Prompt: moderationPrompt(locale, message),
		Schema: llm.ModerationResultSchema,
		Locale: locale,
	})
	if err != nil {
		_ = s.telemetry.Update(ctx, backend, resp.LatencyMs, false)

		return llm.ModerationResult{}, fmt.Errorf("invoke backend %s: %w", backend, err)
	}

	var result llm.ModerationResult
	if jsonErr := json.Unmarshal(resp.Output, &result); jsonErr != nil {
		_ = s.telemetry.Update(ctx, backend, resp.LatencyMs, false)

		return llm.ModerationResult{}, fmt.Errorf("decode output: %w", jsonErr)
	}

	if validateErr := s.validator.Validate(llm.ModerationResultSchema, result); validateErr != nil {
		_ = s.telemetry.Update(ctx, backend, resp.LatencyMs, false)

		return llm.ModerationResult{}, fmt.Errorf("validate output: %w", validateErr)
	}

	result = result.EnforceInvariants()

	_ = s.telemetry.Update(ctx, backend, resp.LatencyMs, true)

	s.metrics.recordResult(result.LanguageCode, resultFields{
		severity:  string(result.Severity),
		flagged:   result.Flagged,
		riskScore: result.RiskScore,
		latencyMs: resp.LatencyMs,
	})

	return result, nil
}

// Metrics returns a snapshot of the rolling moderation metrics and cache
// stats, for the GET /moderation read endpoint.
func (s *Service) Metrics() MetricsSnapshot {
	return s.metrics.snapshot()
}

// cacheKey implements spec §4.8 step 2: hash(normalize(message) || locale),
// normalize = trim + lowercase.
func cacheKey(message, locale string) string {
	normalized := strings.ToLower(strings.TrimSpace(message)) + "|" + strings.ToLower(strings.TrimSpace(locale))

	return cacheKeyPrefix + strconv.FormatUint(xxhash.Sum64String(normalized), 16)
}

// moderationPrompt builds a locale-aware classification prompt (spec §4.8
// step 5: "invoke LLMClient with the moderation schema and a locale-aware
// prompt").
func moderationPrompt(locale, message string) string {
	return fmt.Sprintf(
		"Classify the following user message for moderation. Respond in %s, matching the ModerationResult schema exactly.\n\nMessage:\n%s",
		locale, message,
	)
}
