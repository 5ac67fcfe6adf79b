// Package commands implements CLI command handlers for codefang.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/quillforge/modelrouter/pkg/cacheadapter"
	"github.com/quillforge/modelrouter/pkg/config"
	"github.com/quillforge/modelrouter/pkg/llm"
	"github.com/quillforge/modelrouter/pkg/moderation"
	"github.com/quillforge/modelrouter/pkg/observability"
	"github.com/quillforge/modelrouter/pkg/ratelimit"
	"github.com/quillforge/modelrouter/pkg/router"
	"github.com/quillforge/modelrouter/pkg/statsui"
	"github.com/quillforge/modelrouter/pkg/telemetry"
)

// app bundles every component the CLI surface drives, wired from one
// loaded Config. Every field is a concrete, already-constructed
// collaborator; commands only ever read from app, they never build
// components themselves.
type app struct {
	cfg        *config.Config
	cache      cacheadapter.Cache
	limiter    *ratelimit.Limiter
	telemetry  *telemetry.Store
	router     *router.Router
	llmClient  llm.LLMClient
	validator  llm.SchemaValidator
	moderation *moderation.Service
	projector  *statsui.Projector
	logger     *slog.Logger
}

// bootstrap loads configuration and wires every component per SPEC_FULL.md's
// module decomposition. configPath may be empty to use viper's default
// search path.
func bootstrap(configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Logging.Level)}))

	backends, endpoints, err := backendDescriptors(cfg.Router.Backends)
	if err != nil {
		return nil, fmt.Errorf("parse backend table: %w", err)
	}

	store, err := telemetry.New(cfg.Router.StateDir, backends,
		telemetry.WithTelemetryBasename(cfg.Telemetry.TelemetryFile),
		telemetry.WithDecisionLogBasename(cfg.Telemetry.DecisionLogFile),
	)
	if err != nil {
		return nil, fmt.Errorf("init telemetry store: %w", err)
	}

	cache := cacheadapter.NewFromConfig(cfg.Cache)
	limiter := ratelimit.New(cache)
	rtr := router.New(backends, store, cfg.Router.DefaultBackend)
	httpClient := llm.NewHTTPClient(endpoints, 0)
	validator := llm.NewJSONSchemaValidator()

	svc := moderation.New(cache, limiter, rtr, store, httpClient, validator,
		moderation.WithLogger(logger),
		moderation.WithDefaultLocale(cfg.Moderation.DefaultLocale),
		moderation.WithMaxLatencyMs(cfg.Moderation.MaxLatencyMs),
		moderation.WithRateLimitPolicy(ratelimit.Policy{
			MaxRequests:   cfg.RateLimit.MaxRequests,
			WindowSeconds: cfg.RateLimit.WindowSeconds,
		}),
	)

	projector := statsui.New(store)

	return &app{
		cfg:        cfg,
		cache:      cache,
		limiter:    limiter,
		telemetry:  store,
		router:     rtr,
		llmClient:  httpClient,
		validator:  validator,
		moderation: svc,
		projector:  projector,
		logger:     logger,
	}, nil
}

// backendDescriptors converts the config-layer backend table into
// llm.BackendDescriptor (for the Telemetry Store/Router) plus a parallel
// backend-name -> base-URL map (for the HTTP LLMClient, which is the only
// collaborator that cares where a backend actually lives).
func backendDescriptors(raw []config.BackendDescriptorConfig) ([]llm.BackendDescriptor, map[string]string, error) {
	descriptors := make([]llm.BackendDescriptor, 0, len(raw))
	endpoints := make(map[string]string, len(raw))

	for _, b := range raw {
		tier, ok := llm.ParseCapabilityTier(b.CapabilityTier)
		if !ok {
			return nil, nil, fmt.Errorf("backend %q: unknown capability_tier %q", b.Name, b.CapabilityTier)
		}

		descriptors = append(descriptors, llm.BackendDescriptor{
			Name:                     b.Name,
			CapabilityTier:           tier,
			BaseCostPer1kTokens:      b.BaseCostPer1kTokens,
			NominalMaxLatencyMs:      b.NominalMaxLatencyMs,
			SupportsStructuredOutput: b.SupportsStructured,
			SupportsStreaming:        b.SupportsStreaming,
		})

		if b.BaseURL != "" {
			endpoints[b.Name] = b.BaseURL
		}
	}

	return descriptors, endpoints, nil
}

func logLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}

	return l
}

// initObservability builds the OTel providers for a given application mode,
// mirroring the teacher's per-command init pattern (cmd/uast/server.go,
// the old pkg/mcp/server.go): OTLP endpoint/headers from the standard env
// vars, mode tagged onto the resource.
func initObservability(mode observability.AppMode, debug bool) (observability.Providers, error) {
	cfg := observability.DefaultConfig()
	cfg.Mode = mode
	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	cfg.OTLPInsecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	cfg.LogJSON = true

	if debug {
		cfg.LogLevel = slog.LevelDebug
		cfg.DebugTrace = true
	}

	return observability.Init(cfg)
}
