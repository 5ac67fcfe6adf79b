package config

import "time"

// Cache defaults.
const (
	DefaultCacheTTL           = 15 * time.Minute
	DefaultCacheSweepInterval = 5 * time.Minute
	DefaultRemoteCacheTimeout = 2 * time.Second
)

// Router defaults.
const (
	DefaultBackendName        = "balanced-default"
	DefaultDecisionLogSize    = 100
	DefaultRecencyBoostWindow = 24 * time.Hour
)

// Pipeline defaults.
const (
	DefaultPipelineConcurrency = 3
	DefaultPipelineMaxRetries  = 2
	DefaultPipelineBaseDelay   = 200 * time.Millisecond
	DefaultChunkSizeChars      = 4000
	DefaultOverlapChars        = 200
	DefaultReduceThreshold     = 10
	DefaultReduceBatchSize     = 5
)

// Moderation defaults.
const (
	// DefaultModerationMaxLatencyMs is the spec §4.8 literal router budget
	// for a classification call: "max_latency_ms: 2000".
	DefaultModerationMaxLatencyMs = int64(2000)
	DefaultModerationLocale       = "en-US"
)

// Telemetry persistence defaults, mirroring the dotfile names used for
// resumable state across process restarts.
const (
	DefaultTelemetryFile   = ".model-telemetry"
	DefaultDecisionLogFile = ".routing-history"
	DefaultExtractionFile  = ".extraction-state"
)

// defaultBackendTableRaw returns the seed backend table used when no
// router.backends section is present in config. It gives the router
// something sane to score against out of the box: one backend each for
// the basic, standard and advanced tiers (none for reasoning) at a
// representative cost/latency/quality point.
func defaultBackendTableRaw() []map[string]any {
	return []map[string]any{
		{
			"name":                       "balanced-default",
			"capability_tier":            "standard",
			"base_cost_per_1k_tokens":    0.002,
			"nominal_max_latency_ms":     int64(3000),
			"supports_structured_output": true,
			"supports_streaming":         true,
		},
		{
			"name":                       "fast-economy",
			"capability_tier":            "basic",
			"base_cost_per_1k_tokens":    0.0005,
			"nominal_max_latency_ms":     int64(800),
			"supports_structured_output": false,
			"supports_streaming":         true,
		},
		{
			"name":                       "premium-quality",
			"capability_tier":            "advanced",
			"base_cost_per_1k_tokens":    0.02,
			"nominal_max_latency_ms":     int64(8000),
			"supports_structured_output": true,
			"supports_streaming":         false,
		},
	}
}
