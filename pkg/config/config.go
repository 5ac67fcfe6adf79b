// Package config provides configuration loading and validation for the
// modelrouter service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidPort            = errors.New("invalid server port")
	ErrInvalidConcurrency     = errors.New("pipeline concurrency must be positive")
	ErrInvalidMaxRetries      = errors.New("pipeline max retries must be non-negative")
	ErrInvalidChunkSize       = errors.New("chunker size_chars must be positive")
	ErrInvalidOverlap         = errors.New("chunker overlap_chars must be less than size_chars")
	ErrInvalidRateLimitMax    = errors.New("rate limit max requests must be positive")
	ErrInvalidRateLimitWindow = errors.New("rate limit window seconds must be positive")
	ErrNoDefaultBackend       = errors.New("router default backend must be set")
	ErrDefaultBackendMissing  = errors.New("router default backend is not present in the backend table")
)

// Default configuration values.
const (
	defaultPort          = 8080
	defaultHost          = "0.0.0.0"
	maxPort              = 65535
	defaultRLMaxRequests = 100
	defaultRLWindowSecs  = 60
)

// Config holds all configuration for the modelrouter service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Router     RouterTableConfig `mapstructure:"router"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration for the moderation endpoint.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	Port         int           `mapstructure:"port"`
	Enabled      bool          `mapstructure:"enabled"`
}

// CacheConfig selects and configures the process-wide CacheAdapter.
// If RemoteURL and RemoteToken are both set (directly or via the
// REMOTE_CACHE_URL / REMOTE_CACHE_TOKEN environment variables), the remote
// variant is installed; otherwise the in-process memory variant is used.
type CacheConfig struct {
	RemoteURL       string        `mapstructure:"remote_url"`
	RemoteToken     string        `mapstructure:"remote_token"`
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	RemoteTimeout   time.Duration `mapstructure:"remote_timeout"`
}

// RateLimitConfig holds the sliding-window rate limiter defaults applied
// when a request does not specify its own policy.
type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

// RouterTableConfig holds the backend descriptor table and router defaults.
type RouterTableConfig struct {
	Backends        []BackendDescriptorConfig `mapstructure:"backends"`
	DefaultBackend  string                    `mapstructure:"default_backend"`
	StateDir        string                    `mapstructure:"state_dir"`
	DecisionLogSize int                       `mapstructure:"decision_log_size"`
}

// BackendDescriptorConfig is the on-disk/config shape of a static backend
// descriptor, converted into llm.BackendDescriptor by the CLI bootstrap.
type BackendDescriptorConfig struct {
	Name                string  `mapstructure:"name"`
	CapabilityTier      string  `mapstructure:"capability_tier"`
	BaseURL             string  `mapstructure:"base_url"`
	BaseCostPer1kTokens float64 `mapstructure:"base_cost_per_1k_tokens"`
	NominalMaxLatencyMs int64   `mapstructure:"nominal_max_latency_ms"`
	SupportsStructured  bool    `mapstructure:"supports_structured_output"`
	SupportsStreaming   bool    `mapstructure:"supports_streaming"`
}

// PipelineConfig holds map-phase executor policy defaults.
type PipelineConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	ChunkSizeChars int           `mapstructure:"chunk_size_chars"`
	OverlapChars   int           `mapstructure:"overlap_chars"`
	CheckpointDir  string        `mapstructure:"checkpoint_dir"`
	ReduceBatch    int           `mapstructure:"reduce_batch_size"`
	ReduceThreshold int          `mapstructure:"reduce_threshold"`
}

// ModerationConfig holds moderation-service-specific tuning.
type ModerationConfig struct {
	MaxLatencyMs  int64  `mapstructure:"max_latency_ms"`
	DefaultLocale string `mapstructure:"default_locale"`
}

// TelemetryConfig holds telemetry store persistence locations.
type TelemetryConfig struct {
	Dir                string `mapstructure:"dir"`
	TelemetryFile      string `mapstructure:"telemetry_file"`
	DecisionLogFile    string `mapstructure:"decision_log_file"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("config")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/modelrouter")
	}

	viperCfg.SetEnvPrefix("MODELROUTER")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	applySpecEnvOverrides(&config)

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// applySpecEnvOverrides applies the literal (unprefixed) environment
// variables named in the external-interfaces contract: REMOTE_CACHE_URL,
// REMOTE_CACHE_TOKEN, RATE_LIMIT_MAX_REQUESTS, RATE_LIMIT_WINDOW_SECONDS.
// These take precedence over file/MODELROUTER_-prefixed values because
// they are the documented integration surface for operators.
func applySpecEnvOverrides(config *Config) {
	if url := os.Getenv("REMOTE_CACHE_URL"); url != "" {
		config.Cache.RemoteURL = url
	}

	if token := os.Getenv("REMOTE_CACHE_TOKEN"); token != "" {
		config.Cache.RemoteToken = token
	}

	if raw := os.Getenv("RATE_LIMIT_MAX_REQUESTS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			config.RateLimit.MaxRequests = v
		}
	}

	if raw := os.Getenv("RATE_LIMIT_WINDOW_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			config.RateLimit.WindowSeconds = v
		}
	}
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("server.enabled", true)
	viperCfg.SetDefault("server.port", defaultPort)
	viperCfg.SetDefault("server.host", defaultHost)
	viperCfg.SetDefault("server.read_timeout", "30s")
	viperCfg.SetDefault("server.write_timeout", "30s")
	viperCfg.SetDefault("server.idle_timeout", "60s")

	viperCfg.SetDefault("cache.default_ttl", DefaultCacheTTL.String())
	viperCfg.SetDefault("cache.sweep_interval", DefaultCacheSweepInterval.String())
	viperCfg.SetDefault("cache.remote_timeout", DefaultRemoteCacheTimeout.String())

	viperCfg.SetDefault("rate_limit.max_requests", defaultRLMaxRequests)
	viperCfg.SetDefault("rate_limit.window_seconds", defaultRLWindowSecs)

	viperCfg.SetDefault("router.default_backend", DefaultBackendName)
	viperCfg.SetDefault("router.state_dir", "")
	viperCfg.SetDefault("router.decision_log_size", DefaultDecisionLogSize)
	viperCfg.SetDefault("router.backends", defaultBackendTableRaw())

	viperCfg.SetDefault("pipeline.concurrency", DefaultPipelineConcurrency)
	viperCfg.SetDefault("pipeline.max_retries", DefaultPipelineMaxRetries)
	viperCfg.SetDefault("pipeline.base_delay", DefaultPipelineBaseDelay.String())
	viperCfg.SetDefault("pipeline.chunk_size_chars", DefaultChunkSizeChars)
	viperCfg.SetDefault("pipeline.overlap_chars", DefaultOverlapChars)
	viperCfg.SetDefault("pipeline.checkpoint_dir", "")
	viperCfg.SetDefault("pipeline.reduce_batch_size", DefaultReduceBatchSize)
	viperCfg.SetDefault("pipeline.reduce_threshold", DefaultReduceThreshold)

	viperCfg.SetDefault("moderation.max_latency_ms", DefaultModerationMaxLatencyMs)
	viperCfg.SetDefault("moderation.default_locale", DefaultModerationLocale)

	viperCfg.SetDefault("telemetry.dir", "")
	viperCfg.SetDefault("telemetry.telemetry_file", DefaultTelemetryFile)
	viperCfg.SetDefault("telemetry.decision_log_file", DefaultDecisionLogFile)

	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "json")
	viperCfg.SetDefault("logging.output", "stdout")
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if config.Server.Enabled && (config.Server.Port <= 0 || config.Server.Port > maxPort) {
		return fmt.Errorf("%w: %d", ErrInvalidPort, config.Server.Port)
	}

	if config.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidConcurrency, config.Pipeline.Concurrency)
	}

	if config.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxRetries, config.Pipeline.MaxRetries)
	}

	if config.Pipeline.ChunkSizeChars <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, config.Pipeline.ChunkSizeChars)
	}

	if config.Pipeline.OverlapChars >= config.Pipeline.ChunkSizeChars {
		return fmt.Errorf("%w: overlap=%d size=%d",
			ErrInvalidOverlap, config.Pipeline.OverlapChars, config.Pipeline.ChunkSizeChars)
	}

	if config.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRateLimitMax, config.RateLimit.MaxRequests)
	}

	if config.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRateLimitWindow, config.RateLimit.WindowSeconds)
	}

	if config.Router.DefaultBackend == "" {
		return ErrNoDefaultBackend
	}

	if len(config.Router.Backends) > 0 && !hasBackend(config.Router.Backends, config.Router.DefaultBackend) {
		return fmt.Errorf("%w: %q", ErrDefaultBackendMissing, config.Router.DefaultBackend)
	}

	return nil
}

func hasBackend(backends []BackendDescriptorConfig, name string) bool {
	for _, b := range backends {
		if b.Name == name {
			return true
		}
	}

	return false
}
