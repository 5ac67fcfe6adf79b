package cacheadapter

import "github.com/quillforge/modelrouter/pkg/config"

// NewFromConfig selects and constructs the process-wide CacheAdapter per
// spec §4.1: "if remote credentials are present at init, instantiate
// remote; else instantiate in-process. A single adapter is installed
// process-wide."
//
// The returned Cache also satisfies observability.CacheStatsProvider, so
// callers can register it directly with observability.RegisterCacheMetrics
// under the appropriate variant slot (memory or remote).
func NewFromConfig(cfg config.CacheConfig) Cache {
	if cfg.RemoteURL != "" && cfg.RemoteToken != "" {
		return NewRemoteCache(cfg.RemoteURL, cfg.RemoteToken, cfg.RemoteTimeout)
	}

	return NewMemoryCache(cfg.SweepInterval)
}
