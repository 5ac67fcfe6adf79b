package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricCacheHits   = "modelrouter.cache.hits"
	metricCacheMisses = "modelrouter.cache.misses"

	attrCache = "cache"
)

// CacheStatsProvider exposes cumulative hit/miss counters for a CacheAdapter
// variant. Implemented by the memory and remote cache adapters.
type CacheStatsProvider interface {
	CacheHits() int64
	CacheMisses() int64
}

// RegisterCacheMetrics registers observable gauges reporting cumulative
// hits/misses for the memory and remote cache variants. Either provider may
// be nil (e.g. when only one variant is installed process-wide).
func RegisterCacheMetrics(mt metric.Meter, memory, remote CacheStatsProvider) error {
	hits, err := mt.Int64ObservableGauge(metricCacheHits,
		metric.WithDescription("Cumulative cache hits by variant"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", metricCacheHits, err)
	}

	misses, err := mt.Int64ObservableGauge(metricCacheMisses,
		metric.WithDescription("Cumulative cache misses by variant"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", metricCacheMisses, err)
	}

	_, err = mt.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		observeCacheStats(obs, hits, misses, "memory", memory)
		observeCacheStats(obs, hits, misses, "remote", remote)

		return nil
	}, hits, misses)
	if err != nil {
		return fmt.Errorf("register cache metrics callback: %w", err)
	}

	return nil
}

func observeCacheStats(
	obs metric.Observer,
	hits, misses metric.Int64Observable,
	variant string,
	provider CacheStatsProvider,
) {
	if provider == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrCache, variant))
	obs.ObserveInt64(hits, provider.CacheHits(), attrs)
	obs.ObserveInt64(misses, provider.CacheMisses(), attrs)
}
