package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricChunksTotal    = "modelrouter.pipeline.chunks.total"
	metricChunkDuration  = "modelrouter.pipeline.chunk.duration.seconds"
	metricRetriesTotal   = "modelrouter.pipeline.retries.total"
	metricFallbacksTotal = "modelrouter.pipeline.fallbacks.total"

	attrOutcome = "outcome"
)

// PipelineMetrics holds OTel instruments for map-phase pipeline execution.
type PipelineMetrics struct {
	chunksTotal    metric.Int64Counter
	chunkDuration  metric.Float64Histogram
	retriesTotal   metric.Int64Counter
	fallbacksTotal metric.Int64Counter
}

// NewPipelineMetrics creates pipeline metric instruments from the given meter.
func NewPipelineMetrics(mt metric.Meter) (*PipelineMetrics, error) {
	chunks, err := mt.Int64Counter(metricChunksTotal,
		metric.WithDescription("Total chunks processed by outcome (completed, failed)"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricChunksTotal, err)
	}

	chunkDur, err := mt.Float64Histogram(metricChunkDuration,
		metric.WithDescription("Per-chunk map-function duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricChunkDuration, err)
	}

	retries, err := mt.Int64Counter(metricRetriesTotal,
		metric.WithDescription("Total per-chunk retry attempts"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRetriesTotal, err)
	}

	fallbacks, err := mt.Int64Counter(metricFallbacksTotal,
		metric.WithDescription("Total degraded-fallback invocations"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFallbacksTotal, err)
	}

	return &PipelineMetrics{
		chunksTotal:    chunks,
		chunkDuration:  chunkDur,
		retriesTotal:   retries,
		fallbacksTotal: fallbacks,
	}, nil
}

// RecordChunk records the terminal outcome and duration of one chunk's processing.
// Safe to call on a nil receiver (no-op).
func (pm *PipelineMetrics) RecordChunk(ctx context.Context, outcome string, d time.Duration) {
	if pm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrOutcome, outcome))
	pm.chunksTotal.Add(ctx, 1, attrs)
	pm.chunkDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordRetry increments the retry counter. Safe to call on a nil receiver.
func (pm *PipelineMetrics) RecordRetry(ctx context.Context) {
	if pm == nil {
		return
	}

	pm.retriesTotal.Add(ctx, 1)
}

// RecordFallback increments the fallback counter. Safe to call on a nil receiver.
func (pm *PipelineMetrics) RecordFallback(ctx context.Context) {
	if pm == nil {
		return
	}

	pm.fallbacksTotal.Add(ctx, 1)
}
