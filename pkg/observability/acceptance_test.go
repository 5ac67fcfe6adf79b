package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/quillforge/modelrouter/pkg/observability"
)

// acceptanceSpanCount is the expected number of spans in the acceptance test
// (root + chunk + invoke).
const acceptanceSpanCount = 3

// acceptanceChunkCount is the simulated chunk count used in log assertions.
const acceptanceChunkCount = 3

// TestAcceptance_EndToEnd verifies all three observability signals (traces,
// metrics, structured logs with trace context) work together in a single
// simulated pipeline run.
func TestAcceptance_EndToEnd(t *testing.T) {
	t.Parallel()

	// Setup: in-memory trace exporter.
	spanExporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spanExporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	tracer := tp.Tracer("modelrouter")

	// Setup: in-memory metric reader.
	metricReader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(metricReader))
	meter := mp.Meter("modelrouter")

	red, err := observability.NewREDMetrics(meter)
	require.NoError(t, err)

	pipeline, err := observability.NewPipelineMetrics(meter)
	require.NoError(t, err)

	memoryCache := &stubCacheStats{hits: 100, misses: 10}
	remoteCache := &stubCacheStats{hits: 0, misses: 0}
	require.NoError(t, observability.RegisterCacheMetrics(meter, memoryCache, remoteCache))

	// Setup: structured logger with trace context.
	var logBuf bytes.Buffer

	innerHandler := slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	tracingHandler := observability.NewTracingHandler(innerHandler, "modelrouter", "test", observability.ModeCLI)
	logger := slog.New(tracingHandler)

	// Simulate pipeline: root span, child spans, metrics, logs.
	ctx, rootSpan := tracer.Start(context.Background(), "modelrouter.pipeline.run")

	_, chunkSpan := tracer.Start(ctx, "modelrouter.pipeline.chunk")
	chunkSpan.End()

	_, invokeSpan := tracer.Start(ctx, "modelrouter.router.invoke")
	invokeSpan.End()

	// Record metrics within the trace context.
	red.RecordRequest(ctx, "pipeline.run", "ok", time.Second)

	pipeline.RecordChunk(ctx, "completed", 1500*time.Millisecond)
	pipeline.RecordChunk(ctx, "completed", 900*time.Millisecond)
	pipeline.RecordChunk(ctx, "failed", 3*time.Second)
	pipeline.RecordRetry(ctx)
	pipeline.RecordFallback(ctx)

	// Emit a log line within the trace context.
	logger.InfoContext(ctx, "pipeline.complete", "chunks", acceptanceChunkCount)

	rootSpan.End()

	// Assert: Traces.
	spans := spanExporter.GetSpans()
	require.Len(t, spans, acceptanceSpanCount, "expected root + 2 child spans")

	spanNames := make(map[string]bool, len(spans))
	for _, s := range spans {
		spanNames[s.Name] = true
	}

	assert.True(t, spanNames["modelrouter.pipeline.run"], "root span should exist")
	assert.True(t, spanNames["modelrouter.pipeline.chunk"], "chunk span should exist")
	assert.True(t, spanNames["modelrouter.router.invoke"], "invoke span should exist")

	// All spans share the same trace ID.
	traceID := spans[0].SpanContext.TraceID()
	for _, s := range spans[1:] {
		assert.Equal(t, traceID, s.SpanContext.TraceID(),
			"span %q should share trace ID", s.Name)
	}

	// Assert: Metrics.
	var rm metricdata.ResourceMetrics

	err = metricReader.Collect(ctx, &rm)
	require.NoError(t, err)

	reqTotal := findMetric(rm, "modelrouter.requests.total")
	require.NotNil(t, reqTotal, "request counter should be recorded")

	reqDuration := findMetric(rm, "modelrouter.request.duration.seconds")
	require.NotNil(t, reqDuration, "duration histogram should be recorded")

	chunksTotal := findMetric(rm, "modelrouter.pipeline.chunks.total")
	require.NotNil(t, chunksTotal, "pipeline chunks counter should be recorded")

	chunkDuration := findMetric(rm, "modelrouter.pipeline.chunk.duration.seconds")
	require.NotNil(t, chunkDuration, "chunk duration histogram should be recorded")

	retriesTotal := findMetric(rm, "modelrouter.pipeline.retries.total")
	require.NotNil(t, retriesTotal, "retries counter should be recorded")

	fallbacksTotal := findMetric(rm, "modelrouter.pipeline.fallbacks.total")
	require.NotNil(t, fallbacksTotal, "fallbacks counter should be recorded")

	cacheHits := findMetric(rm, "modelrouter.cache.hits")
	require.NotNil(t, cacheHits, "cache hits gauge should be recorded")

	cacheMisses := findMetric(rm, "modelrouter.cache.misses")
	require.NotNil(t, cacheMisses, "cache misses gauge should be recorded")

	// Assert: Logs contain trace_id.
	var logRecord map[string]any

	err = json.Unmarshal(logBuf.Bytes(), &logRecord)
	require.NoError(t, err)

	assert.Equal(t, traceID.String(), logRecord["trace_id"],
		"log line should contain the active trace_id")
	assert.Contains(t, logRecord, "span_id",
		"log line should contain span_id")
	assert.Equal(t, "modelrouter", logRecord["service"],
		"log line should contain service name")

	chunks, ok := logRecord["chunks"].(float64)
	require.True(t, ok, "chunks should be a number")
	assert.InDelta(t, acceptanceChunkCount, chunks, 0,
		"log line should contain custom attributes")
}
