// Package mcp implements a Model Context Protocol server exposing the
// Model Router, Moderation Service, and Stats Projector as MCP tools over
// stdio transport, so an agent host can drive moderation and inspect
// routing/telemetry state directly.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quillforge/modelrouter/pkg/observability"
)

const (
	serverName    = "modelrouter"
	serverVersion = "1.0.0"

	toolCount = 3
)

// ServerDeps holds injectable dependencies for the MCP server. Zero-value
// fields use production defaults.
type ServerDeps struct {
	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Metrics is an optional RED metrics recorder. Nil disables per-tool metrics.
	Metrics *observability.REDMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer

	// Moderator is the subset of moderation.Service the moderate tool calls.
	Moderator Moderator

	// Stats is the subset of statsui.Projector the router_stats tool calls.
	Stats StatsSource

	// PipelineStatus reports progress of the most recent/active pipeline run,
	// for the pipeline_status tool.
	PipelineStatus PipelineStatusSource
}

// Server wraps the MCP SDK server with modelrouter tool registrations.
type Server struct {
	inner   *mcpsdk.Server
	mu      sync.RWMutex
	tools   []string
	metrics *observability.REDMetrics
	tracer  trace.Tracer
	deps    ServerDeps
}

// NewServer creates a new MCP server with moderate, router_stats, and
// pipeline_status tools registered.
func NewServer(deps ServerDeps) *Server {
	opts := &mcpsdk.ServerOptions{}
	if deps.Logger != nil {
		opts.Logger = deps.Logger
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{Name: serverName, Version: serverVersion},
		opts,
	)

	srv := &Server{
		inner:   inner,
		tools:   make([]string, 0, toolCount),
		metrics: deps.Metrics,
		tracer:  deps.Tracer,
		deps:    deps,
	}

	srv.registerTools()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the
// context is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	if err := s.inner.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// RunWithTransport starts the MCP server on the given transport. It blocks
// until the context is canceled or the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	if err := s.inner.Run(ctx, transport); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameModerate,
		Description: moderateToolDescription,
	}, withMetrics(s.metrics, ToolNameModerate, withTracing(s.tracer, ToolNameModerate, s.handleModerate)))
	s.trackTool(ToolNameModerate)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameRouterStats,
		Description: routerStatsToolDescription,
	}, withMetrics(s.metrics, ToolNameRouterStats, withTracing(s.tracer, ToolNameRouterStats, s.handleRouterStats)))
	s.trackTool(ToolNameRouterStats)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNamePipelineStatus,
		Description: pipelineStatusToolDescription,
	}, withMetrics(s.metrics, ToolNamePipelineStatus, withTracing(s.tracer, ToolNamePipelineStatus, s.handlePipelineStatus)))
	s.trackTool(ToolNamePipelineStatus)
}

const (
	mcpSpanPrefix  = "mcp."
	traceIDMetaKey = "trace_id"
)

// withTracing wraps an MCP tool handler to create an OTel span per
// invocation and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			traceContent := &mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())}
			result.Content = append(result.Content, traceContent)
		}

		return result, output, err
	}
}

// withMetrics wraps an MCP tool handler to record RED metrics per invocation.
func withMetrics[Input any](
	metrics *observability.REDMetrics,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if metrics == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		decInflight := metrics.TrackInflight(ctx, "mcp."+toolName)
		defer decInflight()

		result, output, err := handler(ctx, req, input)

		status := "ok"
		if err != nil || (result != nil && result.IsError) {
			status = "error"
		}

		metrics.RecordRequest(ctx, "mcp."+toolName, status, time.Since(start))

		return result, output, err
	}
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

const (
	moderateToolDescription = "Classify a user message for moderation (severity, flagged, categories) " +
		"via the Moderation Service. Accepts a message and optional locale."

	routerStatsToolDescription = "Return Model Router and Telemetry Store statistics: summary, model usage, " +
		"task/priority distribution, performance, cost analysis, recent decisions, and a model comparison matrix."

	pipelineStatusToolDescription = "Return the status of the most recent chunked map/reduce pipeline run: " +
		"total/completed/failed chunk counts and whether it finished."
)
