package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool name constants.
const (
	ToolNameModerate       = "moderate"
	ToolNameRouterStats    = "router_stats"
	ToolNamePipelineStatus = "pipeline_status"
)

// ErrEmptyMessage indicates the moderate tool's message parameter is empty.
var ErrEmptyMessage = errors.New("message parameter is required and must not be empty")

// ModerateInput is the input schema for the moderate tool.
type ModerateInput struct {
	Message string `json:"message"          jsonschema:"the user message to classify for moderation"`
	Locale  string `json:"locale,omitempty" jsonschema:"optional BCP-47-ish locale hint (default: the server's configured locale)"`
}

// RouterStatsInput is the input schema for the router_stats tool; it takes
// no parameters, matching GET /model-router/stats.
type RouterStatsInput struct{}

// PipelineStatusInput is the input schema for the pipeline_status tool; it
// takes no parameters.
type PipelineStatusInput struct{}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, ToolOutput{Data: value}, nil
}
