package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// PipelineStatus summarizes an in-progress or completed chunked map/reduce
// run, read from its checkpoint document.
type PipelineStatus struct {
	Fingerprint string `json:"fingerprint"`
	TotalChunks int    `json:"total_chunks"`
	Completed   int    `json:"completed"`
	Failed      int    `json:"failed"`
	Done        bool   `json:"done"`
}

// PipelineStatusSource is the subset of the pipeline CLI's checkpoint
// reader the pipeline_status tool depends on. Declared narrowly because
// the checkpoint document's result type is generic over the caller's
// ChunkResult, which this package has no reason to know about.
type PipelineStatusSource interface {
	PipelineStatus() (PipelineStatus, error)
}

func (s *Server) handlePipelineStatus(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	_ PipelineStatusInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if s.deps.PipelineStatus == nil {
		return errorResult(errMissingCollaborator("pipeline_status", "PipelineStatus"))
	}

	status, err := s.deps.PipelineStatus.PipelineStatus()
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(status)
}

func errMissingCollaborator(tool, field string) error {
	return fmt.Errorf("mcp: %s tool called but ServerDeps.%s was not configured", tool, field)
}
