package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quillforge/modelrouter/pkg/statsui"
)

// StatsSource is the subset of statsui.Projector the router_stats tool
// depends on.
type StatsSource interface {
	Project() statsui.Snapshot
}

func (s *Server) handleRouterStats(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	_ RouterStatsInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if s.deps.Stats == nil {
		return errorResult(errMissingCollaborator("router_stats", "Stats"))
	}

	return jsonResult(s.deps.Stats.Project())
}
