package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quillforge/modelrouter/pkg/moderation"
)

// Moderator is the subset of moderation.Service the moderate tool depends
// on, declared narrowly so this package does not import moderation's full
// construction surface.
type Moderator interface {
	Moderate(ctx context.Context, clientID string, req moderation.Request) (moderation.Response, error)
}

// mcpClientID is the synthetic rate-limiter identity used for MCP-driven
// moderation calls: an agent host is one logical caller regardless of
// which downstream user prompted it.
const mcpClientID = "mcp-tool-caller"

func (s *Server) handleModerate(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input ModerateInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.Message == "" {
		return errorResult(ErrEmptyMessage)
	}

	if s.deps.Moderator == nil {
		return errorResult(errMissingCollaborator("moderate", "Moderator"))
	}

	resp, err := s.deps.Moderator.Moderate(ctx, mcpClientID, moderation.Request{
		Message: input.Message,
		Locale:  input.Locale,
	})
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(resp)
}
