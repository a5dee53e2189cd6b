// Package mcp exposes the support pipeline as Model Context Protocol tools
// so LLM agents can file queries on a customer's behalf.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"support-agent/internal/domain"
	"support-agent/internal/usecase"
)

type SupportService interface {
	Process(ctx context.Context, in usecase.ProcessInput) (domain.Snapshot, error)
	Reset(ctx context.Context, sessionKey string) error
	History(ctx context.Context, sessionKey string) ([]domain.ConversationTurn, error)
}

// NewServer builds an MCP server with every support tool registered.
func NewServer(svc SupportService, version string, logger *zap.Logger) (*mcpserver.MCPServer, error) {
	h, err := NewHandlers(svc, logger)
	if err != nil {
		return nil, err
	}
	server := mcpserver.NewMCPServer("support-agent", version)
	RegisterTools(server, h)
	return server, nil
}

// RegisterTools registers process_query, reset_session and get_history.
func RegisterTools(server *mcpserver.MCPServer, h *Handlers) {
	server.AddTool(mcp.Tool{
		Name:        "process_query",
		Description: "Classify a customer support query by topic and sentiment, route it, and return the reply. Pass session_id to continue a conversation; omit it to start a new one.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The customer's message",
				},
				"session_id": map[string]any{
					"type":        "string",
					"description": "Conversation to continue (optional)",
				},
			},
			Required: []string{"query"},
		},
	}, h.ProcessQuery)

	server.AddTool(mcp.Tool{
		Name:        "reset_session",
		Description: "Forget the stored history of a support conversation.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{
					"type":        "string",
					"description": "Conversation to clear",
				},
			},
			Required: []string{"session_id"},
		},
	}, h.ResetSession)

	server.AddTool(mcp.Tool{
		Name:        "get_history",
		Description: "Return the stored turns of a support conversation, oldest first.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{
					"type":        "string",
					"description": "Conversation to read",
				},
			},
			Required: []string{"session_id"},
		},
	}, h.GetHistory)
}
