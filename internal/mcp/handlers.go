package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"support-agent/internal/usecase"
)

type Handlers struct {
	svc    SupportService
	logger *zap.Logger
}

func NewHandlers(svc SupportService, logger *zap.Logger) (*Handlers, error) {
	if svc == nil {
		return nil, errors.New("mcp: service must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{svc: svc, logger: logger}, nil
}

type processResult struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
	Category  string `json:"category"`
	Sentiment string `json:"sentiment"`
	Route     string `json:"route"`
}

type historyTurn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Category  string `json:"category,omitempty"`
	Sentiment string `json:"sentiment,omitempty"`
	CreatedAt string `json:"created_at"`
}

func (h *Handlers) ProcessQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	sessionID := request.GetString("session_id", "")

	snap, err := h.svc.Process(ctx, usecase.ProcessInput{Query: query, SessionKey: sessionID})
	if err != nil {
		h.logger.Warn("process_query failed", zap.String("code", string(usecase.CodeOf(err))), zap.Error(err))
		return toolError(err), nil
	}

	return jsonResult(processResult{
		SessionID: snap.SessionKey,
		Response:  snap.Response,
		Category:  string(snap.Category),
		Sentiment: string(snap.Sentiment),
		Route:     string(snap.Route),
	})
}

func (h *Handlers) ResetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id argument is required and must be a string"), nil
	}
	if err := h.svc.Reset(ctx, sessionID); err != nil {
		h.logger.Warn("reset_session failed", zap.Error(err))
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("session %s cleared", sessionID)), nil
}

func (h *Handlers) GetHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id argument is required and must be a string"), nil
	}
	turns, err := h.svc.History(ctx, sessionID)
	if err != nil {
		h.logger.Warn("get_history failed", zap.Error(err))
		return toolError(err), nil
	}

	out := make([]historyTurn, 0, len(turns))
	for _, t := range turns {
		ht := historyTurn{
			Role:      string(t.Role),
			Content:   t.Content,
			CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
		}
		if t.Metadata != nil {
			ht.Category = string(t.Metadata.Category)
			ht.Sentiment = string(t.Metadata.Sentiment)
		}
		out = append(out, ht)
	}
	return jsonResult(map[string]any{"session_id": sessionID, "turns": out})
}

// toolError reports pipeline failures as tool errors. Provider detail stays
// in the logs.
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", usecase.CodeOf(err), usecase.UserMessage(err)))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

var _ SupportService = (*usecase.Service)(nil)
