package handler

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"support-agent/internal/domain"
	"support-agent/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// SupportService is the slice of usecase.Service the HTTP surface needs.
type SupportService interface {
	Stream(ctx context.Context, in usecase.ProcessInput) iter.Seq2[domain.Snapshot, error]
	Reset(ctx context.Context, sessionKey string) error
}

type processRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
}

type processResponse struct {
	Response  string         `json:"response"`
	Category  string         `json:"category"`
	Sentiment string         `json:"sentiment"`
	Route     string         `json:"route"`
	SessionID string         `json:"sessionId"`
	Stages    []domain.Stage `json:"stages"`
}

type resetRequest struct {
	SessionID string `json:"sessionId"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type Handler struct {
	svc    SupportService
	logger *zap.Logger
}

func NewHandler(svc SupportService, logger *zap.Logger) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: service must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}, nil
}

// Handle routes API Gateway proxy events to process and reset.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.logger.With(zap.String("correlation_id", correlationID), zap.String("path", event.Path))

	path := strings.TrimRight(event.Path, "/")
	switch {
	case strings.HasSuffix(path, "/process"):
		if event.HTTPMethod != http.MethodPost {
			return jsonResponse(http.StatusMethodNotAllowed, correlationID, errorResponse{Error: "METHOD_NOT_ALLOWED", Message: "use POST"}), nil
		}
		return h.process(ctx, log, correlationID, event.Body), nil
	case strings.HasSuffix(path, "/reset"):
		if event.HTTPMethod != http.MethodPost {
			return jsonResponse(http.StatusMethodNotAllowed, correlationID, errorResponse{Error: "METHOD_NOT_ALLOWED", Message: "use POST"}), nil
		}
		return h.reset(ctx, log, correlationID, event.Body), nil
	default:
		return jsonResponse(http.StatusNotFound, correlationID, errorResponse{Error: "NOT_FOUND", Message: "unknown route"}), nil
	}
}

func (h *Handler) process(ctx context.Context, log *zap.Logger, correlationID, body string) events.APIGatewayProxyResponse {
	var req processRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return invalidBody(correlationID)
	}

	out := processResponse{SessionID: req.SessionID}
	var final domain.Snapshot
	for snap, err := range h.svc.Stream(ctx, usecase.ProcessInput{Query: req.Query, SessionKey: req.SessionID}) {
		if err != nil {
			log.Warn("process failed", zap.String("code", string(usecase.CodeOf(err))), zap.Error(err))
			return errorResult(correlationID, err)
		}
		out.Stages = append(out.Stages, snap.Stage)
		final = snap
	}
	if !final.Final {
		return errorResult(correlationID, errors.New("handler: stream ended without a final snapshot"))
	}

	out.Response = final.Response
	out.Category = string(final.Category)
	out.Sentiment = string(final.Sentiment)
	out.Route = string(final.Route)
	out.SessionID = final.SessionKey
	log.Info("process completed", zap.String("session_id", final.SessionKey), zap.String("route", out.Route))
	return jsonResponse(http.StatusOK, correlationID, out)
}

func (h *Handler) reset(ctx context.Context, log *zap.Logger, correlationID, body string) events.APIGatewayProxyResponse {
	var req resetRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return invalidBody(correlationID)
	}
	if err := h.svc.Reset(ctx, req.SessionID); err != nil {
		log.Warn("reset failed", zap.String("code", string(usecase.CodeOf(err))), zap.Error(err))
		return errorResult(correlationID, err)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusNoContent,
		Headers:    map[string]string{correlationHeader: correlationID},
	}
}

func invalidBody(correlationID string) events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{
		Error:   string(usecase.ErrorInvalidInput),
		Message: "request body must be valid JSON",
	})
}

func errorResult(correlationID string, err error) events.APIGatewayProxyResponse {
	code := usecase.CodeOf(err)
	return jsonResponse(statusFor(code), correlationID, errorResponse{
		Error:   string(code),
		Message: usecase.UserMessage(err),
	})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorCompletion:
		return http.StatusBadGateway
	case usecase.ErrorCanceled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func jsonResponse(status int, correlationID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
