// Package handler exposes the chat gateway as a Lambda-backed HTTP endpoint
// and maps service outcomes onto the three wire-level response shapes.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"chat-gateway/internal/domain"
	"chat-gateway/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// ChatUseCase is the service surface the handler depends on.
type ChatUseCase interface {
	Send(ctx context.Context, in usecase.SendInput) (usecase.SendOutput, error)
}

// chatRequest is the wire-level request body.
type chatRequest struct {
	SessionID int64                     `json:"sessionId"`
	SubjectID string                    `json:"subjectId,omitempty"`
	Message   string                    `json:"message"`
	History   []domain.ConversationTurn `json:"history"`
}

// chatResponse is the success shape. Remaining is -1 for unlimited sessions.
type chatResponse struct {
	Success   bool   `json:"success"`
	Reply     string `json:"reply"`
	Remaining int    `json:"remaining"`
}

// errorResponse is the failure shape. Remaining is present only for
// rate-limited responses, where it is always zero.
type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Remaining *int   `json:"remaining,omitempty"`
}

// Handler adapts API Gateway proxy events to the chat service.
type Handler struct {
	service ChatUseCase
}

// NewHandler creates a Handler for the given service.
func NewHandler(service ChatUseCase) (*Handler, error) {
	if service == nil {
		return nil, errors.New("handler: service must not be nil")
	}
	return &Handler{service: service}, nil
}

// Handle processes one proxy event. Service failures become structured JSON
// error bodies; the returned error is always nil so API Gateway renders the
// body instead of a bare 502.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := resolveCorrelationID(event.Headers)

	var req chatRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return respondError(http.StatusBadRequest, "Invalid request body.", nil, correlationID), nil
	}
	if req.SessionID <= 0 {
		return respondError(http.StatusBadRequest, "A valid session id is required.", nil, correlationID), nil
	}

	subjectID := req.SubjectID
	if subjectID == "" {
		// Anonymous callers get a throwaway identity; their quota window
		// starts fresh every request.
		subjectID = newUUID()
	}

	out, err := h.service.Send(ctx, usecase.SendInput{
		SessionID: req.SessionID,
		SubjectID: subjectID,
		Message:   req.Message,
		History:   req.History,
	})
	if err != nil {
		return mapError(err, correlationID), nil
	}

	return respondJSON(http.StatusOK, chatResponse{
		Success:   true,
		Reply:     out.Reply,
		Remaining: out.Remaining,
	}, correlationID), nil
}

func mapError(err error, correlationID string) events.APIGatewayProxyResponse {
	var svcErr *usecase.Error
	if !errors.As(err, &svcErr) {
		return respondError(http.StatusInternalServerError,
			"An unexpected error occurred. Please try again later.", nil, correlationID)
	}

	switch svcErr.Code {
	case usecase.ErrorRateLimited:
		zero := 0
		return respondError(http.StatusTooManyRequests, svcErr.UserMessage(), &zero, correlationID)
	case usecase.ErrorInvalidInput, usecase.ErrorSessionLimit:
		return respondError(http.StatusBadRequest, svcErr.UserMessage(), nil, correlationID)
	case usecase.ErrorUpstream, usecase.ErrorContent:
		return respondError(http.StatusBadGateway, svcErr.UserMessage(), nil, correlationID)
	default:
		return respondError(http.StatusInternalServerError, svcErr.UserMessage(), nil, correlationID)
	}
}

func respondError(status int, message string, remaining *int, correlationID string) events.APIGatewayProxyResponse {
	return respondJSON(status, errorResponse{
		Success:   false,
		Error:     message,
		Remaining: remaining,
	}, correlationID)
}

func respondJSON(status int, body any, correlationID string) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		raw = []byte(`{"success":false,"error":"internal error"}`)
		status = http.StatusInternalServerError
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(raw),
	}
}

func resolveCorrelationID(headers map[string]string) string {
	for k, v := range headers {
		if http.CanonicalHeaderKey(k) == correlationHeader && v != "" {
			return v
		}
	}
	return newUUID()
}

var newUUID = func() string {
	return uuid.NewString()
}
