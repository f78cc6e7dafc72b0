// Package handler adapts API Gateway proxy events to the chat service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"landsale-agent/internal/domain"
	"landsale-agent/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// ChatService is the subset of the chat use case consumed by the handler.
type ChatService interface {
	SendMessage(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	Reset(ctx context.Context, conversationID string) error
	Publish(ctx context.Context, in usecase.PublishInput) (usecase.PublishOutput, error)
}

type Handler struct {
	svc ChatService
}

func NewHandler(svc ChatService) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: chat service must not be nil")
	}
	return &Handler{svc: svc}, nil
}

type attachmentPayload struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type chatRequest struct {
	ConversationID string             `json:"conversationId"`
	Message        string             `json:"message"`
	Model          string             `json:"model,omitempty"`
	Attachment     *attachmentPayload `json:"attachment,omitempty"`
}

type chatResponse struct {
	ConversationID string                 `json:"conversationId"`
	Message        string                 `json:"message"`
	CleanText      string                 `json:"cleanText"`
	Suggestions    []string               `json:"suggestions,omitempty"`
	Properties     []domain.PropertyCard  `json:"properties,omitempty"`
	ListingPreview *domain.ListingPreview `json:"listingPreview,omitempty"`
	PropertyData   *domain.PropertyDraft  `json:"propertyData,omitempty"`
	Draft          domain.PropertyDraft   `json:"draft"`
	ListingMode    bool                   `json:"listingMode"`
	ReadyToPublish bool                   `json:"readyToPublish"`
	UsedFallback   bool                   `json:"usedFallback,omitempty"`
}

type resetRequest struct {
	ConversationID string `json:"conversationId"`
}

type publishRequest struct {
	ConversationID string   `json:"conversationId"`
	UserID         string   `json:"userId"`
	ImageURLs      []string `json:"imageUrls,omitempty"`
}

type publishResponse struct {
	ListingID string `json:"listingId"`
	Slug      string `json:"slug"`
	URL       string `json:"url"`
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Handle routes an API Gateway proxy event to the matching chat operation.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := correlationIDFrom(req.Headers)

	if req.HTTPMethod == http.MethodOptions {
		return respond(http.StatusNoContent, nil, correlationID), nil
	}
	if req.HTTPMethod != http.MethodPost {
		return respondError(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only POST is supported", correlationID), nil
	}

	switch routeOf(req.Path) {
	case "/chat":
		return h.handleChat(ctx, req.Body, correlationID), nil
	case "/chat/reset":
		return h.handleReset(ctx, req.Body, correlationID), nil
	case "/chat/publish":
		return h.handlePublish(ctx, req.Body, correlationID), nil
	default:
		return respondError(http.StatusNotFound, "NOT_FOUND", "unknown route", correlationID), nil
	}
}

func (h *Handler) handleChat(ctx context.Context, body, correlationID string) events.APIGatewayProxyResponse {
	var req chatRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return respondError(http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON", correlationID)
	}

	in := usecase.ChatInput{
		ConversationID: req.ConversationID,
		Text:           req.Message,
		Model:          req.Model,
	}
	if req.Attachment != nil {
		in.Attachment = &domain.Attachment{
			MimeType: req.Attachment.MimeType,
			Data:     req.Attachment.Data,
		}
	}

	out, err := h.svc.SendMessage(ctx, in)
	if err != nil {
		return errorTo(err, correlationID)
	}
	return respond(http.StatusOK, chatResponse{
		ConversationID: out.ConversationID,
		Message:        out.Text,
		CleanText:      out.CleanText,
		Suggestions:    out.Suggestions,
		Properties:     out.Properties,
		ListingPreview: out.ListingPreview,
		PropertyData:   out.PropertyData,
		Draft:          out.Draft,
		ListingMode:    out.ListingMode,
		ReadyToPublish: out.ReadyToPublish,
		UsedFallback:   out.UsedFallback,
	}, correlationID)
}

func (h *Handler) handleReset(ctx context.Context, body, correlationID string) events.APIGatewayProxyResponse {
	var req resetRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return respondError(http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON", correlationID)
	}
	if err := h.svc.Reset(ctx, req.ConversationID); err != nil {
		return errorTo(err, correlationID)
	}
	return respond(http.StatusOK, map[string]string{"conversationId": req.ConversationID, "status": "reset"}, correlationID)
}

func (h *Handler) handlePublish(ctx context.Context, body, correlationID string) events.APIGatewayProxyResponse {
	var req publishRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return respondError(http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON", correlationID)
	}
	out, err := h.svc.Publish(ctx, usecase.PublishInput{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		ImageURLs:      req.ImageURLs,
	})
	if err != nil {
		return errorTo(err, correlationID)
	}
	return respond(http.StatusCreated, publishResponse{
		ListingID: out.ListingID,
		Slug:      out.Slug,
		URL:       out.URL,
	}, correlationID)
}

// errorTo maps a use-case error onto an HTTP response.
func errorTo(err error, correlationID string) events.APIGatewayProxyResponse {
	var ue *usecase.Error
	if errors.As(err, &ue) {
		switch ue.Code {
		case usecase.ErrorInvalidInput:
			return respondError(http.StatusBadRequest, string(ue.Code), ue.Reason, correlationID)
		case usecase.ErrorNotReady:
			return respondError(http.StatusConflict, string(ue.Code), ue.Reason, correlationID)
		}
		slog.Error("internal error", "code", ue.Code, "reason", ue.Reason, "correlationId", correlationID, "err", err)
		return respondError(http.StatusInternalServerError, string(ue.Code), "internal error", correlationID)
	}
	slog.Error("unclassified error", "correlationId", correlationID, "err", err)
	return respondError(http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", correlationID)
}

// routeOf strips a deployment stage prefix so /prod/chat and /chat route
// the same.
func routeOf(path string) string {
	for _, route := range []string{"/chat/reset", "/chat/publish", "/chat"} {
		if path == route || strings.HasSuffix(path, route) {
			return route
		}
	}
	return path
}

// correlationIDFrom echoes the caller's correlation id or mints one.
func correlationIDFrom(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return uuid.NewString()
}

func respond(status int, body any, correlationID string) events.APIGatewayProxyResponse {
	resp := events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
	}
	if body == nil {
		return resp
	}
	b, err := json.Marshal(body)
	if err != nil {
		slog.Error("failed to encode response body", "err", err)
		resp.StatusCode = http.StatusInternalServerError
		resp.Body = `{"code":"INTERNAL_ERROR","error":"internal error"}`
		return resp
	}
	resp.Body = string(b)
	return resp
}

func respondError(status int, code, message, correlationID string) events.APIGatewayProxyResponse {
	return respond(status, errorResponse{Code: code, Error: message}, correlationID)
}
