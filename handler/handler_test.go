package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landsale-agent/internal/usecase"
)

type fakeService struct {
	sendIn   usecase.ChatInput
	sendOut  usecase.ChatOutput
	sendErr  error
	resetID  string
	resetErr error
	pubIn    usecase.PublishInput
	pubOut   usecase.PublishOutput
	pubErr   error
}

func (f *fakeService) SendMessage(_ context.Context, in usecase.ChatInput) (usecase.ChatOutput, error) {
	f.sendIn = in
	return f.sendOut, f.sendErr
}

func (f *fakeService) Reset(_ context.Context, conversationID string) error {
	f.resetID = conversationID
	return f.resetErr
}

func (f *fakeService) Publish(_ context.Context, in usecase.PublishInput) (usecase.PublishOutput, error) {
	f.pubIn = in
	return f.pubOut, f.pubErr
}

func mustHandler(t *testing.T, svc ChatService) *Handler {
	t.Helper()
	h, err := NewHandler(svc)
	require.NoError(t, err)
	return h
}

func postEvent(path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       path,
		Body:       body,
	}
}

func TestNewHandlerRequiresService(t *testing.T) {
	_, err := NewHandler(nil)
	assert.Error(t, err)
}

func TestHandleChat(t *testing.T) {
	svc := &fakeService{sendOut: usecase.ChatOutput{
		ConversationID: "c1",
		Text:           "raw <SUGGESTIONS>[]</SUGGESTIONS>",
		CleanText:      "raw",
		Suggestions:    []string{"Find properties"},
		ListingMode:    true,
		ReadyToPublish: true,
	}}
	h := mustHandler(t, svc)

	resp, err := h.Handle(context.Background(), postEvent("/chat", `{
		"conversationId": "c1",
		"message": "I want to sell my land",
		"model": "gpt-4",
		"attachment": {"mimeType": "image/jpeg", "data": "aGVsbG8="}
	}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])

	assert.Equal(t, "c1", svc.sendIn.ConversationID)
	assert.Equal(t, "I want to sell my land", svc.sendIn.Text)
	assert.Equal(t, "gpt-4", svc.sendIn.Model)
	require.NotNil(t, svc.sendIn.Attachment)
	assert.Equal(t, "image/jpeg", svc.sendIn.Attachment.MimeType)

	var body chatResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, "c1", body.ConversationID)
	assert.Equal(t, "raw", body.CleanText)
	assert.Equal(t, []string{"Find properties"}, body.Suggestions)
	assert.True(t, body.ListingMode)
	assert.True(t, body.ReadyToPublish)
}

func TestHandleChatStagePrefix(t *testing.T) {
	svc := &fakeService{}
	h := mustHandler(t, svc)

	resp, err := h.Handle(context.Background(), postEvent("/prod/chat", `{"message":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hi", svc.sendIn.Text)
}

func TestHandleChatBadJSON(t *testing.T) {
	h := mustHandler(t, &fakeService{})
	resp, err := h.Handle(context.Background(), postEvent("/chat", `{nope`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid input", &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_message"}, http.StatusBadRequest},
		{"not ready", &usecase.Error{Code: usecase.ErrorNotReady, Reason: "listing_incomplete"}, http.StatusConflict},
		{"internal", &usecase.Error{Code: usecase.ErrorInternal, Reason: "state_read_error"}, http.StatusInternalServerError},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := mustHandler(t, &fakeService{sendErr: tc.err})
			resp, err := h.Handle(context.Background(), postEvent("/chat", `{"message":"hi"}`))
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)

			var body errorResponse
			require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
			assert.NotEmpty(t, body.Code)
		})
	}
}

func TestHandleInternalErrorHidesReason(t *testing.T) {
	h := mustHandler(t, &fakeService{sendErr: &usecase.Error{
		Code:   usecase.ErrorInternal,
		Reason: "dynamodb exploded with table arn",
	}})
	resp, err := h.Handle(context.Background(), postEvent("/chat", `{"message":"hi"}`))
	require.NoError(t, err)
	assert.NotContains(t, resp.Body, "dynamodb exploded")
}

func TestHandleReset(t *testing.T) {
	svc := &fakeService{}
	h := mustHandler(t, svc)

	resp, err := h.Handle(context.Background(), postEvent("/chat/reset", `{"conversationId":"c1"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "c1", svc.resetID)
	assert.Contains(t, resp.Body, `"status":"reset"`)
}

func TestHandlePublish(t *testing.T) {
	svc := &fakeService{pubOut: usecase.PublishOutput{
		ListingID: "l1",
		Slug:      "land-kandy-l1",
		URL:       "/properties/land-kandy-l1",
	}}
	h := mustHandler(t, svc)

	resp, err := h.Handle(context.Background(), postEvent("/chat/publish", `{
		"conversationId": "c1",
		"userId": "u1",
		"imageUrls": ["https://cdn.example.com/a.jpg"]
	}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "c1", svc.pubIn.ConversationID)
	assert.Equal(t, "u1", svc.pubIn.UserID)
	assert.Equal(t, []string{"https://cdn.example.com/a.jpg"}, svc.pubIn.ImageURLs)

	var body publishResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, "l1", body.ListingID)
	assert.Equal(t, "/properties/land-kandy-l1", body.URL)
}

func TestHandleUnknownRoute(t *testing.T) {
	h := mustHandler(t, &fakeService{})
	resp, err := h.Handle(context.Background(), postEvent("/nope", `{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleMethodNotAllowed(t *testing.T) {
	h := mustHandler(t, &fakeService{})
	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/chat",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCorrelationIDEchoedOrMinted(t *testing.T) {
	h := mustHandler(t, &fakeService{})

	req := postEvent("/chat", `{"message":"hi"}`)
	req.Headers = map[string]string{"x-correlation-id": "corr-42"}
	resp, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "corr-42", resp.Headers[correlationHeader])

	resp, err = h.Handle(context.Background(), postEvent("/chat", `{"message":"hi"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Headers[correlationHeader])
}

func TestOptionsShortCircuits(t *testing.T) {
	h := mustHandler(t, &fakeService{})
	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodOptions,
		Path:       "/chat",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
