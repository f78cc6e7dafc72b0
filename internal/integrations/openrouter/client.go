// Package openrouter is a focused client for the OpenRouter chat-completions
// gateway: non-streaming completions, SSE streaming, and vision analysis.
package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"landsale-agent/internal/domain"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// chatRequest is the minimal request shape for the chat completions
// endpoint. Content is a string for ordinary turns and a part list for
// vision requests.
type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []wireMessage `json:"messages"`
	Temperature      float64       `json:"temperature"`
	MaxTokens        int           `json:"max_tokens"`
	TopP             float64       `json:"top_p,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty"`
	PresencePenalty  float64       `json:"presence_penalty"`
	Stream           bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// chatResponse is the minimal non-streaming response shape.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// streamChunk is one decoded SSE data frame.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Getter resolves the API key and other parameters from the parameter
// store.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware
// context, so callers can distinguish throttling from other failures.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openrouter: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to an OpenRouter-compatible gateway. The API key is fetched
// from the parameter store on first use and cached for the process
// lifetime.
type Client struct {
	baseURL     string
	referer     string
	title       string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	keyOnce sync.Once
	apiKey  string
	keyErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithReferer overrides the HTTP-Referer attribution header OpenRouter
// expects from web clients.
func WithReferer(referer string) Option {
	return func(c *Client) {
		c.referer = referer
	}
}

// NewClient creates a Client backed by the given parameter-store Getter for
// API key retrieval.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("openrouter: parameter getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("openrouter: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		referer:     "https://landsale.lk",
		title:       "LandSale.lk AI Assistant",
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveAPIKey fetches the key on the first call and returns the cached
// result afterwards.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		key, err := c.getter.GetParameter(ctx, c.paramPrefix+"/openrouter-token")
		if err != nil {
			c.keyErr = fmt.Errorf("openrouter: fetch API key: %w", err)
			return
		}
		key = strings.TrimSpace(key)
		if key == "" {
			c.keyErr = errors.New("openrouter: API key parameter is empty")
			return
		}
		c.apiKey = key
	})
	return c.apiKey, c.keyErr
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func completionsURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

// Chat issues a non-streaming completion and returns the assistant text.
func (c *Client) Chat(ctx context.Context, model Model, messages []domain.ChatMessage) (string, error) {
	wire, err := model.Wire()
	if err != nil {
		return "", err
	}
	req := chatRequest{
		Model:            wire,
		Messages:         toWireMessages(messages),
		Temperature:      0.7,
		MaxTokens:        2000,
		TopP:             1,
		FrequencyPenalty: 0,
		PresencePenalty:  0,
	}
	raw, err := c.postJSON(ctx, req)
	if err != nil {
		return "", err
	}
	return firstChoiceContent(raw)
}

// AnalyzeImage sends base64 image bytes plus a text prompt to the vision
// model and returns its description.
func (c *Client) AnalyzeImage(ctx context.Context, imageData, mimeType, prompt string) (string, error) {
	wire, err := visionModel.Wire()
	if err != nil {
		return "", err
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	req := chatRequest{
		Model: wire,
		Messages: []wireMessage{{
			Role: domain.RoleUser,
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: "data:" + mimeType + ";base64," + imageData}},
			},
		}},
		Temperature: 0.3,
		MaxTokens:   1000,
	}
	raw, err := c.postJSON(ctx, req)
	if err != nil {
		return "", err
	}
	return firstChoiceContent(raw)
}

// ChatStream issues a streaming completion, invoking onChunk for each
// content delta in arrival order. A non-nil onChunk error aborts the stream
// and is returned unchanged.
func (c *Client) ChatStream(ctx context.Context, model Model, messages []domain.ChatMessage, onChunk func(string) error) error {
	wire, err := model.Wire()
	if err != nil {
		return err
	}
	body, err := json.Marshal(chatRequest{
		Model:       wire,
		Messages:    toWireMessages(messages),
		Temperature: 0.7,
		MaxTokens:   2000,
		Stream:      true,
	})
	if err != nil {
		return fmt.Errorf("openrouter: marshal stream request: %w", err)
	}

	url := completionsURL(c.baseURL)
	req, err := c.newRequest(ctx, url, body)
	if err != nil {
		return err
	}

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("openrouter: stream request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Partial or malformed frame; skip rather than abort.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			if err := onChunk(content); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("openrouter: read stream: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, payload chatRequest) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openrouter: marshal request: %w", err)
	}

	url := completionsURL(c.baseURL)
	req, err := c.newRequest(ctx, url, body)
	if err != nil {
		return nil, err
	}

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("openrouter: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("openrouter: read response body: %w", err)
	}
	return buf, nil
}

func (c *Client) newRequest(ctx context.Context, url string, body []byte) (*http.Request, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openrouter: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)
	return req, nil
}

func firstChoiceContent(raw []byte) (string, error) {
	var payload chatResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("openrouter: decode response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return "", errors.New("openrouter: no choices in response")
	}
	return payload.Choices[0].Message.Content, nil
}

func toWireMessages(messages []domain.ChatMessage) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, wireMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
