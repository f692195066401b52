package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Options configures the OpenAI-compatible chat completions client.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client calls POST {base}/chat/completions on an OpenAI-compatible endpoint
// such as ModelScope's inference API.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// Message is a chat message. Content is either a string or a []Part.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Part is one element of a multimodal message.
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image by URL or data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// Request is a single non-streaming completion request.
type Request struct {
	Messages  []Message
	MaxTokens int
}

type completionRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CallError carries a short machine-readable reason next to the cause so
// callers can log and count fallbacks consistently.
type CallError struct {
	Reason string
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("chat: %s: %v", e.Reason, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Reason extracts the reason code from err, or "unknown".
func Reason(err error) string {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return "unknown"
}

// ErrMissingAPIKey is returned when the client has no credentials.
var ErrMissingAPIKey = errors.New("chat: api key is required")

// NewClient builds a client; a missing API key is reported at call time so
// the service can still boot and answer with its own configuration error.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api-inference.modelscope.cn/v1"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: baseURL,
		model:   strings.TrimSpace(opts.Model),
		client:  client,
	}
}

// HasCredentials reports whether an API key is configured.
func (c *Client) HasCredentials() bool {
	return c != nil && c.apiKey != ""
}

// Model returns the configured model id.
func (c *Client) Model() string {
	return c.model
}

// Complete sends req and returns the first choice's message content.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if !c.HasCredentials() {
		return "", &CallError{Reason: "missing_api_key", Err: ErrMissingAPIKey}
	}
	payload := completionRequest{
		Model:     c.model,
		Messages:  req.Messages,
		Stream:    false,
		MaxTokens: req.MaxTokens,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", &CallError{Reason: "encode_request", Err: err}
	}
	endpoint := fmt.Sprintf("%s/chat/completions", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", &CallError{Reason: "build_request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", &CallError{Reason: "http_request", Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &CallError{
			Reason: fmt.Sprintf("http_%d", resp.StatusCode),
			Err:    fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}
	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &CallError{Reason: "decode_response", Err: err}
	}
	if len(out.Choices) == 0 {
		return "", &CallError{Reason: "empty_choices", Err: errors.New("no choices")}
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", &CallError{Reason: "empty_response", Err: errors.New("empty response")}
	}
	return text, nil
}

// TextMessage builds a plain-text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}

// ImageMessage builds a user message carrying text followed by one image.
func ImageMessage(text, imageURL string) Message {
	return Message{
		Role: "user",
		Content: []Part{
			{Type: "text", Text: text},
			{Type: "image_url", ImageURL: &ImageURL{URL: imageURL}},
		},
	}
}
