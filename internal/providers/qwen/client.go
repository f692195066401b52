// Package qwen talks to the ModelScope asynchronous image-generation API
// used to render Qwen-Image illustrations.
package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrMissingAPIKey indicates that the client was configured without credentials.
	ErrMissingAPIKey = errors.New("qwen: api key is required")
	// ErrImageTooLarge is returned when a generated image exceeds MaxDownloadBytes.
	ErrImageTooLarge = errors.New("qwen: image too large")
)

// MaxDownloadBytes caps a single generated image download.
const MaxDownloadBytes = 32 << 20

// Task statuses reported by the tasks endpoint.
const (
	StatusPending = "PENDING"
	StatusRunning = "RUNNING"
	StatusSucceed = "SUCCEED"
	StatusFailed  = "FAILED"
	StatusUnknown = "UNKNOWN"
)

const (
	defaultBaseURL = "https://api-inference.modelscope.cn/"
	defaultModel   = "Qwen/Qwen-Image"
	defaultSize    = "1024x1024"
)

// Options configures the ModelScope image task client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	Size           string
	HTTPClient     *http.Client
	Logger         *zerolog.Logger
	RequestTimeout time.Duration
	// MaxDownload caps image downloads; MaxDownloadBytes when zero.
	MaxDownload int
}

// Client submits image tasks and polls them until completion.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	size       string
	httpClient  *http.Client
	logger      zerolog.Logger
	maxDownload int
}

// Task is the decoded state of one remote generation task.
type Task struct {
	ID           string
	Status       string
	OutputImages []string
	Error        string
}

type submitRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

type taskResponse struct {
	TaskStatus   string          `json:"task_status"`
	OutputImages []string        `json:"output_images"`
	Error        json.RawMessage `json:"error"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	size := strings.TrimSpace(opts.Size)
	if size == "" {
		size = defaultSize
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	maxDownload := opts.MaxDownload
	if maxDownload <= 0 {
		maxDownload = MaxDownloadBytes
	}
	return &Client{
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     baseURL,
		model:       model,
		size:        size,
		httpClient:  httpClient,
		logger:      logger.With().Str("component", "qwen").Logger(),
		maxDownload: maxDownload,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// BaseURL returns the normalized base URL, always ending in a slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// SubmitTask starts an asynchronous generation and returns the remote task
// id. An accepted response without a task id yields an empty id and no error.
func (c *Client) SubmitTask(ctx context.Context, prompt string) (string, error) {
	if !c.HasCredentials() {
		return "", ErrMissingAPIKey
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("qwen: prompt is required")
	}
	body, err := json.Marshal(submitRequest{Model: c.model, Prompt: prompt, N: 1, Size: c.size})
	if err != nil {
		return "", fmt.Errorf("qwen: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("qwen: build request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-ModelScope-Async-Mode", "true")

	raw, err := c.do(req)
	if err != nil {
		return "", err
	}
	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("qwen: decode submit response: %w", err)
	}
	c.logger.Debug().Str("task_id", decoded.TaskID).Msg("qwen: task submitted")
	return strings.TrimSpace(decoded.TaskID), nil
}

// FetchTask reads the current state of a task once.
func (c *Client) FetchTask(ctx context.Context, taskID string) (*Task, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"v1/tasks/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("qwen: build request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("X-ModelScope-Task-Type", "image_generation")

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var decoded taskResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("qwen: decode task response: %w", err)
	}
	status := strings.ToUpper(strings.TrimSpace(decoded.TaskStatus))
	if status == "" {
		status = StatusUnknown
	}
	return &Task{
		ID:           taskID,
		Status:       status,
		OutputImages: decoded.OutputImages,
		Error:        errorText(decoded.Error),
	}, nil
}

// Download fetches a generated image and reports its content type.
func (c *Client) Download(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || parsed.Scheme == "" {
		return nil, "", fmt.Errorf("qwen: invalid image url: %s", imageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("qwen: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.maxDownload)+1))
	if err != nil {
		return nil, "", fmt.Errorf("qwen: read image: %w", err)
	}
	if len(data) > c.maxDownload {
		return nil, "", fmt.Errorf("%w: over %d bytes", ErrImageTooLarge, c.maxDownload)
	}
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = http.DetectContentType(data)
	}
	return data, format, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qwen: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("qwen: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qwen: status %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(raw)), 256))
	}
	return raw, nil
}

// errorText accepts either a plain string or an object with a message field.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && (obj.Message != "" || obj.Code != "") {
		if obj.Code == "" {
			return obj.Message
		}
		return fmt.Sprintf("%s (%s)", obj.Message, obj.Code)
	}
	return strings.TrimSpace(string(raw))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
