package llm

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

	"gardenpipe/internal/retry"
	"gardenpipe/internal/services"
	"gardenpipe/internal/structured"
)

const (
	defaultBaseURL     = "https://api.anthropic.com"
	defaultHTTPTimeout = 60 * time.Second
	defaultMaxTokens   = 4000
	apiVersion         = "2023-06-01"
)

// Config captures the runtime settings required to talk to the model.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	Temperature    float64
	TimeoutSeconds int
}

// Request is one completion call. Zero MaxTokens and nil Temperature fall
// back to the client configuration.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float64
}

// Temperature returns a pointer for Request.Temperature.
func Temperature(v float64) *float64 { return &v }

// Client wraps the Anthropic Messages API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	policy     retry.Policy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		policy:     retry.Default(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Available reports whether an API key is configured.
func (c *Client) Available() bool {
	return c != nil && c.cfg.APIKey != ""
}

// Model returns the configured model name.
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.cfg.Model
}

// Complete sends the request and returns the model's text output.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	const op = "llm complete"
	if !c.Available() {
		return "", services.Wrap(services.ErrConfiguration, "llm", op, "api key required", nil)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", services.Wrap(services.ErrValidation, "llm", op, "prompt required", nil)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	temperature := c.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	payload := messagesRequest{
		Model:       c.cfg.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      strings.TrimSpace(req.System),
		Messages:    []message{{Role: "user", Content: prompt}},
	}
	text, err := retry.Value(ctx, c.policy, func(ctx context.Context) (string, error) {
		return c.sendOnce(ctx, op, payload)
	})
	if err != nil {
		return "", classify(op, err)
	}
	return text, nil
}

// HealthCheck issues a minimal request to verify the API key and model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.Complete(ctx, Request{
		System:      "You must respond with JSON only.",
		Prompt:      `Respond with {"ok":true}`,
		MaxTokens:   20,
		Temperature: Temperature(0),
	})
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := healthDecoder.Decode(content, &parsed); err != nil {
		return err
	}
	if !parsed.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

var healthDecoder = structured.MustDecoder("llm health", `{
	"type": "object",
	"required": ["ok"],
	"properties": {"ok": {"type": "boolean"}}
}`)

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type emptyContentError struct {
	StopReason string
	Snippet    string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("empty content (stop_reason=%q, response_snippet=%s)", e.StopReason, e.Snippet)
}

func (c *Client) sendOnce(ctx context.Context, op string, payload messagesRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("%s: encode body: %w", op, err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(encoded))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("%s: new request: %w", op, err))
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: http error (timeout=%s): %w", op, c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", retry.MarkRetryable(fmt.Errorf("%s: read body: %w", op, err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", retry.NewHTTPError(op, resp, body)
	}
	var decoded messagesResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", retry.Permanent(&services.MalformedResponse{
			Op: op, Reason: "decode response", Snippet: structured.Snippet(string(body)), Err: err,
		})
	}
	if decoded.Error != nil {
		return "", retry.Permanent(fmt.Errorf("%s: api error %s: %s", op, decoded.Error.Type, strings.TrimSpace(decoded.Error.Message)))
	}
	var text strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" || block.Type == "" {
			text.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", retry.MarkRetryable(&emptyContentError{StopReason: decoded.StopReason, Snippet: structured.Snippet(string(body))})
	}
	return out, nil
}

// classify attaches a services marker so callers can branch with errors.Is.
func classify(op string, err error) error {
	var statusErr retry.StatusError
	switch {
	case errors.Is(err, services.ErrMalformedResponse),
		errors.Is(err, services.ErrConfiguration),
		errors.Is(err, services.ErrValidation):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "llm", op, "request canceled", err)
	case errors.As(err, &statusErr) && statusErr.HTTPStatus() < 500 && statusErr.HTTPStatus() != http.StatusTooManyRequests && statusErr.HTTPStatus() != http.StatusRequestTimeout:
		return services.Wrap(services.ErrExternalTool, "llm", op, "request rejected", err)
	default:
		return services.Wrap(services.ErrTransient, "llm", op, "request failed", err)
	}
}
