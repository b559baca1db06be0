package perplexity

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
	defaultBaseURL     = "https://api.perplexity.ai"
	defaultHTTPTimeout = 45 * time.Second
)

// Config captures the runtime settings required to talk to Perplexity.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	Temperature    float64
	TimeoutSeconds int
	RecencyFilter  string
}

// Query is one search request. Empty fields fall back to the client configuration.
type Query struct {
	System        string
	Prompt        string
	RecencyFilter string
	MaxTokens     int
	Temperature   *float64
}

// Citation is one source reported with an answer.
type Citation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Date    string `json:"date"`
}

// UnmarshalJSON accepts either a bare URL string or an object.
func (c *Citation) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var url string
		if err := json.Unmarshal(trimmed, &url); err != nil {
			return err
		}
		*c = Citation{URL: url}
		return nil
	}
	type plain Citation
	var decoded plain
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return err
	}
	*c = Citation(decoded)
	return nil
}

// Response is the answer to one query.
type Response struct {
	Content   string
	Citations []Citation
	Model     string
}

// Client wraps the Perplexity API.
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

// WithRetryPolicy overrides the retry policy. The classifier is always
// replaced with retry.RateLimitClassifier.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) {
		c.policy = p.WithClassifier(retry.RateLimitClassifier)
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
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}
	if cfg.RecencyFilter == "" {
		cfg.RecencyFilter = "month"
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		policy:     retry.Default().WithClassifier(retry.RateLimitClassifier),
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

// Search sends one query and returns the answer with its citations.
func (c *Client) Search(ctx context.Context, q Query) (*Response, error) {
	const op = "perplexity search"
	if !c.Available() {
		return nil, services.Wrap(services.ErrConfiguration, "research", op, "api key required", nil)
	}
	prompt := strings.TrimSpace(q.Prompt)
	if prompt == "" {
		return nil, services.Wrap(services.ErrValidation, "research", op, "prompt required", nil)
	}
	payload := chatRequest{
		Model:               c.cfg.Model,
		MaxTokens:           c.cfg.MaxTokens,
		Temperature:         c.cfg.Temperature,
		SearchRecencyFilter: c.cfg.RecencyFilter,
		ReturnCitations:     true,
	}
	if q.MaxTokens > 0 {
		payload.MaxTokens = q.MaxTokens
	}
	if q.Temperature != nil {
		payload.Temperature = *q.Temperature
	}
	if q.RecencyFilter != "" {
		payload.SearchRecencyFilter = q.RecencyFilter
	}
	if system := strings.TrimSpace(q.System); system != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: system})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: prompt})

	resp, err := retry.Value(ctx, c.policy, func(ctx context.Context) (*Response, error) {
		return c.sendOnce(ctx, op, payload)
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return resp, nil
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	MaxTokens           int           `json:"max_tokens"`
	Temperature         float64       `json:"temperature"`
	SearchRecencyFilter string        `json:"search_recency_filter,omitempty"`
	ReturnCitations     bool          `json:"return_citations"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations     []Citation `json:"citations"`
	SearchResults []Citation `json:"search_results"`
}

func (c *Client) sendOnce(ctx context.Context, op string, payload chatRequest) (*Response, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("%s: encode body: %w", op, err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("%s: new request: %w", op, err))
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: http error: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.MarkRetryable(fmt.Errorf("%s: read body: %w", op, err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, retry.NewHTTPError(op, resp, body)
	}
	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &services.MalformedResponse{Op: op, Reason: "decode response", Snippet: structured.Snippet(string(body)), Err: err}
	}
	if len(decoded.Choices) == 0 {
		return nil, &services.MalformedResponse{Op: op, Reason: "no choices", Snippet: structured.Snippet(string(body))}
	}
	out := &Response{
		Content: strings.TrimSpace(decoded.Choices[0].Message.Content),
		Model:   decoded.Model,
	}
	out.Citations = mergeCitations(decoded.Citations, decoded.SearchResults)
	return out, nil
}

// mergeCitations prefers the richer search_results entries and fills in
// titles for bare citation URLs.
func mergeCitations(citations, results []Citation) []Citation {
	byURL := make(map[string]Citation, len(results))
	for _, r := range results {
		if r.URL != "" {
			byURL[r.URL] = r
		}
	}
	out := make([]Citation, 0, len(citations)+len(results))
	seen := make(map[string]struct{}, len(citations)+len(results))
	for _, c := range citations {
		if c.URL == "" {
			continue
		}
		if rich, ok := byURL[c.URL]; ok {
			if c.Title == "" {
				c.Title = rich.Title
			}
			if c.Snippet == "" {
				c.Snippet = rich.Snippet
			}
			if c.Date == "" {
				c.Date = rich.Date
			}
		}
		if _, dup := seen[c.URL]; dup {
			continue
		}
		seen[c.URL] = struct{}{}
		out = append(out, c)
	}
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}
		out = append(out, r)
	}
	return out
}

func classify(op string, err error) error {
	var statusErr retry.StatusError
	switch {
	case errors.Is(err, services.ErrMalformedResponse),
		errors.Is(err, services.ErrConfiguration),
		errors.Is(err, services.ErrValidation):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "research", op, "request canceled", err)
	case errors.As(err, &statusErr) && statusErr.HTTPStatus() != http.StatusTooManyRequests:
		return services.Wrap(services.ErrExternalTool, "research", op, "request rejected", err)
	default:
		return services.Wrap(services.ErrTransient, "research", op, "request failed", err)
	}
}
