package imagen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gardenpipe/internal/fileutil"
	"gardenpipe/internal/retry"
	"gardenpipe/internal/services"
	"gardenpipe/internal/structured"
)

const (
	defaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel       = "imagen-4.0-generate-001"
	defaultAspectRatio = "16:9"
	defaultHTTPTimeout = 90 * time.Second
)

// Config captures the runtime settings required to talk to Imagen.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	AspectRatio    string
	TimeoutSeconds int
}

// Client wraps the Imagen predict API.
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
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = defaultAspectRatio
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

// Generate renders one image for prompt and returns the decoded PNG bytes.
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, error) {
	const op = "imagen generate"
	if !c.Available() {
		return nil, services.Wrap(services.ErrConfiguration, "visual", op, "api key required", nil)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, services.Wrap(services.ErrValidation, "visual", op, "prompt required", nil)
	}
	payload := predictRequest{
		Instances:  []predictInstance{{Prompt: prompt}},
		Parameters: predictParameters{SampleCount: 1, AspectRatio: c.cfg.AspectRatio},
	}
	image, err := retry.Value(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		return c.sendOnce(ctx, op, payload)
	})
	if err != nil {
		if errors.Is(err, services.ErrMalformedResponse) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrExternalTool, "visual", op, "image request failed", err)
	}
	return image, nil
}

// GenerateFile renders an image and writes it to path, creating parent directories.
func (c *Client) GenerateFile(ctx context.Context, prompt, path string) error {
	image, err := c.Generate(ctx, prompt)
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(path, image, 0o644); err != nil {
		return fmt.Errorf("write thumbnail: %w", err)
	}
	return nil
}

type predictRequest struct {
	Instances  []predictInstance  `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	SampleCount int    `json:"sampleCount"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

func (c *Client) sendOnce(ctx context.Context, op string, payload predictRequest) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("%s: encode body: %w", op, err))
	}
	endpoint := fmt.Sprintf("%s/models/%s:predict?key=%s", c.cfg.BaseURL, url.PathEscape(c.cfg.Model), url.QueryEscape(c.cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("%s: new request: %w", op, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: http error: %w", op, redactKey(err, c.cfg.APIKey))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.MarkRetryable(fmt.Errorf("%s: read body: %w", op, err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, retry.NewHTTPError(op, resp, body)
	}
	var decoded predictResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, retry.Permanent(&services.MalformedResponse{Op: op, Reason: "decode response", Snippet: structured.Snippet(string(body)), Err: err})
	}
	if len(decoded.Predictions) == 0 || decoded.Predictions[0].BytesBase64Encoded == "" {
		return nil, retry.Permanent(&services.MalformedResponse{Op: op, Reason: "no image in response", Snippet: structured.Snippet(string(body))})
	}
	image, err := base64.StdEncoding.DecodeString(decoded.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return nil, retry.Permanent(&services.MalformedResponse{Op: op, Reason: "invalid base64 image", Err: err})
	}
	if !bytes.HasPrefix(image, pngSignature) {
		return nil, retry.Permanent(&services.MalformedResponse{Op: op, Reason: "image is not PNG"})
	}
	return image, nil
}

// redactKey keeps the query-string API key out of transport errors.
func redactKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		clone := *urlErr
		clone.URL = strings.ReplaceAll(clone.URL, url.QueryEscape(key), "REDACTED")
		clone.URL = strings.ReplaceAll(clone.URL, key, "REDACTED")
		return &clone
	}
	return errors.New(strings.ReplaceAll(err.Error(), key, "REDACTED"))
}
