package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gardenpipe/internal/config"
	"gardenpipe/internal/retry"
)

const userAgent = "gardenpipe/0.1"

// Event names a pipeline milestone.
type Event string

const (
	EventRunStarted       Event = "run_started"
	EventRunCompleted     Event = "run_completed"
	EventArticlePublished Event = "article_published"
	EventDeployCompleted  Event = "deploy_completed"
	EventError            Event = "error"
	EventTest             Event = "test"
)

// Payload carries event-specific values keyed by name.
type Payload map[string]any

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// Option customizes the ntfy service.
type Option func(*ntfyService)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(n *ntfyService) {
		if client != nil {
			n.client = client
		}
	}
}

// WithRetryPolicy overrides the delivery retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(n *ntfyService) { n.policy = p }
}

// NewService builds a notification service backed by ntfy when configured.
func NewService(cfg *config.Config, opts ...Option) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	policy := retry.Default()
	policy.MaxAttempts = 2
	svc := &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		policy:   policy,
		runs:     cfg.Notifications.Runs,
		articles: cfg.Notifications.Articles,
		errors:   cfg.Notifications.Errors,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	policy   retry.Policy
	runs     bool
	articles bool
	errors   bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.policy.Do(ctx, func(ctx context.Context) error {
		return n.send(ctx, msg)
	})
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventRunStarted:
		if !n.runs {
			return message{}, false
		}
		body := fmt.Sprintf("🌱 Run %s started: %d input(s)", payload.str("session"), payload.integer("files"))
		if payload.boolean("dryRun") {
			body += " (dry run)"
		}
		return message{
			title: "gardenpipe - Run Started",
			body:  body,
			tags:  []string{"gardenpipe", "run", "started"},
		}, true
	case EventRunCompleted:
		if !n.runs {
			return message{}, false
		}
		processed, failed := payload.integer("processed"), payload.integer("failed")
		duration := payload.duration("duration")
		if failed == 0 {
			return message{
				title: "gardenpipe - Run Complete",
				body:  fmt.Sprintf("✅ %d file(s) processed, %d article(s) generated in %s", processed, payload.integer("generated"), duration),
				tags:  []string{"gardenpipe", "run", "completed"},
			}, true
		}
		return message{
			title: "gardenpipe - Run Complete (with errors)",
			body:  fmt.Sprintf("⚠️ %d succeeded, %d failed in %s", processed-failed, failed, duration),
			tags:  []string{"gardenpipe", "run", "warning"},
		}, true
	case EventArticlePublished:
		if !n.articles {
			return message{}, false
		}
		body := fmt.Sprintf("📝 Published: %s [%s]", payload.str("title"), payload.str("category"))
		if url := payload.str("url"); url != "" {
			body += "\n" + url
		}
		return message{
			title: "gardenpipe - Article Published",
			body:  body,
			tags:  []string{"gardenpipe", "article", payload.str("category")},
		}, true
	case EventDeployCompleted:
		if !n.articles {
			return message{}, false
		}
		body := fmt.Sprintf("🚀 Deployed %d file(s) on %s", payload.integer("files"), payload.str("branch"))
		if pr := payload.str("pr"); pr != "" {
			body += "\nPR: " + pr
		}
		return message{
			title: "gardenpipe - Deployed",
			body:  body,
			tags:  []string{"gardenpipe", "git", "deployed"},
		}, true
	case EventError:
		if !n.errors {
			return message{}, false
		}
		var b strings.Builder
		b.WriteString("❌ Error")
		if label := payload.str("context"); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if detail := payload.str("error"); detail != "" {
			b.WriteString(detail)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "gardenpipe - Error",
			body:     b.String(),
			tags:     []string{"gardenpipe", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "gardenpipe - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"gardenpipe", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build ntfy request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if tags := compact(msg.tags); len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return retry.NewHTTPError("ntfy", resp, body)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func compact(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (p Payload) str(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) integer(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func (p Payload) boolean(key string) bool {
	v, _ := p[key].(bool)
	return v
}

func (p Payload) duration(key string) string {
	d, _ := p[key].(time.Duration)
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
