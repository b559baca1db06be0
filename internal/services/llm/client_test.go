package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gardenpipe/internal/retry"
	"gardenpipe/internal/services"
)

func fastPolicy() retry.Policy {
	p := retry.Default()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func textResponse(text string) map[string]any {
	return map[string]any{
		"content":     []any{map[string]any{"type": "text", "text": text}},
		"stop_reason": "end_turn",
	}
}

func TestCompleteSendsMessagesRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test" || r.Header.Get("anthropic-version") == "" {
			t.Fatalf("missing auth headers: %v", r.Header)
		}
		var body messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Model != "demo" || body.System != "sys" || body.MaxTokens != 4000 || body.Temperature != 0.7 {
			t.Fatalf("unexpected request %+v", body)
		}
		if len(body.Messages) != 1 || body.Messages[0].Role != "user" || body.Messages[0].Content != "hello" {
			t.Fatalf("unexpected messages %+v", body.Messages)
		}
		_ = json.NewEncoder(w).Encode(textResponse("world"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo", Temperature: 0.7})
	got, err := client.Complete(context.Background(), Request{System: "sys", Prompt: "hello"})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != "world" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestCompleteRetriesOverloaded(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(529)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(textResponse("ok"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"}, WithRetryPolicy(fastPolicy()))
	got, err := client.Complete(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != "ok" || calls.Load() != 2 {
		t.Fatalf("got %q after %d calls", got, calls.Load())
	}
}

func TestCompleteDoesNotRetryUnauthorized(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"}, WithRetryPolicy(fastPolicy()))
	_, err := client.Complete(context.Background(), Request{Prompt: "hi"})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestCompleteRetriesEmptyContent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"content": []any{}, "stop_reason": "max_tokens"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"}, WithRetryPolicy(fastPolicy()))
	_, err := client.Complete(context.Background(), Request{Prompt: "hi"})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 3 {
		t.Fatalf("expected exhausted retries, got %v", err)
	}
}

func TestCompleteRequiresKey(t *testing.T) {
	client := NewClient(Config{Model: "demo"})
	if client.Available() {
		t.Fatal("client without key should be unavailable")
	}
	if _, err := client.Complete(context.Background(), Request{Prompt: "x"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestHealthCheckAcceptsCodeFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(textResponse("```json\n{\"ok\":true}\n```"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}
