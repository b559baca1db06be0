package perplexity

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

func TestSearchDecodesMixedCitations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Fatalf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.SearchRecencyFilter != "week" || !body.ReturnCitations || body.Temperature != 0.2 {
			t.Fatalf("unexpected request %+v", body)
		}
		_, _ = w.Write([]byte(`{
			"model": "sonar",
			"choices": [{"message": {"content": " 回答です。 "}}],
			"citations": ["https://a.example/1", {"url": "https://b.example/2", "title": "B"}],
			"search_results": [{"url": "https://a.example/1", "title": "A", "date": "2024-05-01"}]
		}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, Model: "sonar", Temperature: 0.2})
	resp, err := client.Search(context.Background(), Query{Prompt: "q", RecencyFilter: "week"})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if resp.Content != "回答です。" {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if len(resp.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %+v", resp.Citations)
	}
	if resp.Citations[0].Title != "A" || resp.Citations[0].Date != "2024-05-01" {
		t.Fatalf("expected enriched first citation, got %+v", resp.Citations[0])
	}
	if resp.Citations[1].Title != "B" {
		t.Fatalf("unexpected second citation %+v", resp.Citations[1])
	}
}

func TestSearchRetriesOnlyRateLimits(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL}, WithRetryPolicy(fastPolicy()))
	_, err := client.Search(context.Background(), Query{Prompt: "q"})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 429 retried once and 500 not retried, got %d calls", calls.Load())
	}
}

func TestSearchWithoutKey(t *testing.T) {
	client := NewClient(Config{})
	if _, err := client.Search(context.Background(), Query{Prompt: "q"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
