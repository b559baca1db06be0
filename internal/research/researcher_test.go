package research

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gardenpipe/internal/logging"
	"gardenpipe/internal/retry"
	"gardenpipe/internal/services"
	"gardenpipe/internal/services/perplexity"
	"gardenpipe/internal/testsupport"
)

type countingSearcher struct {
	calls   atomic.Int32
	reply   *perplexity.Response
	failFor string
}

func (s *countingSearcher) Search(_ context.Context, q perplexity.Query) (*perplexity.Response, error) {
	s.calls.Add(1)
	if s.failFor != "" && strings.Contains(q.Prompt, s.failFor) {
		return nil, services.Wrap(services.ErrExternalTool, "research", "search", "bad request", nil)
	}
	return s.reply, nil
}
func (s *countingSearcher) Available() bool { return true }
func (s *countingSearcher) Model() string   { return "sonar" }

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newResearcher(t *testing.T, s Searcher, c *clock) *Researcher {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return New(cfg, s, logging.NewNop(), WithClock(c.now))
}

func sampleResponse() *perplexity.Response {
	return &perplexity.Response{
		Content: "生成AIの市場は急速に拡大している。詳細は以下。\n\n本文",
		Model:   "sonar",
		Citations: []perplexity.Citation{
			{Title: "市場調査レポート", URL: "https://www.nikkei.com/a", Snippet: "生成AI市場は2025年に拡大"},
			{Title: "Blog", URL: "https://blog.example/b", Snippet: "unrelated"},
		},
	}
}

func TestQueryCacheHitSkipsNetwork(t *testing.T) {
	s := &countingSearcher{reply: sampleResponse()}
	c := &clock{t: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	r := newResearcher(t, s, c)
	q := Query{Query: "AI 市場トレンド 2024", RecencyFilter: "month"}

	first, err := r.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	c.t = c.t.Add(23 * time.Hour)
	second, err := r.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := s.calls.Load(); got != 1 {
		t.Fatalf("expected 1 network call, got %d", got)
	}
	if first != second {
		t.Fatal("expected cached result to be returned")
	}
}

func TestQueryRefetchesStaleEntry(t *testing.T) {
	s := &countingSearcher{reply: sampleResponse()}
	c := &clock{t: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	r := newResearcher(t, s, c)
	q := Query{Query: "stale query"}

	first, _ := r.Query(context.Background(), q)
	c.t = c.t.Add(25 * time.Hour)
	second, err := r.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := s.calls.Load(); got != 2 {
		t.Fatalf("expected refetch, got %d calls", got)
	}
	if first == second {
		t.Fatal("expected stale entry to be replaced")
	}
	if r.cache.size() != 1 {
		t.Fatalf("cache size = %d", r.cache.size())
	}
}

func TestCleanupCacheEvictsExpired(t *testing.T) {
	s := &countingSearcher{reply: sampleResponse()}
	c := &clock{t: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	r := newResearcher(t, s, c)

	_, _ = r.Query(context.Background(), Query{Query: "old"})
	c.t = c.t.Add(20 * time.Hour)
	_, _ = r.Query(context.Background(), Query{Query: "fresh"})
	c.t = c.t.Add(5 * time.Hour)

	if removed := r.CleanupCache(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if info := r.Info(); info["cache_entries"] != "1" || info["cache_ttl_hours"] != "24" {
		t.Fatalf("info = %v", info)
	}
}

func TestCacheKeyIsTruncatedMD5(t *testing.T) {
	// md5("hello") = 5d41402abc4b2a76b9719d911017c592
	if got := cacheKey("hello"); got != "5d41402abc4b2a76" {
		t.Fatalf("cacheKey = %q", got)
	}
}

func TestResearchSkipsFailedQueries(t *testing.T) {
	s := &countingSearcher{reply: sampleResponse(), failFor: "関連情報"}
	c := &clock{t: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	r := newResearcher(t, s, c)

	res, err := r.Research(context.Background(), Content{
		Text:     "生成AIの導入で売上が30%伸びた。Anthropic と OpenAI の比較を続ける。",
		Category: "insight",
		Title:    "生成AI導入の効果についての考察メモ",
	})
	if err != nil {
		t.Fatalf("Research: %v", err)
	}
	if len(res.Sources) != 2 {
		t.Fatalf("expected deduplicated sources, got %d", len(res.Sources))
	}
	if res.Sources[0].URL != "https://www.nikkei.com/a" {
		t.Fatalf("expected credible source first, got %+v", res.Sources[0])
	}
	if !strings.HasPrefix(res.Summary, "調査結果:\n• 生成AIの市場は急速に拡大している。") {
		t.Fatalf("summary = %q", res.Summary)
	}
	if len(res.FactChecks) == 0 {
		t.Fatal("expected claim checks")
	}
	if res.Credibility.Label == "" {
		t.Fatal("expected credibility assessment")
	}
}

func TestResearchWithoutQueries(t *testing.T) {
	r := newResearcher(t, &countingSearcher{reply: sampleResponse()}, &clock{t: time.Now()})
	_, err := r.Research(context.Background(), Content{Text: "きょうは静かな一日だった", Category: "profile"})
	if !errors.Is(err, ErrNoQueries) {
		t.Fatalf("expected ErrNoQueries, got %v", err)
	}
}

func TestResearchThroughPerplexityRetriesRateLimit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"model":"sonar","choices":[{"message":{"content":"クラウド移行が進んでいるという報告がある。"}}],"citations":[{"url":"https://example.edu/x","title":"Cloud study"}]}`))
	}))
	defer server.Close()

	p := retry.Default()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	client := perplexity.NewClient(perplexity.Config{APIKey: "k", BaseURL: server.URL, Model: "sonar"}, perplexity.WithRetryPolicy(p))
	r := newResearcher(t, client, &clock{t: time.Now()})

	res, err := r.Query(context.Background(), Query{Query: "クラウド 最新情報", RecencyFilter: "week"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected one retry, got %d requests", hits.Load())
	}
	if len(res.Sources) != 1 || res.Sources[0].CredibilityScore < 0.9 {
		t.Fatalf("sources = %+v", res.Sources)
	}
}

func TestResearchDoesNotRetryBadRequest(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	p := retry.Default()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	client := perplexity.NewClient(perplexity.Config{APIKey: "k", BaseURL: server.URL, Model: "sonar"}, perplexity.WithRetryPolicy(p))
	r := newResearcher(t, client, &clock{t: time.Now()})

	if _, err := r.Query(context.Background(), Query{Query: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected no retry, got %d requests", hits.Load())
	}
}
