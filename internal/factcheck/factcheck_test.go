package factcheck

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"gardenpipe/internal/logging"
	"gardenpipe/internal/services/llm"
	"gardenpipe/internal/services/perplexity"
	"gardenpipe/internal/testsupport"
)

// scriptedModel answers extraction prompts with claims and structuring
// prompts with the verdict registered for the claim they mention.
type scriptedModel struct {
	claims   string
	verdicts map[string]string
}

func (m *scriptedModel) Complete(_ context.Context, req llm.Request) (string, error) {
	if strings.Contains(req.Prompt, "抽出してください") {
		return m.claims, nil
	}
	for claim, verdict := range m.verdicts {
		if strings.Contains(req.Prompt, "元の主張: "+claim+"\n") {
			return verdict, nil
		}
	}
	return "", errors.New("no verdict scripted")
}

func (m *scriptedModel) Available() bool { return true }

type stubSearch struct {
	mu        sync.Mutex
	available bool
	queries   []perplexity.Query
	citations map[string][]perplexity.Citation
	fail      map[string]bool
}

func (s *stubSearch) Search(_ context.Context, q perplexity.Query) (*perplexity.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	for claim := range s.fail {
		if strings.HasPrefix(q.Prompt, claim) {
			return nil, errors.New("search failed")
		}
	}
	for claim, cites := range s.citations {
		if strings.HasPrefix(q.Prompt, claim) {
			return &perplexity.Response{Content: "verification of " + claim, Citations: cites}, nil
		}
	}
	return &perplexity.Response{Content: "nothing found"}, nil
}

func (s *stubSearch) Available() bool { return s.available }

func newChecker(t *testing.T, model Completer, search Searcher) *Checker {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.MaxClaims = 3
	return New(cfg, model, search, logging.NewNop())
}

func TestCheckArticleAggregatesVerdicts(t *testing.T) {
	model := &scriptedModel{
		claims: `["Go 1.22 でループ変数の仕様が変わった", "SQLite は常に並列書き込みできる", "曖昧な主張"]`,
		verdicts: map[string]string{
			"Go 1.22 でループ変数の仕様が変わった": `{"verification_status": "verified", "confidence": 0.9, "corrected_claim": null, "notes": "release notes"}`,
			"SQLite は常に並列書き込みできる":     "```json\n{\"verification_status\": \"incorrect\", \"confidence\": 0.8, \"corrected_claim\": \"SQLite の書き込みは直列化される\"}\n```",
			"曖昧な主張":                   "よくわかりません",
		},
	}
	search := &stubSearch{
		available: true,
		citations: map[string][]perplexity.Citation{
			"Go 1.22":   {{Title: "Go 1.22 Release Notes", URL: "https://go.dev/doc/go1.22"}},
			"SQLite は常に": {{Title: "SQLite locking", URL: "https://sqlite.org/lockingv3.html"}, {Title: "dup", URL: "https://go.dev/doc/go1.22"}},
		},
	}
	check := newChecker(t, model, search).CheckArticle(context.Background(), "本文", "記事")

	if check.TotalClaims != 3 || len(check.Results) != 3 {
		t.Fatalf("claims = %d, results = %d", check.TotalClaims, len(check.Results))
	}
	if check.VerifiedCount != 1 || check.UnverifiedCount != 2 || check.CorrectionsNeeded != 1 {
		t.Fatalf("counts = %+v", check)
	}
	if math.Abs(check.OverallAccuracy-1.0/3.0) > 1e-9 {
		t.Fatalf("accuracy = %v", check.OverallAccuracy)
	}
	fallback := check.Results[2]
	if fallback.Status != StatusUnverified || fallback.Confidence != 0.5 || len(fallback.Sources) != 0 {
		t.Fatalf("fallback result = %+v", fallback)
	}
	if len(check.Citations) != 2 {
		t.Fatalf("citations should be de-duplicated by URL: %+v", check.Citations)
	}
	if check.Citations[0].Snippet != "Verification for: Go 1.22 でループ変数の仕様が変わった" {
		t.Fatalf("snippet = %q", check.Citations[0].Snippet)
	}

	q := search.queries[0]
	if !strings.HasPrefix(q.Prompt, "Go 1.22 でループ変数の仕様が変わった technical documentation verification") {
		t.Fatalf("query = %q", q.Prompt)
	}
	if q.MaxTokens != 1000 || q.Temperature == nil || *q.Temperature != 0.2 {
		t.Fatalf("query params = %+v", q)
	}
}

func TestCheckArticleClampsOutOfRangeConfidence(t *testing.T) {
	model := &scriptedModel{
		claims: `["Go has a garbage collector", "Rust has no garbage collector"]`,
		verdicts: map[string]string{
			"Go has a garbage collector":    `{"verification_status": "verified", "confidence": 1.02}`,
			"Rust has no garbage collector": `{"verification_status": "partially_verified", "confidence": -0.1}`,
		},
	}
	search := &stubSearch{available: true}
	check := newChecker(t, model, search).CheckArticle(context.Background(), "本文", "記事")

	if len(check.Results) != 2 {
		t.Fatalf("results = %+v", check.Results)
	}
	if r := check.Results[0]; r.Status != StatusVerified || r.Confidence != 1 || r.Notes == fallbackNote {
		t.Fatalf("high verdict = %+v", r)
	}
	if r := check.Results[1]; r.Status != StatusPartiallyVerified || r.Confidence != 0 {
		t.Fatalf("low verdict = %+v", r)
	}
}

func TestCheckArticleCapsClaims(t *testing.T) {
	model := &scriptedModel{claims: `["a1", "a2", "a3", "a4", "a5"]`}
	search := &stubSearch{available: true}
	check := newChecker(t, model, search).CheckArticle(context.Background(), "本文", "記事")
	if check.TotalClaims != 3 || len(search.queries) != 3 {
		t.Fatalf("expected three claims, got %d (%d queries)", check.TotalClaims, len(search.queries))
	}
}

func TestCheckArticleSkipsFailedSearches(t *testing.T) {
	model := &scriptedModel{
		claims:   `["first claim", "second claim"]`,
		verdicts: map[string]string{"second claim": `{"verification_status": "verified", "confidence": 1}`},
	}
	search := &stubSearch{available: true, fail: map[string]bool{"first claim": true}}
	check := newChecker(t, model, search).CheckArticle(context.Background(), "本文", "記事")
	if check.TotalClaims != 2 || len(check.Results) != 1 || check.OverallAccuracy != 1 {
		t.Fatalf("check = %+v", check)
	}
}

func TestCheckArticleWithoutSearchIsEmpty(t *testing.T) {
	model := &scriptedModel{claims: `["x"]`}
	check := newChecker(t, model, &stubSearch{}).CheckArticle(context.Background(), "本文", "記事")
	if check.TotalClaims != 0 || check.OverallAccuracy != 1.0 {
		t.Fatalf("check = %+v", check)
	}
	if h := newChecker(t, model, &stubSearch{}).HealthCheck(context.Background()); h.Ready {
		t.Fatal("expected unhealthy without search client")
	}
}

func TestCheckArticleNoClaims(t *testing.T) {
	model := &scriptedModel{claims: "[]"}
	search := &stubSearch{available: true}
	check := newChecker(t, model, search).CheckArticle(context.Background(), "本文", "記事")
	if check.TotalClaims != 0 || check.OverallAccuracy != 1.0 || len(search.queries) != 0 {
		t.Fatalf("check = %+v", check)
	}
}

func TestAggregateEmpty(t *testing.T) {
	if got := Aggregate(0, nil); got.OverallAccuracy != 1.0 {
		t.Fatalf("accuracy = %v", got.OverallAccuracy)
	}
}

func TestVerificationUsesSearchAPI(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":     "sonar",
			"choices":   []any{map[string]any{"message": map[string]any{"content": "Confirmed."}}},
			"citations": []string{"https://example.com/doc"},
		})
	}))
	defer server.Close()

	client := perplexity.NewClient(perplexity.Config{APIKey: "k", BaseURL: server.URL, Model: "sonar"})
	model := &scriptedModel{
		claims:   `["HTTP/2 multiplexes streams"]`,
		verdicts: map[string]string{"HTTP/2 multiplexes streams": `{"verification_status": "verified", "confidence": 0.95}`},
	}
	check := newChecker(t, model, client).CheckArticle(context.Background(), "本文", "記事")
	if check.VerifiedCount != 1 || len(check.Citations) != 1 || check.Citations[0].URL != "https://example.com/doc" {
		t.Fatalf("check = %+v", check)
	}
	if body["temperature"] != 0.2 || body["max_tokens"] != float64(1000) {
		t.Fatalf("request body = %v", body)
	}
}

func TestApplyWritesCitationsAndCorrections(t *testing.T) {
	doc := "---\ntitle: \"t\"\n---\n\n本文\n"
	check := Aggregate(2, []Result{
		{Claim: "A", Status: StatusVerified, Sources: []Source{{Title: "Doc", URL: "https://a.example"}}},
		{Claim: "B", Status: StatusIncorrect, CorrectedClaim: "B'", Notes: "理由"},
	})
	out := Apply(doc, check)
	if !strings.Contains(out, `researchCitations: [{"title":"Doc","url":"https://a.example","snippet":"Verification for: A"}]`) {
		t.Fatalf("citations missing:\n%s", out)
	}
	want := "## 📝 事実確認結果\n\nこの記事の技術的主張のうち、1件に修正が推奨されます。\n\n### 修正推奨\n\n**元の主張**: B\n\n**推奨される修正**: B'\n\n**補足**: 理由\n"
	if !strings.HasSuffix(out, want) {
		t.Fatalf("corrections missing:\n%s", out)
	}
}

func TestApplyWithoutCorrectionsLeavesBody(t *testing.T) {
	doc := "---\ntitle: \"t\"\n---\n\n本文\n"
	if got := Apply(doc, Aggregate(0, nil)); got != doc {
		t.Fatalf("document changed:\n%s", got)
	}
}

func TestUpdateFileRequiresFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.md")
	testsupport.WriteText(t, path, "no frontmatter\n")
	if err := UpdateFile(path, Aggregate(0, nil)); err == nil {
		t.Fatal("expected error for missing frontmatter")
	}

	good := filepath.Join(dir, "good.md")
	testsupport.WriteText(t, good, "---\ntitle: \"g\"\n---\n\nbody\n")
	check := Aggregate(1, []Result{{Claim: "c", Status: StatusVerified, Sources: []Source{{Title: "s", URL: "https://s.example"}}}})
	if err := UpdateFile(good, check); err != nil {
		t.Fatalf("UpdateFile: %v", err)
	}
	data, _ := os.ReadFile(good)
	if !strings.Contains(string(data), "researchCitations:") {
		t.Fatalf("file = %s", data)
	}
}
