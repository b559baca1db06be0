// Package factcheck verifies the technical claims in a generated article.
//
// Claims are extracted by the model, checked one at a time through the
// search client and structured back into a verdict by the model. Any
// failure along the way downgrades a claim to unverified instead of
// aborting the article.
package factcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"gardenpipe/internal/config"
	"gardenpipe/internal/logging"
	"gardenpipe/internal/services/llm"
	"gardenpipe/internal/services/perplexity"
	"gardenpipe/internal/stage"
	"gardenpipe/internal/structured"
	"gardenpipe/internal/textutil"
)

// Verification statuses.
const (
	StatusVerified          = "verified"
	StatusPartiallyVerified = "partially_verified"
	StatusUnverified        = "unverified"
	StatusIncorrect         = "incorrect"
)

const (
	defaultMaxClaims   = 5
	maxSourcesPerClaim = 5
	fallbackConfidence = 0.5
	fallbackNote       = "解析エラーが発生しました"
)

// Source is one citation attached to a claim.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Citation is a de-duplicated source for the whole article.
type Citation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Result is the verdict for one claim.
type Result struct {
	Claim          string
	Status         string
	Confidence     float64
	Sources        []Source
	CorrectedClaim string
	Notes          string
}

// ArticleFactCheck aggregates the verdicts for one article.
type ArticleFactCheck struct {
	TotalClaims       int
	VerifiedCount     int
	UnverifiedCount   int
	CorrectionsNeeded int
	Results           []Result
	OverallAccuracy   float64
	Citations         []Citation
}

func emptyCheck() ArticleFactCheck {
	return ArticleFactCheck{OverallAccuracy: 1.0}
}

// Completer is the model client used for extraction and structuring.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
	Available() bool
}

// Searcher verifies a claim against the web.
type Searcher interface {
	Search(ctx context.Context, q perplexity.Query) (*perplexity.Response, error)
	Available() bool
}

// Checker runs fact checks.
type Checker struct {
	llm       Completer
	search    Searcher
	logger    *slog.Logger
	maxClaims int
}

// New constructs a checker.
func New(cfg *config.Config, client Completer, search Searcher, logger *slog.Logger) *Checker {
	limit := cfg.Pipeline.MaxClaims
	if limit <= 0 {
		limit = defaultMaxClaims
	}
	return &Checker{
		llm:       client,
		search:    search,
		logger:    logging.NewComponentLogger(logger, "factcheck"),
		maxClaims: limit,
	}
}

var claimsDecoder = structured.MustDecoder("fact check claims", `{
	"type": "array",
	"items": {"type": "string"}
}`)

var verdictDecoder = structured.MustDecoder("fact check verdict", `{
	"type": "object",
	"required": ["verification_status", "confidence"],
	"properties": {
		"verification_status": {"enum": ["verified", "partially_verified", "unverified", "incorrect"]},
		"confidence": {"type": "number"},
		"corrected_claim": {"type": ["string", "null"]},
		"notes": {"type": ["string", "null"]}
	}
}`)

type verdict struct {
	Status         string  `json:"verification_status"`
	Confidence     float64 `json:"confidence"`
	CorrectedClaim string  `json:"corrected_claim"`
	Notes          string  `json:"notes"`
}

// CheckArticle extracts and verifies up to the configured number of claims.
// It never fails: without a search client, or when no claims are found, the
// empty result with accuracy 1.0 is returned.
func (c *Checker) CheckArticle(ctx context.Context, content, title string) ArticleFactCheck {
	logger := logging.WithContext(ctx, c.logger)
	if c.search == nil || !c.search.Available() {
		logger.Info("fact check skipped",
			logging.String(logging.FieldEventType, "factcheck_skipped"),
			logging.String("reason", "search client unavailable"))
		return emptyCheck()
	}
	if c.llm == nil || !c.llm.Available() {
		logger.Info("fact check skipped",
			logging.String(logging.FieldEventType, "factcheck_skipped"),
			logging.String("reason", "model client unavailable"))
		return emptyCheck()
	}

	claims, err := c.ExtractClaims(ctx, content, title)
	if err != nil {
		logging.WarnWithContext(logger, "claim extraction failed", "factcheck_extract_failed",
			logging.String(logging.FieldImpact, "article published without fact check"),
			logging.Error(err))
		return emptyCheck()
	}
	if len(claims) == 0 {
		logger.Info("no verifiable claims", logging.String(logging.FieldEventType, "factcheck_no_claims"))
		return emptyCheck()
	}

	results := make([]Result, 0, len(claims))
	for i, claim := range claims {
		if err := ctx.Err(); err != nil {
			break
		}
		logger.Debug("verifying claim",
			logging.Int("index", i+1),
			logging.Int("total", len(claims)),
			logging.String("claim", textutil.Truncate(claim, 50, "...")))
		result, err := c.verify(ctx, claim)
		if err != nil {
			logging.WarnWithContext(logger, "claim verification failed", "factcheck_verify_failed",
				logging.String(logging.FieldImpact, "claim left out of fact check"),
				logging.Error(err))
			continue
		}
		results = append(results, result)
	}

	check := Aggregate(len(claims), results)
	logger.Info("fact check completed",
		logging.String(logging.FieldEventType, "factcheck_completed"),
		logging.Int("claims", check.TotalClaims),
		logging.Int("verified", check.VerifiedCount),
		logging.Int("corrections", check.CorrectionsNeeded),
		logging.Float64("accuracy", check.OverallAccuracy))
	return check
}

// ExtractClaims asks the model for verifiable technical claims, capped at
// the configured maximum.
func (c *Checker) ExtractClaims(ctx context.Context, content, title string) ([]string, error) {
	raw, err := c.llm.Complete(ctx, llm.Request{
		Prompt:      extractionPrompt(content, title),
		MaxTokens:   2000,
		Temperature: llm.Temperature(0.3),
	})
	if err != nil {
		return nil, err
	}
	var decoded []string
	if err := claimsDecoder.Decode(raw, &decoded); err != nil {
		return nil, err
	}
	claims := make([]string, 0, len(decoded))
	for _, claim := range decoded {
		claim = strings.TrimSpace(claim)
		if claim == "" {
			continue
		}
		claims = append(claims, claim)
		if len(claims) == c.maxClaims {
			break
		}
	}
	return claims, nil
}

func (c *Checker) verify(ctx context.Context, claim string) (Result, error) {
	resp, err := c.search.Search(ctx, perplexity.Query{
		System:      "You are a technical fact-checker. Verify claims using official documentation and reliable sources.",
		Prompt:      verificationPrompt(claim),
		MaxTokens:   1000,
		Temperature: llm.Temperature(0.2),
	})
	if err != nil {
		return Result{}, err
	}
	return c.structure(ctx, claim, resp), nil
}

// structure turns a free-text verification into a verdict.
func (c *Checker) structure(ctx context.Context, claim string, resp *perplexity.Response) Result {
	urls := make([]string, 0, len(resp.Citations))
	for _, citation := range resp.Citations {
		if citation.URL != "" {
			urls = append(urls, citation.URL)
		}
	}
	raw, err := c.llm.Complete(ctx, llm.Request{
		Prompt:      structuringPrompt(claim, resp.Content, urls),
		MaxTokens:   500,
		Temperature: llm.Temperature(0.2),
	})
	var v verdict
	if err == nil {
		err = verdictDecoder.Decode(raw, &v)
	}
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "verdict parsing failed", "factcheck_parse_failed",
			logging.String(logging.FieldImpact, "claim recorded as unverified"),
			logging.Error(err))
		return Result{Claim: claim, Status: StatusUnverified, Confidence: fallbackConfidence, Notes: fallbackNote}
	}
	sources := make([]Source, 0, maxSourcesPerClaim)
	for _, citation := range resp.Citations {
		if citation.URL == "" {
			continue
		}
		title := citation.Title
		if title == "" {
			title = citation.URL
		}
		sources = append(sources, Source{Title: title, URL: citation.URL})
		if len(sources) == maxSourcesPerClaim {
			break
		}
	}
	return Result{
		Claim:          claim,
		Status:         v.Status,
		Confidence:     clamp01(v.Confidence),
		Sources:        sources,
		CorrectedClaim: strings.TrimSpace(v.CorrectedClaim),
		Notes:          strings.TrimSpace(v.Notes),
	}
}

// Aggregate computes the article totals. Accuracy is verified over checked
// results, or 1.0 when nothing was checked.
func Aggregate(totalClaims int, results []Result) ArticleFactCheck {
	check := ArticleFactCheck{TotalClaims: totalClaims, Results: results, OverallAccuracy: 1.0}
	for _, r := range results {
		switch r.Status {
		case StatusVerified:
			check.VerifiedCount++
		case StatusUnverified, StatusIncorrect:
			check.UnverifiedCount++
		}
		if r.CorrectedClaim != "" {
			check.CorrectionsNeeded++
		}
	}
	if len(results) > 0 {
		check.OverallAccuracy = float64(check.VerifiedCount) / float64(len(results))
	}
	check.Citations = collectCitations(results)
	return check
}

func collectCitations(results []Result) []Citation {
	var citations []Citation
	seen := make(map[string]struct{})
	for _, r := range results {
		for _, s := range r.Sources {
			if _, ok := seen[s.URL]; ok {
				continue
			}
			seen[s.URL] = struct{}{}
			citations = append(citations, Citation{
				Title:   s.Title,
				URL:     s.URL,
				Snippet: "Verification for: " + textutil.Truncate(r.Claim, 50, "..."),
			})
		}
	}
	return citations
}

// HealthCheck reports whether fact checks can run.
func (c *Checker) HealthCheck(context.Context) stage.Health {
	if c.search == nil || !c.search.Available() {
		return stage.Unhealthy("factcheck", "perplexity api key missing")
	}
	if c.llm == nil || !c.llm.Available() {
		return stage.Unhealthy("factcheck", "anthropic api key missing")
	}
	return stage.Healthy("factcheck")
}

func extractionPrompt(content, title string) string {
	return fmt.Sprintf(`以下の技術記事から、事実確認が必要な具体的な技術的主張を抽出してください。

# 記事情報
タイトル: %s

# 記事コンテンツ
%s

# タスク
抽出対象:
1. 技術仕様や機能の説明
2. パフォーマンス指標や数値的な主張
3. ベストプラクティスや推奨事項
4. 技術の歴史的事実

除外対象:
- 個人的な意見や感想
- 主観的な評価
- 将来の予測や憶測
- 一般的な常識

# 出力形式
検証可能な主張のみをJSON配列で返してください:
["主張1の文章", "主張2の文章"]

主張が見つからない場合は空配列 [] を返してください。
JSON配列のみ返してください（コードブロックなし）。`, title, content)
}

func verificationPrompt(claim string) string {
	return claim + " technical documentation verification\n\n" +
		"Verify this technical claim: \"" + claim + "\"\n\n" +
		"Provide: 1) verification status (verified/partially_verified/unverified/incorrect), " +
		"2) confidence score (0-1), 3) sources used, 4) corrected version if incorrect."
}

func structuringPrompt(claim, verification string, urls []string) string {
	encoded, err := json.Marshal(urls)
	if err != nil {
		encoded = []byte("[]")
	}
	return fmt.Sprintf(`以下の検証結果を構造化してください。

元の主張: %s

検証結果:
%s

引用元: %s

以下のJSON形式のみで返してください（コードブロックなし）:
{"verification_status": "verified | partially_verified | unverified | incorrect", "confidence": 0.85, "corrected_claim": "修正版の主張（incorrectの場合のみ、それ以外はnull）", "notes": "検証に関する補足説明"}`, claim, verification, encoded)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
