package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gardenpipe/internal/config"
	"gardenpipe/internal/logging"
	"gardenpipe/internal/services"
	"gardenpipe/internal/services/perplexity"
	"gardenpipe/internal/stage"
	"gardenpipe/internal/textutil"
)

const defaultCacheTTL = 24 * time.Hour

// Searcher answers one search query with citations.
type Searcher interface {
	Search(ctx context.Context, q perplexity.Query) (*perplexity.Response, error)
	Available() bool
	Model() string
}

// Researcher runs and caches searches for classified content.
type Researcher struct {
	client  Searcher
	logger  *slog.Logger
	recency string
	cache   *cache
	now     func() time.Time
}

// Option customizes the researcher.
type Option func(*Researcher)

// WithClock overrides the time source used for cache expiry and source age.
func WithClock(now func() time.Time) Option {
	return func(r *Researcher) {
		if now != nil {
			r.now = now
		}
	}
}

// WithCacheTTL overrides the cache lifetime.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Researcher) {
		if ttl > 0 {
			r.cache.ttl = ttl
		}
	}
}

// New constructs a researcher backed by client.
func New(cfg *config.Config, client Searcher, logger *slog.Logger, opts ...Option) *Researcher {
	ttl := defaultCacheTTL
	if cfg.Performance.CacheTTLHours > 0 {
		ttl = time.Duration(cfg.Performance.CacheTTLHours) * time.Hour
	}
	r := &Researcher{
		client:  client,
		logger:  logging.NewComponentLogger(logger, "research"),
		recency: cfg.Research.SearchRecencyFilter,
		now:     time.Now,
	}
	r.cache = newCache(ttl, func() time.Time { return r.now() })
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Research runs every derived query and consolidates the answers.
// ErrNoQueries and ErrNoResults report that there was nothing to add.
func (r *Researcher) Research(ctx context.Context, content Content) (*Result, error) {
	logger := logging.WithContext(ctx, r.logger)
	if r.client == nil || !r.client.Available() {
		return nil, services.Wrap(services.ErrConfiguration, "research", "research", "search client not configured", nil)
	}
	started := r.now()
	queries := GenerateQueries(content, r.recency)
	if len(queries) == 0 {
		logger.Debug("no research queries generated",
			logging.Int("content_length", len([]rune(content.Text))))
		return nil, ErrNoQueries
	}

	var results []*Result
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := r.Query(ctx, q)
		if err != nil {
			logging.WarnWithContext(logger, "research query failed", "research_query_failed",
				logging.String("query", textutil.Truncate(q.Query, 50, "...")),
				logging.String(logging.FieldErrorKind, services.Kind(err)),
				logging.String(logging.FieldImpact, "query skipped"),
				logging.Error(err))
			continue
		}
		results = append(results, res)
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	consolidated := Consolidate(results)
	for _, claim := range firstN(ExtractFactualClaims(content.Text), claimsToVerify) {
		consolidated.FactChecks = append(consolidated.FactChecks, VerifyClaim(claim, consolidated.Sources))
	}
	consolidated.Credibility = Assess(consolidated)
	consolidated.ResearchTime = r.now().Sub(started)
	consolidated.Metadata["queries"] = len(queries)

	logger.Info("content research completed",
		logging.String(logging.FieldEventType, "research_complete"),
		logging.Int("queries", len(queries)),
		logging.Int("sources", len(consolidated.Sources)),
		logging.String("credibility", fmt.Sprintf("%.2f", consolidated.Credibility.OverallScore)))
	return consolidated, nil
}

// Query answers a single query, consulting the cache first. Stale entries
// are refetched and replaced.
func (r *Researcher) Query(ctx context.Context, q Query) (*Result, error) {
	key := cacheKey(q.Query)
	if cached, ok := r.cache.get(key); ok {
		r.logger.Debug("using cached research result", logging.String("query", textutil.Truncate(q.Query, 50, "...")))
		return cached, nil
	}
	started := r.now()
	resp, err := r.client.Search(ctx, perplexity.Query{
		Prompt:        searchPrompt(q.Query),
		RecencyFilter: q.RecencyFilter,
	})
	if err != nil {
		return nil, err
	}
	res := r.parseResponse(q.Query, resp)
	res.ResearchTime = r.now().Sub(started)
	r.cache.put(key, res)
	return res, nil
}

func (r *Researcher) parseResponse(query string, resp *perplexity.Response) *Result {
	summary, _, _ := strings.Cut(resp.Content, "\n\n")
	now := r.now()
	sources := make([]Source, 0, min(len(resp.Citations), sourcesPerQuery))
	for _, c := range firstN(resp.Citations, sourcesPerQuery) {
		title := c.Title
		if title == "" {
			title = "Unknown Title"
		}
		sources = append(sources, Source{
			Title:            title,
			URL:              c.URL,
			Snippet:          textutil.Truncate(c.Snippet, snippetRuneCap, ""),
			PublishedDate:    c.Date,
			CredibilityScore: CredibilityScore(c.URL, title, c.Date, now),
			RelevanceScore:   RelevanceScore(title, c.Snippet, query),
		})
	}
	return &Result{
		Query:   query,
		Summary: strings.TrimSpace(summary),
		Sources: sources,
		Metadata: map[string]any{
			"timestamp":      now.Format(time.RFC3339),
			"api_model":      resp.Model,
			"citation_count": len(resp.Citations),
		},
	}
}

func searchPrompt(query string) string {
	return "以下について最新の信頼性の高い情報を調査してください：\n\n" + query +
		"\n\n以下の形式で回答してください：\n1. 要約（2-3文）\n2. 主要な発見事項\n3. 情報源の詳細（URL、発行日、信頼性）\n\n" +
		"回答は日本語でお願いします。最新の情報を優先してください。"
}

// CleanupCache evicts expired entries and returns how many were removed.
func (r *Researcher) CleanupCache() int {
	removed := r.cache.cleanup()
	if removed > 0 {
		r.logger.Info("research cache cleanup completed", logging.Int("expired_entries", removed))
	}
	return removed
}

// Info describes the researcher configuration and cache.
func (r *Researcher) Info() map[string]string {
	info := map[string]string{
		"available":       "false",
		"cache_entries":   fmt.Sprint(r.cache.size()),
		"cache_ttl_hours": fmt.Sprintf("%g", r.cache.ttl.Hours()),
	}
	if r.client != nil {
		info["model"] = r.client.Model()
		info["available"] = fmt.Sprint(r.client.Available())
	}
	return info
}

// HealthCheck reports whether searches can be issued.
func (r *Researcher) HealthCheck(context.Context) stage.Health {
	if r.client == nil || !r.client.Available() {
		return stage.Unhealthy("research", "perplexity api key not configured")
	}
	return stage.Healthy("research")
}
