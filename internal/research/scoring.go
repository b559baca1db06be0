package research

import (
	"cmp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"gardenpipe/internal/textutil"
)

var highCredibilityDomains = []string{
	"gov.jp", ".go.jp", "jiji.com", "nikkei.com", "reuters.com",
	"bloomberg.com", "wsj.com", "harvard.edu", ".edu",
	"nature.com", "science.org", "ieee.org",
}

var mediumCredibilityDomains = []string{
	"yahoo.co.jp", "mainichi.jp", "asahi.com", "yomiuri.co.jp",
	"techcrunch.com", "forbes.com", "businessinsider.com",
}

var researchTitleTerms = []string{"研究", "調査", "報告書", "study", "report"}

const (
	maxSources        = 10
	sourcesPerQuery   = 5
	snippetRuneCap    = 200
	summaryPoints     = 5
	claimsToVerify    = 3
	recentSourceDays  = 30
	noResearchSummary = "調査結果なし"
)

// CredibilityScore rates a source from its domain, title and age.
func CredibilityScore(url, title, published string, now time.Time) float64 {
	score := 0.5
	url = strings.ToLower(url)
	title = strings.ToLower(title)
	if containsAny(url, highCredibilityDomains) {
		score = max(score, 0.9)
	}
	if containsAny(url, mediumCredibilityDomains) {
		score = max(score, 0.7)
	}
	if containsAny(title, researchTitleTerms) {
		score += 0.1
	}
	if pub, ok := parsePublished(published); ok && now.Sub(pub) < recentSourceDays*24*time.Hour {
		score += 0.05
	}
	return min(1.0, score)
}

// RelevanceScore rates how many query terms a source's title and snippet
// repeat.
func RelevanceScore(title, snippet, query string) float64 {
	score := 0.5
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return score
	}
	title = strings.ToLower(title)
	snippet = strings.ToLower(snippet)
	var inTitle, inSnippet int
	for _, term := range terms {
		if strings.Contains(title, term) {
			inTitle++
		}
		if strings.Contains(snippet, term) {
			inSnippet++
		}
	}
	n := float64(len(terms))
	score += float64(inTitle) / n * 0.3
	score += float64(inSnippet) / n * 0.2
	return min(1.0, score)
}

func parsePublished(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Consolidate merges per-query results: sources are de-duplicated by URL
// (first occurrence wins), ranked by credibility × relevance and capped at
// ten.
func Consolidate(results []*Result) *Result {
	if len(results) == 0 {
		return &Result{Query: "consolidated", Summary: noResearchSummary}
	}
	var sources []Source
	seen := make(map[string]struct{})
	var summaries []string
	var elapsed time.Duration
	for _, r := range results {
		for _, s := range r.Sources {
			if _, dup := seen[s.URL]; dup {
				continue
			}
			seen[s.URL] = struct{}{}
			sources = append(sources, s)
		}
		if r.Summary != "" {
			summaries = append(summaries, r.Summary)
		}
		elapsed += r.ResearchTime
	}
	slices.SortStableFunc(sources, func(a, b Source) int {
		return cmp.Compare(b.CredibilityScore*b.RelevanceScore, a.CredibilityScore*a.RelevanceScore)
	})
	total := len(sources)
	return &Result{
		Query:        "consolidated",
		Summary:      ConsolidatedSummary(summaries),
		Sources:      firstN(sources, maxSources),
		ResearchTime: elapsed,
		Metadata: map[string]any{
			"consolidated_from": len(results),
			"total_sources":     total,
		},
	}
}

// ConsolidatedSummary bullets the first sentence of each summary.
func ConsolidatedSummary(summaries []string) string {
	if len(summaries) == 0 {
		return noResearchSummary
	}
	var points []string
	for _, s := range summaries {
		first, _, _ := strings.Cut(s, "。")
		first += "。"
		if utf8.RuneCountInString(first) > 10 {
			points = append(points, "• "+first)
		}
	}
	if len(points) == 0 {
		return textutil.Truncate(summaries[0], snippetRuneCap, "")
	}
	return "調査結果:\n" + strings.Join(firstN(points, summaryPoints), "\n")
}

// VerifyClaim counts sources whose snippet repeats any claim word longer
// than three runes.
func VerifyClaim(claim string, sources []Source) FactCheck {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(claim)) {
		if utf8.RuneCountInString(w) > 3 {
			words = append(words, w)
		}
	}
	var supporting []Source
	for _, s := range sources {
		if containsAny(strings.ToLower(s.Snippet), words) {
			supporting = append(supporting, s)
		}
	}
	status := StatusUnverified
	switch {
	case len(supporting) >= 2:
		status = StatusVerified
	case len(supporting) == 1:
		status = StatusPartiallyVerified
	}
	refs := make([]SourceRef, 0, min(3, len(supporting)))
	for _, s := range firstN(supporting, 3) {
		refs = append(refs, SourceRef{Title: s.Title, URL: s.URL})
	}
	return FactCheck{
		Claim:             claim,
		Status:            status,
		SupportingSources: len(supporting),
		Confidence:        min(1.0, float64(len(supporting))*0.3),
		Sources:           refs,
	}
}

// Assess scores a consolidated result from its sources and claim checks.
func Assess(r *Result) Assessment {
	if len(r.Sources) == 0 {
		return Assessment{Label: LabelNoSources}
	}
	var sum float64
	for _, s := range r.Sources {
		sum += s.CredibilityScore
	}
	avg := sum / float64(len(r.Sources))
	verified := 0
	for _, fc := range r.FactChecks {
		if fc.Status == StatusVerified {
			verified++
		}
	}
	var boost float64
	if len(r.FactChecks) > 0 {
		boost = float64(verified) / float64(len(r.FactChecks)) * 0.2
	}
	overall := min(1.0, avg+boost)
	label := LabelUnreliable
	switch {
	case overall >= 0.8:
		label = LabelHigh
	case overall >= 0.6:
		label = LabelMedium
	case overall >= 0.4:
		label = LabelLow
	}
	return Assessment{
		OverallScore:         overall,
		Label:                label,
		SourceCount:          len(r.Sources),
		AvgSourceCredibility: avg,
		FactCheckBoost:       boost,
		VerifiedClaims:       verified,
	}
}
