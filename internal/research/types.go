package research

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Priority orders research queries.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Verification statuses for heuristic claim checks.
const (
	StatusVerified          = "verified"
	StatusPartiallyVerified = "partially_verified"
	StatusUnverified        = "unverified"
)

// Credibility labels.
const (
	LabelHigh       = "high_credibility"
	LabelMedium     = "medium_credibility"
	LabelLow        = "low_credibility"
	LabelUnreliable = "unreliable"
	LabelNoSources  = "no_sources"
)

var (
	// ErrNoQueries means the content offered nothing worth searching for.
	ErrNoQueries = errors.New("no research queries generated")
	// ErrNoResults means every query failed or returned nothing.
	ErrNoResults = errors.New("no research results obtained")
)

// Content is the input to Research.
type Content struct {
	Text     string
	Category string
	Title    string
}

// Query is one search to run.
type Query struct {
	Query         string
	Context       string
	Priority      Priority
	RecencyFilter string
}

// Source is one cited page.
type Source struct {
	Title            string
	URL              string
	Snippet          string
	PublishedDate    string
	CredibilityScore float64
	RelevanceScore   float64
}

// SourceRef identifies a supporting source in a claim check.
type SourceRef struct {
	Title string
	URL   string
}

// FactCheck is the heuristic verdict for one claim.
type FactCheck struct {
	Claim                string
	Status               string
	SupportingSources    int
	ContradictingSources int
	Confidence           float64
	Sources              []SourceRef
}

// Assessment summarizes how trustworthy a result is.
type Assessment struct {
	OverallScore         float64
	Label                string
	SourceCount          int
	AvgSourceCredibility float64
	FactCheckBoost       float64
	VerifiedClaims       int
}

// Result is the research for one query, or the consolidation of several.
type Result struct {
	Query        string
	Summary      string
	Sources      []Source
	FactChecks   []FactCheck
	Credibility  Assessment
	ResearchTime time.Duration
	Metadata     map[string]any
}

// Digest renders the result as the plain-text block handed to content
// generation.
func (r *Result) Digest() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(r.Summary)
	if len(r.Sources) > 0 {
		b.WriteString("\n\n参考情報源:")
		for i, s := range r.Sources {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "\n- %s (%s)", s.Title, s.URL)
		}
	}
	if r.Credibility.Label != "" {
		fmt.Fprintf(&b, "\n\n信頼性: %s (%.2f)", r.Credibility.Label, r.Credibility.OverallScore)
	}
	return b.String()
}
