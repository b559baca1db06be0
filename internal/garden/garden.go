// Package garden classifies free-form notes into the public site's
// insights, ideas and weekly-reviews collections and writes them as
// Markdown articles.
//
// This taxonomy is separate from the insight/diary/resume/profile
// categories in package classification; the two are never mixed.
package garden

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"gardenpipe/internal/fileutil"
	"gardenpipe/internal/logging"
	"gardenpipe/internal/markdown"
	"gardenpipe/internal/services"
	"gardenpipe/internal/services/llm"
	"gardenpipe/internal/structured"
	"gardenpipe/internal/textutil"
)

// Category is a site collection.
type Category string

const (
	Insights      Category = "insights"
	Ideas         Category = "ideas"
	WeeklyReviews Category = "weekly-reviews"
)

const (
	titleLimit       = 40
	descriptionLimit = 100
	maxTags          = 5
	minTags          = 3
	slugLimit        = 50
	requestTokens    = 4000
	temperature      = 0.7
)

// Result is a classified, structured article.
type Result struct {
	Category        Category
	Title           string
	Description     string
	Tags            []string
	Confidence      float64
	MarkdownContent string
	PubDate         time.Time
}

// Completer is the model client used for classification.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
	Available() bool
	Model() string
}

// Classifier turns notes into site articles.
type Classifier struct {
	client Completer
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes the classifier.
type Option func(*Classifier)

// WithClock overrides the time source for publication dates and slugs.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a classifier.
func New(client Completer, logger *slog.Logger, opts ...Option) *Classifier {
	c := &Classifier{
		client: client,
		logger: logging.NewComponentLogger(logger, "garden"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var resultDecoder = structured.MustDecoder("garden classification", `{
	"type": "object",
	"required": ["category", "title", "description", "tags", "markdown_content"],
	"properties": {
		"category": {"enum": ["insights", "ideas", "weekly-reviews"]},
		"title": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"tags": {
			"oneOf": [
				{"type": "string"},
				{"type": "array", "items": {"type": "string"}}
			]
		},
		"confidence": {"type": "number"},
		"markdown_content": {"type": "string", "minLength": 1}
	}
}`)

type payload struct {
	Category        string   `json:"category"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Tags            []string `json:"tags"`
	Confidence      float64  `json:"confidence"`
	MarkdownContent string   `json:"markdown_content"`
}

// Classify asks the model to categorize and restructure content.
func (c *Classifier) Classify(ctx context.Context, content, sourceFile string) (*Result, error) {
	if sourceFile != "" {
		ctx = services.WithItem(ctx, sourceFile)
	}
	logger := logging.WithContext(ctx, c.logger)
	if strings.TrimSpace(content) == "" {
		return nil, services.Wrap(services.ErrValidation, "garden", "classify", "empty content", nil)
	}
	if c.client == nil || !c.client.Available() {
		return nil, services.Wrap(services.ErrConfiguration, "garden", "classify", "model client not configured", nil)
	}
	logger.Info("garden classification started",
		logging.String(logging.FieldEventType, "garden_classify_start"),
		logging.Int("characters", utf8.RuneCountInString(content)))

	raw, err := c.client.Complete(ctx, llm.Request{
		Prompt:      prompt(content, sourceFile),
		MaxTokens:   requestTokens,
		Temperature: llm.Temperature(temperature),
	})
	if err != nil {
		return nil, err
	}
	var p payload
	if err := resultDecoder.Decode(raw, &p); err != nil {
		logging.ErrorWithContext(logger, "garden classification response rejected", "garden_classify_invalid",
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Error(err))
		return nil, err
	}
	result := &Result{
		Category:        Category(p.Category),
		Title:           textutil.Truncate(strings.TrimSpace(p.Title), titleLimit, ""),
		Description:     textutil.Truncate(strings.TrimSpace(p.Description), descriptionLimit, ""),
		Tags:            normalizeTags(p.Tags),
		Confidence:      clamp01(p.Confidence),
		MarkdownContent: strings.TrimSpace(p.MarkdownContent),
		PubDate:         c.now(),
	}
	if len(result.Tags) < minTags {
		logging.WarnWithContext(logger, "fewer tags than expected", "garden_few_tags",
			logging.Int("tags", len(result.Tags)),
			logging.String(logging.FieldImpact, "article is harder to discover"))
	}
	logger.Info("garden classification completed",
		logging.String(logging.FieldEventType, "garden_classify_complete"),
		logging.String("category", string(result.Category)),
		logging.String("title", result.Title),
		logging.Float64("confidence", result.Confidence))
	return result, nil
}

// Render produces the article with its frontmatter.
func Render(r *Result) string {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	f := &markdown.Frontmatter{}
	f.Quoted("title", r.Title).
		Quoted("description", r.Description).
		Raw("pubDate", r.PubDate.Format(time.DateOnly)).
		JSON("tags", tags).
		Quoted("category", string(r.Category)).
		Raw("draft", "false")
	return f.Render() + "\n\n" + r.MarkdownContent + "\n"
}

// ArticlePath returns where an article for r would be written under
// contentDir, adding a -HHMMSS suffix when the slug is already taken.
func (c *Classifier) ArticlePath(r *Result, contentDir string) string {
	now := c.now()
	slug := Slug(r.Title, now)
	dir := filepath.Join(contentDir, string(r.Category))
	path := filepath.Join(dir, slug+".md")
	if _, err := os.Stat(path); err == nil {
		path = filepath.Join(dir, fmt.Sprintf("%s-%s.md", slug, now.Format("150405")))
	}
	return path
}

// WriteArticle renders r into contentDir/<category>/<slug>.md.
func (c *Classifier) WriteArticle(r *Result, contentDir string) (string, error) {
	path := c.ArticlePath(r, contentDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "garden", "write", "create category directory", err)
	}
	if err := fileutil.WriteFileAtomic(path, []byte(Render(r)), 0o644); err != nil {
		return "", services.Wrap(services.ErrTransient, "garden", "write", "write article", err)
	}
	c.logger.Info("article written",
		logging.String(logging.FieldEventType, "article_written"),
		logging.String("path", path))
	return path, nil
}

// Slug derives the article file stem from a title. Slugs longer than 50
// runes are cut back to the last hyphen; an empty slug becomes a timestamp.
func Slug(title string, now time.Time) string {
	slug := textutil.Slug(title, 0, "")
	if utf8.RuneCountInString(slug) > slugLimit {
		slug = string([]rune(slug)[:slugLimit])
		if i := strings.LastIndexByte(slug, '-'); i > 0 {
			slug = slug[:i]
		}
	}
	if slug == "" {
		slug = now.Format("20060102-150405")
	}
	return slug
}

func normalizeTags(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, tag := range in {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
