package classification

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"gardenpipe/internal/config"
	"gardenpipe/internal/logging"
	"gardenpipe/internal/services"
	"gardenpipe/internal/services/llm"
	"gardenpipe/internal/stage"
	"gardenpipe/internal/structured"
	"gardenpipe/internal/textutil"
)

const (
	titleLimit       = 100
	summaryLimit     = 500
	fileTitleLimit   = 50
	classifyTokens   = 1000
	charsPerMinute   = 500
	untitledFileName = "untitled"
)

// Completer is the subset of the model client the classifier needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
	Available() bool
	Model() string
}

// Classifier labels text and renders it into garden documents.
type Classifier struct {
	client     Completer
	logger     *slog.Logger
	contentDir string

	// minConfidence only flags low-confidence results; they are still returned.
	minConfidence float64
	now           func() time.Time
}

// Option customizes the classifier.
type Option func(*Classifier)

// WithClock overrides the time source used for dates and file names.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a classifier backed by client.
func New(cfg *config.Config, client Completer, logger *slog.Logger, opts ...Option) *Classifier {
	c := &Classifier{
		client:        client,
		logger:        logging.NewComponentLogger(logger, "classification"),
		contentDir:    filepath.Join("src", "content"),
		minConfidence: cfg.Quality.MinClassificationConfidence,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var classificationDecoder = structured.MustDecoder("classification", `{
	"type": "object",
	"required": ["category", "title", "summary", "priority", "tags", "confidence"],
	"properties": {
		"category": {"type": "string"},
		"title": {"type": "string"},
		"summary": {"type": "string"},
		"priority": {"type": "string"},
		"tags": {
			"oneOf": [
				{"type": "string"},
				{"type": "array", "items": {"type": "string"}}
			]
		},
		"confidence": {"type": "number"},
		"reasoning": {"type": "string"}
	}
}`)

type classificationPayload struct {
	Category   string   `json:"category"`
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Priority   string   `json:"priority"`
	Tags       []string `json:"tags"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Classify asks the model to label text. An unknown category yields a nil
// result and an error matching ErrInvalidCategory.
func (c *Classifier) Classify(ctx context.Context, text string, cc Context) (*Result, error) {
	if cc.SourceFile != "" {
		ctx = services.WithItem(ctx, cc.SourceFile)
	}
	logger := logging.WithContext(ctx, c.logger)
	if strings.TrimSpace(text) == "" {
		return nil, services.Wrap(services.ErrValidation, "classification", "classify", "empty text", nil)
	}
	if c.client == nil || !c.client.Available() {
		return nil, services.Wrap(services.ErrConfiguration, "classification", "classify", "model client not configured", nil)
	}

	logger.Info("classification started",
		logging.String(logging.FieldEventType, "classification_start"),
		logging.Int("text_length", utf8.RuneCountInString(text)))

	raw, err := c.client.Complete(ctx, llm.Request{
		System:    classificationSystemPrompt,
		Prompt:    classificationUserPrompt(text, cc),
		MaxTokens: classifyTokens,
	})
	if err != nil {
		logging.ErrorWithContext(logger, "classification request failed", "classification_failed",
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Error(err))
		return nil, err
	}
	result, err := c.parseClassification(raw)
	if err != nil {
		logging.ErrorWithContext(logger, "classification response rejected", "classification_invalid",
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldErrorHint, "inspect the model response snippet"),
			logging.Error(err))
		return nil, err
	}
	if result.Confidence < c.minConfidence {
		logging.WarnWithContext(logger, "classification confidence below threshold", "classification_low_confidence",
			logging.Float64("confidence", result.Confidence),
			logging.Float64("threshold", c.minConfidence),
			logging.String(logging.FieldImpact, "category may be wrong"),
			logging.String(logging.FieldErrorHint, "review the generated article"))
	}
	logger.Info("classification completed",
		logging.String(logging.FieldEventType, "classification_complete"),
		logging.String("category", string(result.Category)),
		logging.String("priority", string(result.Priority)),
		logging.Float64("confidence", result.Confidence))
	return result, nil
}

func (c *Classifier) parseClassification(raw string) (*Result, error) {
	var payload classificationPayload
	if err := classificationDecoder.Decode(raw, &payload); err != nil {
		return nil, services.Wrap(services.ErrValidation, "classification", "parse", "response rejected", err)
	}
	category := Category(strings.ToLower(strings.TrimSpace(payload.Category)))
	if !category.Valid() {
		return nil, services.Wrap(services.ErrValidation, "classification", "parse",
			fmt.Sprintf("category %q", payload.Category), ErrInvalidCategory)
	}
	priority := Priority(strings.ToLower(strings.TrimSpace(payload.Priority)))
	if !priority.Valid() {
		c.logger.Debug("priority outside vocabulary, using medium",
			logging.String("priority", payload.Priority))
		priority = PriorityMedium
	}
	tags := make([]string, 0, len(payload.Tags))
	for _, tag := range payload.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return &Result{
		Category:   category,
		Title:      textutil.Truncate(strings.TrimSpace(payload.Title), titleLimit, ""),
		Summary:    textutil.Truncate(strings.TrimSpace(payload.Summary), summaryLimit, ""),
		Priority:   priority,
		Tags:       tags,
		Confidence: clamp01(payload.Confidence),
		Reasoning:  strings.TrimSpace(payload.Reasoning),
		Timestamp:  c.now(),
	}, nil
}

var generationDecoder = structured.MustDecoder("content generation", `{
	"type": "object",
	"required": ["sections"],
	"properties": {
		"sections": {"type": "object"},
		"metadata": {
			"type": "object",
			"properties": {
				"word_count": {"type": ["number", "string"]},
				"reading_time": {"type": ["number", "string"]},
				"key_points": {
					"oneOf": [
						{"type": "string"},
						{"type": "array", "items": {"type": "string"}}
					]
				}
			}
		}
	}
}`)

type generationPayload struct {
	Sections map[string]any `json:"sections"`
	Metadata struct {
		WordCount   int      `json:"word_count"`
		ReadingTime string   `json:"reading_time"`
		KeyPoints   []string `json:"key_points"`
	} `json:"metadata"`
}

// GenerateStructuredContent renders a classified item into its category
// layout. Generation failures fall back to a four-section document built
// from the source text; only a missing classification is an error.
func (c *Classifier) GenerateStructuredContent(ctx context.Context, item Item) (*StructuredContent, error) {
	if item.Classification == nil {
		return nil, services.Wrap(services.ErrValidation, "classification", "generate", "item has no classification", nil)
	}
	if item.SourceFile != "" {
		ctx = services.WithItem(ctx, item.SourceFile)
	}
	logger := logging.WithContext(ctx, c.logger)
	category := item.Classification.Category
	if _, ok := templates[category]; !ok {
		return nil, services.Wrap(services.ErrValidation, "classification", "generate",
			fmt.Sprintf("category %q", category), ErrInvalidCategory)
	}
	if c.client == nil || !c.client.Available() {
		logging.WarnWithContext(logger, "model unavailable, rendering fallback", "content_generation_fallback",
			logging.String(logging.FieldImpact, "article uses the generic layout"))
		return c.Fallback(item), nil
	}

	raw, err := c.client.Complete(ctx, llm.Request{
		System: generationSystemPrompt(category),
		Prompt: generationUserPrompt(item),
	})
	var payload generationPayload
	if err == nil {
		err = generationDecoder.Decode(raw, &payload)
	}
	if err != nil {
		logging.WarnWithContext(logger, "content generation failed, rendering fallback", "content_generation_fallback",
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldImpact, "article uses the generic layout"),
			logging.Error(err))
		return c.Fallback(item), nil
	}

	values := make(map[string]string, len(payload.Sections))
	for key, v := range payload.Sections {
		values[key] = sectionText(v)
	}
	body, emitted := renderSections(category, values)
	now := c.now()
	front := renderFrontmatter(category, item.Classification, item.SourceFile, processingInfo{
		sessionID:   item.SessionID,
		generatedAt: now,
		model:       c.client.Model(),
	})
	content := front + "\n\n" + body
	meta := ContentMetadata{
		GeneratedAt: now,
		WordCount:   payload.Metadata.WordCount,
		ReadingTime: payload.Metadata.ReadingTime,
		KeyPoints:   payload.Metadata.KeyPoints,
		Sections:    emitted,
		Components:  templates[category].components,
	}
	if meta.WordCount == 0 {
		meta.WordCount = utf8.RuneCountInString(body)
	}
	if meta.ReadingTime == "" {
		meta.ReadingTime = readingTime(meta.WordCount)
	}
	out := c.assemble(item.Classification, content, now)
	out.Metadata = meta
	logger.Info("content generated",
		logging.String(logging.FieldEventType, "content_generated"),
		logging.String("file", out.FilePath),
		logging.Int("sections", len(emitted)))
	return out, nil
}

// Fallback renders the generic four-section layout from the item's text.
func (c *Classifier) Fallback(item Item) *StructuredContent {
	r := item.Classification
	if r == nil {
		r = &Result{
			Category: CategoryInsight,
			Title:    textutil.Truncate(textutil.FirstSentence(item.Text), titleLimit, ""),
			Priority: PriorityMedium,
		}
	}
	now := c.now()
	model := ""
	if c.client != nil {
		model = c.client.Model()
	}
	category := r.Category
	if !category.Valid() {
		category = CategoryInsight
	}
	front := renderFrontmatter(category, r, item.SourceFile, processingInfo{
		sessionID:   item.SessionID,
		generatedAt: now,
		model:       model,
	})
	body := renderFallbackBody(item.Text, r)
	out := c.assemble(&Result{Category: category, Title: r.Title}, front+"\n\n"+body, now)
	out.Fallback = true
	wc := utf8.RuneCountInString(body)
	out.Metadata = ContentMetadata{
		GeneratedAt: now,
		WordCount:   wc,
		ReadingTime: readingTime(wc),
		Sections:    append([]string(nil), fallbackSections...),
	}
	return out
}

func (c *Classifier) assemble(r *Result, content string, now time.Time) *StructuredContent {
	name := FileName(r.Title, now)
	return &StructuredContent{
		Category: r.Category,
		Title:    r.Title,
		Content:  content,
		FileName: name,
		FilePath: filepath.Join(c.contentDir, string(r.Category), name),
	}
}

// FileName returns "YYYY-MM-DD-<safe title>.md".
func FileName(title string, date time.Time) string {
	safe := textutil.SafeTitle(title, fileTitleLimit)
	if safe == "" {
		safe = untitledFileName
	}
	return date.Format(time.DateOnly) + "-" + safe + ".md"
}

// NeedsResearch reports whether a result warrants web research: insight or
// diary content at high or urgent priority.
func NeedsResearch(r *Result) bool {
	if r == nil {
		return false
	}
	if r.Category != CategoryInsight && r.Category != CategoryDiary {
		return false
	}
	return r.Priority == PriorityHigh || r.Priority == PriorityUrgent
}

// Info describes the classifier configuration.
func (c *Classifier) Info() map[string]string {
	info := map[string]string{
		"categories": joinCategories(),
		"available":  "false",
	}
	if c.client != nil {
		info["model"] = c.client.Model()
		info["available"] = fmt.Sprint(c.client.Available())
	}
	return info
}

// HealthCheck verifies the model client responds.
func (c *Classifier) HealthCheck(ctx context.Context) stage.Health {
	if c.client == nil || !c.client.Available() {
		return stage.Unhealthy("classification", "api key not configured")
	}
	if hc, ok := c.client.(interface{ HealthCheck(context.Context) error }); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return stage.Unhealthy("classification", err.Error())
		}
	}
	return stage.Healthy("classification")
}

func sectionText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any:
		lines := make([]string, 0, len(val))
		for _, entry := range val {
			if s := strings.TrimSpace(sectionText(entry)); s != "" {
				lines = append(lines, "- "+s)
			}
		}
		return strings.Join(lines, "\n")
	default:
		return fmt.Sprint(val)
	}
}

func readingTime(chars int) string {
	minutes := (chars + charsPerMinute - 1) / charsPerMinute
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%d分", minutes)
}

func joinCategories() string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ",")
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
