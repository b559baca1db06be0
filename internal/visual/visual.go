// Package visual adds a generated thumbnail and Mermaid diagrams to garden
// articles. Both enhancements degrade independently: a failure in one is
// logged and leaves the other untouched.
package visual

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"gardenpipe/internal/config"
	"gardenpipe/internal/logging"
	"gardenpipe/internal/services/llm"
	"gardenpipe/internal/stage"
)

// Diagram is one Mermaid chart.
type Diagram struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Code        string `json:"mermaid_code"`
}

// Enhancement records what was produced for one article.
type Enhancement struct {
	// ThumbnailPath is site-relative ("images/thumbnails/<slug>.png").
	ThumbnailPath   string
	ThumbnailPrompt string
	Diagrams        []Diagram
}

// Completer is the model client used for diagram generation.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
	Available() bool
}

// ImageGenerator renders a prompt to a PNG file.
type ImageGenerator interface {
	GenerateFile(ctx context.Context, prompt, path string) error
	Available() bool
}

// Enhancer produces thumbnails and diagrams.
type Enhancer struct {
	llm          Completer
	images       ImageGenerator
	logger       *slog.Logger
	thumbnailDir string
	thumbnails   bool
	diagrams     bool
}

// New constructs an enhancer. Thumbnails need imagen.enabled and
// pipeline.enable_thumbnails; diagrams need pipeline.enable_mermaid.
func New(cfg *config.Config, client Completer, images ImageGenerator, logger *slog.Logger) *Enhancer {
	return &Enhancer{
		llm:          client,
		images:       images,
		logger:       logging.NewComponentLogger(logger, "visual"),
		thumbnailDir: cfg.ThumbnailDir(),
		thumbnails:   cfg.Imagen.Enabled && cfg.Pipeline.EnableThumbnails,
		diagrams:     cfg.Pipeline.EnableMermaid,
	}
}

// Enhance never fails; whatever could be produced is returned.
func (e *Enhancer) Enhance(ctx context.Context, content, title, category, slug string) Enhancement {
	logger := logging.WithContext(ctx, e.logger)
	var out Enhancement
	if e.thumbnails && e.images != nil && e.images.Available() {
		prompt := ThumbnailPrompt(content, title, category)
		out.ThumbnailPrompt = prompt
		dest := filepath.Join(e.thumbnailDir, slug+".png")
		if err := e.images.GenerateFile(ctx, prompt, dest); err != nil {
			logging.WarnWithContext(logger, "thumbnail generation failed", "thumbnail_failed",
				logging.String(logging.FieldImpact, "article published without thumbnail"),
				logging.String(logging.FieldErrorHint, "check imagen.api_key and quota"),
				logging.Error(err))
		} else {
			out.ThumbnailPath = path.Join("images", "thumbnails", slug+".png")
			logger.Info("thumbnail generated",
				logging.String(logging.FieldEventType, "thumbnail_generated"),
				logging.String("path", dest))
		}
	}
	if e.diagrams && e.llm != nil && e.llm.Available() {
		diagrams, err := e.GenerateDiagrams(ctx, content, title, category)
		if err != nil {
			logging.WarnWithContext(logger, "diagram generation failed", "mermaid_failed",
				logging.String(logging.FieldImpact, "article published without diagrams"),
				logging.Error(err))
		} else if len(diagrams) > 0 {
			out.Diagrams = diagrams
			logger.Info("diagrams generated",
				logging.String(logging.FieldEventType, "mermaid_generated"),
				logging.Int("count", len(diagrams)))
		}
	}
	return out
}

// HealthCheck reports which enhancements can run.
func (e *Enhancer) HealthCheck(context.Context) stage.Health {
	var missing []string
	if e.thumbnails && (e.images == nil || !e.images.Available()) {
		missing = append(missing, "imagen api key")
	}
	if e.diagrams && (e.llm == nil || !e.llm.Available()) {
		missing = append(missing, "anthropic api key")
	}
	if len(missing) > 0 {
		return stage.Unhealthy("visual", "missing "+strings.Join(missing, ", "))
	}
	return stage.Healthy("visual")
}
