package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gardenpipe/internal/config"
	"gardenpipe/internal/factcheck"
	"gardenpipe/internal/garden"
	"gardenpipe/internal/gitops"
	"gardenpipe/internal/history"
	"gardenpipe/internal/logging"
	"gardenpipe/internal/notifications"
	"gardenpipe/internal/services"
	"gardenpipe/internal/stage"
	"gardenpipe/internal/visual"
)

// DefaultPattern selects the notes ProcessDirectory picks up.
const DefaultPattern = "*.txt"

// ArticleWriter classifies notes into garden articles and writes them.
type ArticleWriter interface {
	Classify(ctx context.Context, content, sourceFile string) (*garden.Result, error)
	ArticlePath(r *garden.Result, contentDir string) string
	WriteArticle(r *garden.Result, contentDir string) (string, error)
}

// Enhancer produces thumbnails and diagrams for an article.
type Enhancer interface {
	Enhance(ctx context.Context, content, title, category, slug string) visual.Enhancement
}

// FactChecker verifies the claims in an article.
type FactChecker interface {
	CheckArticle(ctx context.Context, content, title string) factcheck.ArticleFactCheck
}

// Committer commits and pushes the garden checkout.
type Committer interface {
	CommitChanges(ctx context.Context, paths []string, extra string) gitops.CommitResult
	PushToRemote(ctx context.Context, branch string) error
}

// Steps are the backends of the integrated pipeline. Only Articles is
// required; a nil step is skipped.
type Steps struct {
	Articles  ArticleWriter
	Visual    Enhancer
	FactCheck FactChecker
	Git       Committer
	Site      SiteBuilder
}

// PipelineResult is the outcome for one note.
type PipelineResult struct {
	Success            bool
	Skipped            bool
	InputFile          string
	OutputFile         string
	Category           string
	Title              string
	ThumbnailGenerated bool
	MermaidCount       int
	FactCheckAccuracy  float64
	GitCommitted       bool
	GitPushed          bool
	ErrorMessage       string
	ExecutionTime      time.Duration
}

// BatchSummary aggregates the results of a directory run.
type BatchSummary struct {
	Total     int
	Success   int
	Failed    int
	Skipped   int
	TotalTime time.Duration
	Results   []PipelineResult
}

// AverageTime is the mean execution time per processed file.
func (b BatchSummary) AverageTime() time.Duration {
	if b.Total == 0 {
		return 0
	}
	return b.TotalTime / time.Duration(b.Total)
}

func (b *BatchSummary) add(r PipelineResult) {
	b.Total++
	b.TotalTime += r.ExecutionTime
	switch {
	case r.Skipped:
		b.Skipped++
	case r.Success:
		b.Success++
	default:
		b.Failed++
	}
	b.Results = append(b.Results, r)
}

// Integrated runs the single-note pipeline.
type Integrated struct {
	cfg    *config.Config
	steps  Steps
	logger *slog.Logger
	runOptions
}

// NewIntegrated constructs the integrated pipeline. Step toggles are read
// from cfg.Pipeline.
func NewIntegrated(cfg *config.Config, steps Steps, logger *slog.Logger, opts ...Option) *Integrated {
	return &Integrated{
		cfg:        cfg,
		steps:      steps,
		logger:     logging.NewComponentLogger(logger, "integrated"),
		runOptions: buildOptions(opts),
	}
}

// SessionID identifies the run.
func (in *Integrated) SessionID() string { return in.sessionID }

// Run processes target, a single note or a directory of notes matching
// pattern, and records the run in the ledger.
func (in *Integrated) Run(ctx context.Context, target, pattern string) (BatchSummary, error) {
	ctx = services.WithSessionID(ctx, in.sessionID)
	logger := logging.WithContext(ctx, in.logger)
	info, err := os.Stat(target)
	if err != nil {
		return BatchSummary{}, services.Wrap(services.ErrNotFound, "integrated", "run", fmt.Sprintf("input %s", target), err)
	}

	var run *history.Run
	if in.history != nil {
		run, err = in.history.Begin(context.WithoutCancel(ctx), in.sessionID, history.ModeIntegrated, in.dryRun)
		if err != nil {
			logging.WarnWithContext(logger, "history ledger unavailable", "history_failed",
				logging.String(logging.FieldImpact, "run not recorded"),
				logging.Error(err))
			run = nil
		}
	}

	var summary BatchSummary
	if info.IsDir() {
		summary, err = in.ProcessDirectory(ctx, target, pattern)
	} else {
		in.publish(ctx, logger, notifications.EventRunStarted, notifications.Payload{
			"session": in.sessionID,
			"files":   1,
			"dryRun":  in.dryRun,
		})
		summary.add(in.ProcessFile(ctx, target))
	}
	if summary.Total > 0 {
		in.publish(context.WithoutCancel(ctx), logger, notifications.EventRunCompleted, notifications.Payload{
			"processed": summary.Total,
			"failed":    summary.Failed,
			"generated": summary.Success,
			"duration":  summary.TotalTime,
		})
	}

	if run != nil {
		in.finishRun(ctx, logger, run, summary, err)
	}
	return summary, err
}

// ProcessDirectory processes every file in dir matching pattern in path
// order. Cancellation stops before the next file.
func (in *Integrated) ProcessDirectory(ctx context.Context, dir, pattern string) (BatchSummary, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultPattern
	}
	logger := logging.WithContext(ctx, in.logger)
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return BatchSummary{}, services.Wrap(services.ErrValidation, "integrated", "glob", fmt.Sprintf("pattern %q", pattern), err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		logger.Info("no files matched",
			logging.String("dir", dir),
			logging.String("pattern", pattern))
		return BatchSummary{}, nil
	}
	logger.Info("directory processing started",
		logging.String(logging.FieldEventType, "integrated_batch_start"),
		logging.Int("files", len(files)))
	in.publish(ctx, logger, notifications.EventRunStarted, notifications.Payload{
		"session": in.sessionID,
		"files":   len(files),
		"dryRun":  in.dryRun,
	})

	var summary BatchSummary
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.add(in.ProcessFile(ctx, file))
	}
	logger.Info("directory processing completed",
		logging.String(logging.FieldEventType, "integrated_batch_complete"),
		logging.Int("total", summary.Total),
		logging.Int("success", summary.Success),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
		logging.Duration("average", summary.AverageTime().Round(time.Millisecond)))
	return summary, nil
}

// ProcessFile runs every enabled step for one note. Failures are reported
// in the result, never returned.
func (in *Integrated) ProcessFile(ctx context.Context, path string) PipelineResult {
	started := in.now()
	ctx = services.WithItem(ctx, path)
	logger := logging.WithContext(ctx, in.logger)

	if in.skip(ctx, logger, path) {
		return PipelineResult{Success: true, Skipped: true, InputFile: path}
	}

	result := PipelineResult{InputFile: path, FactCheckAccuracy: 1.0}
	err := stage.Run(ctx, stage.Options{
		Logger:   in.logger,
		Notifier: in.notifier,
		Name:     "integrated",
		Item:     path,
	}, func(ctx context.Context) error {
		return in.process(ctx, path, &result)
	})
	elapsed := in.now().Sub(started)
	if err != nil {
		return PipelineResult{
			InputFile:     path,
			ErrorMessage:  "pipeline failed: " + err.Error(),
			ExecutionTime: elapsed,
		}
	}
	result.Success = true
	result.ExecutionTime = elapsed
	logger.Info("note processed",
		logging.String(logging.FieldEventType, "integrated_complete"),
		logging.String("title", result.Title),
		logging.String("category", result.Category),
		logging.String("output", result.OutputFile),
		logging.Bool("thumbnail", result.ThumbnailGenerated),
		logging.Int("diagrams", result.MermaidCount),
		logging.Float64("fact_check_accuracy", result.FactCheckAccuracy),
		logging.Bool("committed", result.GitCommitted),
		logging.Bool("pushed", result.GitPushed),
		logging.Duration("duration", elapsed.Round(time.Millisecond)))
	if !in.dryRun {
		in.recordArticle(ctx, logger, result)
		in.publish(ctx, logger, notifications.EventArticlePublished, notifications.Payload{
			"title":    result.Title,
			"category": result.Category,
		})
	}
	return result
}

func (in *Integrated) skip(ctx context.Context, logger *slog.Logger, path string) bool {
	if !in.cfg.Pipeline.SkipExisting || in.history == nil {
		return false
	}
	seen, err := in.history.SourceProcessed(ctx, path)
	if err != nil {
		logger.Debug("skip check failed", logging.Error(err))
		return false
	}
	if seen {
		logger.Info("note already published, skipping",
			logging.String(logging.FieldEventType, "integrated_skip"),
			logging.String("reason", "article recorded for source"))
	}
	return seen
}

func (in *Integrated) process(ctx context.Context, path string, result *PipelineResult) error {
	logger := logging.WithContext(ctx, in.logger)
	if in.steps.Articles == nil {
		return services.Wrap(services.ErrConfiguration, "integrated", "classify", "article writer not configured", nil)
	}
	text, err := readText(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "integrated", "read", "read note", err)
	}
	logger.Info("note loaded", logging.Int("characters", len([]rune(text))))

	article, err := in.steps.Articles.Classify(ctx, text, path)
	if err != nil {
		return err
	}
	result.Category = string(article.Category)
	result.Title = article.Title
	if in.dryRun {
		result.OutputFile = in.steps.Articles.ArticlePath(article, in.cfg.ContentDir())
		logger.Info("dry run, article not written", logging.String("path", result.OutputFile))
		return nil
	}
	out, err := in.steps.Articles.WriteArticle(article, in.cfg.ContentDir())
	if err != nil {
		return err
	}
	result.OutputFile = out

	toggles := in.cfg.Pipeline
	if in.steps.Visual != nil && (toggles.EnableThumbnails || toggles.EnableMermaid) {
		slug := strings.TrimSuffix(filepath.Base(out), filepath.Ext(out))
		enhancement := in.steps.Visual.Enhance(ctx, article.MarkdownContent, article.Title, string(article.Category), slug)
		if err := visual.UpdateFile(out, enhancement); err != nil {
			return err
		}
		result.ThumbnailGenerated = enhancement.ThumbnailPath != ""
		result.MermaidCount = len(enhancement.Diagrams)
	} else {
		logger.Debug("visual enhancement skipped")
	}

	if in.steps.FactCheck != nil && toggles.EnableFactCheck {
		check := in.steps.FactCheck.CheckArticle(ctx, article.MarkdownContent, article.Title)
		if len(check.Citations) > 0 {
			if err := factcheck.UpdateFile(out, check); err != nil {
				return err
			}
		}
		result.FactCheckAccuracy = check.OverallAccuracy
		logger.Info("fact check applied",
			logging.Float64("accuracy", check.OverallAccuracy),
			logging.Int("citations", len(check.Citations)))
	} else {
		logger.Debug("fact check skipped")
	}

	if in.steps.Site != nil && toggles.EnableSiteBuild {
		if err := in.steps.Site.Build(ctx); err != nil {
			logging.WarnWithContext(logger, "site build failed", "site_build_failed",
				logging.String(logging.FieldImpact, "continuing without a fresh build"),
				logging.String(logging.FieldErrorHint, "run the build command in the garden checkout"),
				logging.Error(err))
		}
	}

	if in.steps.Git != nil && toggles.EnableGitCommit {
		extra := fmt.Sprintf("Add new %s article: %s", article.Category, article.Title)
		commit := in.steps.Git.CommitChanges(ctx, nil, extra)
		result.GitCommitted = commit.Success
		if !commit.Success {
			logger.Info("commit skipped", logging.String("reason", commit.ErrorMessage))
			return nil
		}
		if toggles.EnableGitPush {
			if err := in.steps.Git.PushToRemote(ctx, ""); err != nil {
				logging.WarnWithContext(logger, "push failed", "git_push_failed",
					logging.String(logging.FieldImpact, "commit stays local"),
					logging.Error(err))
			} else {
				result.GitPushed = true
			}
		}
	}
	return nil
}

func (in *Integrated) recordArticle(ctx context.Context, logger *slog.Logger, r PipelineResult) {
	if in.history == nil {
		return
	}
	if _, ok := services.SessionIDFromContext(ctx); !ok {
		return
	}
	if err := in.history.RecordArticle(ctx, history.Article{
		SessionID:  in.sessionID,
		SourcePath: r.InputFile,
		OutputPath: r.OutputFile,
		Category:   r.Category,
		Title:      r.Title,
	}); err != nil {
		logger.Debug("article not recorded", logging.String("path", r.OutputFile), logging.Error(err))
	}
}

func (in *Integrated) finishRun(ctx context.Context, logger *slog.Logger, run *history.Run, summary BatchSummary, runErr error) {
	run.FilesProcessed = summary.Total - summary.Skipped
	run.FilesSuccessful = summary.Success
	run.FilesFailed = summary.Failed
	for _, r := range summary.Results {
		if r.Success && !r.Skipped && !in.dryRun {
			run.ContentGenerated++
		}
		if r.GitCommitted {
			run.GitCommits++
		}
		if !r.Success {
			run.Errors = append(run.Errors, history.ErrorRecord{
				Type:      ErrorPipeline,
				File:      r.InputFile,
				Message:   r.ErrorMessage,
				Timestamp: in.now(),
			})
		}
	}
	run.Status = runStatus(runErr)
	if runErr == nil && summary.Failed > 0 && summary.Success == 0 {
		run.Status = history.StatusFailed
	}
	if runErr != nil {
		run.ErrorMessage = runErr.Error()
	}
	if err := in.history.Finish(context.WithoutCancel(ctx), run); err != nil {
		logging.WarnWithContext(logger, "history update failed", "history_failed",
			logging.String(logging.FieldImpact, "run left open in the ledger"),
			logging.Error(err))
	}
}
