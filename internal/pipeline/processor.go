package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"gardenpipe/internal/classification"
	"gardenpipe/internal/config"
	"gardenpipe/internal/gitops"
	"gardenpipe/internal/history"
	"gardenpipe/internal/logging"
	"gardenpipe/internal/notifications"
	"gardenpipe/internal/research"
	"gardenpipe/internal/services"
	"gardenpipe/internal/stage"
	"gardenpipe/internal/transcription"
)

// Transcriber turns audio and video into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (*transcription.Result, error)
}

// Classifier labels text and renders it into garden documents.
type Classifier interface {
	Classify(ctx context.Context, text string, cc classification.Context) (*classification.Result, error)
	GenerateStructuredContent(ctx context.Context, item classification.Item) (*classification.StructuredContent, error)
}

// Researcher gathers web research for a classified note.
type Researcher interface {
	Research(ctx context.Context, content research.Content) (*research.Result, error)
}

// Deployer publishes generated documents.
type Deployer interface {
	Deploy(ctx context.Context, items []gitops.Item) gitops.DeploymentResult
}

// Components are the stage backends of a batch run. Researcher and Deployer
// may be nil, which skips their stage.
type Components struct {
	Transcriber Transcriber
	Classifier  Classifier
	Researcher  Researcher
	Deployer    Deployer
}

// Processor runs the batch pipeline over the configured input directories.
type Processor struct {
	cfg        *config.Config
	components Components
	logger     *slog.Logger
	runOptions
}

// note is one input moving through the stages.
type note struct {
	input          InputFile
	text           string
	transcript     *transcription.Result
	classification *classification.Result
	research       *research.Result
	content        *classification.StructuredContent
}

// NewProcessor constructs a batch processor.
func NewProcessor(cfg *config.Config, components Components, logger *slog.Logger, opts ...Option) *Processor {
	return &Processor{
		cfg:        cfg,
		components: components,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
		runOptions: buildOptions(opts),
	}
}

// SessionID identifies the run.
func (p *Processor) SessionID() string { return p.sessionID }

// Run processes every discovered input. The returned stats are never nil,
// including when the run fails part way.
func (p *Processor) Run(ctx context.Context) (*Stats, error) {
	ctx = services.WithSessionID(ctx, p.sessionID)
	logger := logging.WithContext(ctx, p.logger)
	stats := newStats(p.sessionID, p.dryRun, p.now)
	logger.Info("pipeline started",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.Bool("dry_run", p.dryRun))

	run := p.beginRun(ctx, logger)
	err := p.run(ctx, logger, stats)
	if err != nil {
		stats.recordError(ErrorPipeline, "", err)
	}
	stats.finish()
	p.finishRun(ctx, logger, run, stats, err)

	summary := stats.Summary()
	if err != nil {
		logging.ErrorWithContext(logger, "pipeline failed", "pipeline_failed",
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Int("errors", summary.TotalErrors),
			logging.Error(err))
		return stats, err
	}
	logger.Info("pipeline completed",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.Int("processed", stats.FilesProcessed),
		logging.Int("successful", stats.FilesSuccessful),
		logging.Int("generated", summary.ContentGenerated),
		logging.Int("commits", summary.GitCommits),
		logging.Float64("success_rate", summary.SuccessRate))
	return stats, nil
}

func (p *Processor) run(ctx context.Context, logger *slog.Logger, stats *Stats) error {
	var files []InputFile
	if err := p.stage(ctx, "discover", func(context.Context) error {
		found, err := Discover(p.cfg)
		files = found
		return err
	}); err != nil {
		return err
	}
	if len(files) == 0 {
		logger.Warn("no input files found",
			logging.String(logging.FieldEventType, "no_input"),
			logging.String(logging.FieldImpact, "nothing to process"),
			logging.String(logging.FieldErrorHint, "drop files into the input directories"))
		return nil
	}
	p.publish(ctx, logger, notifications.EventRunStarted, notifications.Payload{
		"session": p.sessionID,
		"files":   len(files),
		"dryRun":  p.dryRun,
	})
	defer func() {
		p.publish(context.WithoutCancel(ctx), logger, notifications.EventRunCompleted, notifications.Payload{
			"processed": stats.FilesProcessed,
			"failed":    stats.FilesFailed,
			"generated": stats.ContentGenerated,
			"duration":  p.now().Sub(stats.StartTime),
		})
	}()

	var media, texts []InputFile
	for _, f := range files {
		if f.NeedsTranscription() {
			media = append(media, f)
		} else {
			texts = append(texts, f)
		}
	}

	var notes []*note
	if len(media) > 0 {
		var transcribed []*note
		err := p.stage(ctx, "transcribe", func(ctx context.Context) error {
			var err error
			transcribed, err = p.transcribeAll(ctx, stats, media)
			return err
		})
		if err != nil {
			return err
		}
		notes = append(notes, transcribed...)
	}
	if len(texts) > 0 {
		var read []*note
		err := p.stage(ctx, "read-text", func(ctx context.Context) error {
			var err error
			read, err = p.readAll(ctx, stats, texts)
			return err
		})
		if err != nil {
			return err
		}
		notes = append(notes, read...)
	}

	if err := p.stage(ctx, "classify", func(ctx context.Context) error {
		var err error
		notes, err = p.classifyAll(ctx, stats, notes)
		return err
	}); err != nil {
		return err
	}
	if err := p.stage(ctx, "research", func(ctx context.Context) error {
		return p.researchAll(ctx, stats, notes)
	}); err != nil {
		return err
	}
	if err := p.stage(ctx, "generate-content", func(ctx context.Context) error {
		var err error
		notes, err = p.generateAll(ctx, stats, notes)
		return err
	}); err != nil {
		return err
	}

	if p.dryRun {
		logger.Info("dry run, skipping deploy and archive",
			logging.String(logging.FieldEventType, "dry_run_complete"),
			logging.Int("generated", len(notes)))
		return nil
	}
	if err := p.stage(ctx, "deploy", func(ctx context.Context) error {
		return p.deploy(ctx, stats, notes)
	}); err != nil {
		return err
	}
	return p.stage(ctx, "archive", func(ctx context.Context) error {
		p.archive(ctx, files)
		return nil
	})
}

func (p *Processor) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	return stage.Run(ctx, stage.Options{
		Logger:   p.logger,
		Notifier: p.notifier,
		Name:     name,
	}, fn)
}

// fanOut calls fn for every index with at most limit calls in flight and
// waits for all of them.
func fanOut(ctx context.Context, limit, n int, fn func(context.Context, int)) error {
	sem := semaphore.NewWeighted(int64(max(limit, 1)))
	g, gctx := errgroup.WithContext(ctx)
	for i := range n {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func compact(in []*note) []*note {
	out := in[:0]
	for _, n := range in {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (p *Processor) transcribeAll(ctx context.Context, stats *Stats, files []InputFile) ([]*note, error) {
	defer stats.processed(len(files))
	out := make([]*note, len(files))
	minConfidence := p.cfg.Transcription.MinConfidence
	err := fanOut(ctx, p.cfg.Performance.MaxConcurrentTranscriptions, len(files), func(ctx context.Context, i int) {
		f := files[i]
		logger := logging.WithContext(services.WithItem(ctx, f.Path), p.logger)
		if p.components.Transcriber == nil {
			stats.failed(ErrorTranscription, f.Path,
				services.Wrap(services.ErrConfiguration, "transcribe", "transcribe", "transcriber not configured", nil))
			return
		}
		res, err := p.components.Transcriber.Transcribe(ctx, f.Path)
		switch {
		case err != nil:
			logging.ErrorWithContext(logger, "transcription failed", "transcription_failed",
				logging.String(logging.FieldErrorKind, services.Kind(err)),
				logging.Error(err))
			stats.failed(ErrorTranscription, f.Path, err)
		case res == nil || res.Confidence < minConfidence:
			confidence := 0.0
			if res != nil {
				confidence = res.Confidence
			}
			logging.WarnWithContext(logger, "transcription rejected", "transcription_low_confidence",
				logging.Float64("confidence", confidence),
				logging.Float64("threshold", minConfidence),
				logging.String(logging.FieldImpact, "file skipped"))
			stats.failed(ErrorTranscription, f.Path, nil)
		default:
			stats.succeeded()
			out[i] = &note{input: f, text: res.Text, transcript: res}
		}
	})
	out = compact(out)
	p.logger.Info("transcription stage finished",
		logging.Int("total", len(files)),
		logging.Int("successful", len(out)))
	return out, err
}

func (p *Processor) readAll(ctx context.Context, stats *Stats, files []InputFile) ([]*note, error) {
	defer stats.processed(len(files))
	out := make([]*note, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		text, err := readText(f.Path)
		if err != nil {
			logging.ErrorWithContext(logging.WithContext(services.WithItem(ctx, f.Path), p.logger),
				"text read failed", "text_read_failed", logging.Error(err))
			stats.failed(ErrorTextProcessing, f.Path, err)
			continue
		}
		stats.succeeded()
		out = append(out, &note{input: f, text: text})
	}
	return out, nil
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", services.Wrap(services.ErrValidation, "read-text", "read", "file is not valid UTF-8", nil)
	}
	return string(data), nil
}

func (p *Processor) classifyAll(ctx context.Context, stats *Stats, notes []*note) ([]*note, error) {
	if p.components.Classifier == nil {
		for _, n := range notes {
			stats.recordError(ErrorClassification, n.input.Path,
				services.Wrap(services.ErrConfiguration, "classify", "classify", "classifier not configured", nil))
		}
		return nil, nil
	}
	err := fanOut(ctx, p.cfg.Performance.MaxConcurrentClassifications, len(notes), func(ctx context.Context, i int) {
		n := notes[i]
		cc := classification.Context{SourceFile: n.input.Path, SourceType: string(n.input.Type)}
		if n.transcript != nil {
			confidence := n.transcript.Confidence
			cc.Confidence = &confidence
		}
		result, err := p.components.Classifier.Classify(ctx, n.text, cc)
		if err != nil {
			stats.recordError(ErrorClassification, n.input.Path, err)
			notes[i] = nil
			return
		}
		if result == nil {
			notes[i] = nil
			return
		}
		n.classification = result
	})
	out := compact(notes)
	p.logger.Info("classification stage finished", logging.Int("classified", len(out)))
	return out, err
}

func (p *Processor) researchAll(ctx context.Context, stats *Stats, notes []*note) error {
	if p.components.Researcher == nil {
		p.logger.Debug("research not configured, skipping")
		return nil
	}
	var targets []*note
	for _, n := range notes {
		if classification.NeedsResearch(n.classification) {
			targets = append(targets, n)
		}
	}
	err := fanOut(ctx, p.cfg.Performance.MaxConcurrentResearch, len(targets), func(ctx context.Context, i int) {
		n := targets[i]
		ctx = services.WithItem(ctx, n.input.Path)
		res, err := p.components.Researcher.Research(ctx, research.Content{
			Text:     n.text,
			Category: string(n.classification.Category),
			Title:    n.classification.Title,
		})
		switch {
		case errors.Is(err, research.ErrNoQueries), errors.Is(err, research.ErrNoResults):
			logging.WithContext(ctx, p.logger).Debug("research found nothing to add", logging.Error(err))
		case err != nil:
			stats.recordError(ErrorResearch, n.input.Path, err)
		default:
			n.research = res
		}
	})
	p.logger.Info("research stage finished",
		logging.Int("eligible", len(targets)),
		logging.Int("skipped", len(notes)-len(targets)))
	return err
}

func (p *Processor) generateAll(ctx context.Context, stats *Stats, notes []*note) ([]*note, error) {
	err := fanOut(ctx, p.cfg.Performance.MaxConcurrentClassifications, len(notes), func(ctx context.Context, i int) {
		n := notes[i]
		content, err := p.components.Classifier.GenerateStructuredContent(ctx, classification.Item{
			Classification: n.classification,
			Text:           n.text,
			SourceFile:     n.input.Path,
			SourceType:     string(n.input.Type),
			SessionID:      p.sessionID,
			Research:       n.research.Digest(),
		})
		if err != nil || content == nil {
			if err != nil {
				stats.recordError(ErrorContentGeneration, n.input.Path, err)
			}
			notes[i] = nil
			return
		}
		n.content = content
		stats.generated()
	})
	return compact(notes), err
}

func (p *Processor) deploy(ctx context.Context, stats *Stats, notes []*note) error {
	logger := logging.WithContext(ctx, p.logger)
	if len(notes) == 0 {
		logger.Info("no content to deploy")
		return nil
	}
	if p.components.Deployer == nil {
		logger.Info("deployment not configured, skipping", logging.Int("items", len(notes)))
		return nil
	}
	items := make([]gitops.Item, 0, len(notes))
	for _, n := range notes {
		items = append(items, gitops.Item{
			Path:       n.content.FilePath,
			Content:    []byte(n.content.Content),
			Category:   string(n.content.Category),
			Title:      n.content.Title,
			SourceFile: n.input.Path,
		})
	}
	result := p.components.Deployer.Deploy(ctx, items)
	stats.mu.Lock()
	stats.Deployment = &result
	stats.mu.Unlock()
	if !result.Success {
		err := services.Wrap(services.ErrExternalTool, "deploy", "deploy", strings.Join(result.Errors, "; "), nil)
		stats.recordError(ErrorDeployment, "", err)
		return err
	}
	stats.mu.Lock()
	stats.GitCommits += result.CommitsCreated
	stats.mu.Unlock()
	if result.CommitHash == "" {
		logger.Info("deploy created no commit, nothing published",
			logging.Int("items", len(notes)),
			logging.String("branch", result.BranchName))
		return nil
	}

	for _, n := range notes {
		p.recordArticle(ctx, logger, history.Article{
			SessionID:  p.sessionID,
			SourcePath: n.input.Path,
			OutputPath: n.content.FilePath,
			Category:   string(n.content.Category),
			Title:      n.content.Title,
		})
		p.publish(ctx, logger, notifications.EventArticlePublished, notifications.Payload{
			"title":    n.content.Title,
			"category": string(n.content.Category),
			"url":      result.DeploymentURL,
		})
	}
	p.publish(ctx, logger, notifications.EventDeployCompleted, notifications.Payload{
		"files":  len(result.FilesDeployed),
		"branch": result.BranchName,
		"pr":     result.PRURL,
	})
	return nil
}

func (p *Processor) archive(ctx context.Context, files []InputFile) {
	logger := logging.WithContext(ctx, p.logger)
	moved, err := archiveInputs(p.cfg.Paths.InputProcessed, p.sessionID, files, func(path string, err error) {
		logging.WarnWithContext(logger, "failed to archive input", "archive_failed",
			logging.String("file", path),
			logging.String(logging.FieldImpact, "file will be processed again next run"),
			logging.Error(err))
	})
	if err != nil {
		logging.WarnWithContext(logger, "archive directory unavailable", "archive_failed",
			logging.String(logging.FieldImpact, "inputs left in place"),
			logging.Error(err))
		return
	}
	logger.Info("inputs archived", logging.Int("moved", moved), logging.Int("total", len(files)))
}

func (p *Processor) beginRun(ctx context.Context, logger *slog.Logger) *history.Run {
	if p.history == nil {
		return nil
	}
	run, err := p.history.Begin(context.WithoutCancel(ctx), p.sessionID, history.ModeBatch, p.dryRun)
	if err != nil {
		logging.WarnWithContext(logger, "history ledger unavailable", "history_failed",
			logging.String(logging.FieldImpact, "run not recorded"),
			logging.Error(err))
		return nil
	}
	return run
}

func (p *Processor) finishRun(ctx context.Context, logger *slog.Logger, run *history.Run, stats *Stats, runErr error) {
	if run == nil {
		return
	}
	stats.HistoryRun(run)
	run.Status = runStatus(runErr)
	if runErr != nil {
		run.ErrorMessage = runErr.Error()
	}
	if err := p.history.Finish(context.WithoutCancel(ctx), run); err != nil {
		logging.WarnWithContext(logger, "history update failed", "history_failed",
			logging.String(logging.FieldImpact, "run left open in the ledger"),
			logging.Error(err))
	}
}

func (p *Processor) recordArticle(ctx context.Context, logger *slog.Logger, a history.Article) {
	if p.history == nil {
		return
	}
	if err := p.history.RecordArticle(ctx, a); err != nil {
		logger.Debug("article not recorded", logging.String("path", a.OutputPath), logging.Error(err))
	}
}

func (o *runOptions) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

func runStatus(err error) history.Status {
	switch {
	case err == nil:
		return history.StatusSucceeded
	case errors.Is(err, context.Canceled):
		return history.StatusInterrupted
	default:
		return history.StatusFailed
	}
}
