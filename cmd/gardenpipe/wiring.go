package main

import (
	"log/slog"
	"time"

	"gardenpipe/internal/classification"
	"gardenpipe/internal/config"
	"gardenpipe/internal/factcheck"
	"gardenpipe/internal/garden"
	"gardenpipe/internal/gitops"
	"gardenpipe/internal/pipeline"
	"gardenpipe/internal/research"
	"gardenpipe/internal/retry"
	"gardenpipe/internal/services/imagen"
	"gardenpipe/internal/services/llm"
	"gardenpipe/internal/services/perplexity"
	"gardenpipe/internal/stage"
	"gardenpipe/internal/transcription"
	"gardenpipe/internal/visual"
)

// clients holds the hosted-API clients shared by every component of a run.
type clients struct {
	llm    *llm.Client
	search *perplexity.Client
	images *imagen.Client
}

func newClients(cfg *config.Config) clients {
	cc := cfg.Classification
	rc := cfg.Research
	ic := cfg.Imagen
	return clients{
		llm: llm.NewClient(llm.Config{
			APIKey:         cc.APIKey,
			BaseURL:        cc.BaseURL,
			Model:          cc.Model,
			MaxTokens:      cc.MaxTokens,
			Temperature:    cc.Temperature,
			TimeoutSeconds: cc.TimeoutSeconds,
		}, llm.WithRetryPolicy(retry.FromSettings(cc.MaxRetries, seconds(cc.RetryDelaySeconds)))),
		search: perplexity.NewClient(perplexity.Config{
			APIKey:         rc.APIKey,
			BaseURL:        rc.BaseURL,
			Model:          rc.Model,
			MaxTokens:      rc.MaxTokens,
			Temperature:    rc.Temperature,
			TimeoutSeconds: rc.TimeoutSeconds,
			RecencyFilter:  rc.SearchRecencyFilter,
		}, perplexity.WithRetryPolicy(retry.FromSettings(rc.MaxRetries, seconds(rc.RetryDelaySeconds)))),
		images: imagen.NewClient(imagen.Config{
			APIKey:         ic.APIKey,
			BaseURL:        ic.BaseURL,
			Model:          ic.Model,
			AspectRatio:    ic.AspectRatio,
			TimeoutSeconds: ic.TimeoutSeconds,
		}),
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// batchComponents backs the batch processor. The repo must be closed by
// the caller.
type batchComponents struct {
	transcriber *transcription.Service
	classifier  *classification.Classifier
	researcher  *research.Researcher
	repo        *gitops.Repo
}

// The researcher is left nil without a Perplexity key so the batch skips
// research instead of failing every note.
func newBatchComponents(cfg *config.Config, c clients, logger *slog.Logger) batchComponents {
	b := batchComponents{
		transcriber: transcription.New(cfg, logger),
		classifier:  classification.New(cfg, c.llm, logger),
		repo:        gitops.New(cfg, c.llm, logger),
	}
	if c.search.Available() {
		b.researcher = research.New(cfg, c.search, logger)
	}
	return b
}

func (b batchComponents) pipeline() pipeline.Components {
	components := pipeline.Components{
		Transcriber: b.transcriber,
		Classifier:  b.classifier,
		Deployer:    b.repo,
	}
	if b.researcher != nil {
		components.Researcher = b.researcher
	}
	return components
}

func (b batchComponents) checkers() []stage.Checker {
	checkers := []stage.Checker{b.transcriber, b.classifier}
	if b.researcher != nil {
		checkers = append(checkers, b.researcher)
	}
	return append(checkers, b.repo)
}

// integratedComponents backs the single-file pipeline.
type integratedComponents struct {
	articles *garden.Classifier
	visual   *visual.Enhancer
	checker  *factcheck.Checker
	repo     *gitops.Repo
}

func newIntegratedComponents(cfg *config.Config, c clients, logger *slog.Logger, repo *gitops.Repo) integratedComponents {
	return integratedComponents{
		articles: garden.New(c.llm, logger),
		visual:   visual.New(cfg, c.llm, c.images, logger),
		checker:  factcheck.New(cfg, c.llm, c.search, logger),
		repo:     repo,
	}
}

func (ic integratedComponents) steps(cfg *config.Config) pipeline.Steps {
	steps := pipeline.Steps{
		Articles:  ic.articles,
		Visual:    ic.visual,
		FactCheck: ic.checker,
		Git:       ic.repo,
	}
	if cfg.Pipeline.EnableSiteBuild {
		steps.Site = pipeline.NewSiteBuilder(cfg)
	}
	return steps
}

func (ic integratedComponents) checkers() []stage.Checker {
	return []stage.Checker{ic.visual, ic.checker}
}
