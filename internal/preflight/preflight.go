package preflight

import (
	"context"

	"gardenpipe/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// RunAll checks every configured directory. With probe set it also calls
// the Anthropic API, which costs one small completion.
func RunAll(ctx context.Context, cfg *config.Config, probe bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Audio input", cfg.Paths.InputAudio),
		CheckDirectoryAccess("Video input", cfg.Paths.InputVideo),
		CheckDirectoryAccess("Text input", cfg.Paths.InputText),
		CheckDirectoryAccess("Processed archive", cfg.Paths.InputProcessed),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckGarden(cfg.Paths.DigitalGarden),
		CheckAPIKey("Anthropic API key", cfg.Classification.APIKey, true),
		CheckAPIKey("Perplexity API key", cfg.Research.APIKey, false),
		CheckAPIKey("Imagen API key", cfg.Imagen.APIKey, false),
	}

	if probe && cfg.Classification.APIKey != "" {
		results = append(results, CheckLLM(ctx, "Anthropic API", cfg.Classification))
	}
	return results
}
