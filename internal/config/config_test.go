package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gardenpipe/internal/config"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, key := range []string{
		"ANTHROPIC_API_KEY", "CLAUDE_API_KEY", "PERPLEXITY_API_KEY", "GOOGLE_AI_API_KEY",
		"GEMINI_API_KEY", "IMAGEN4_ENABLED", "HF_TOKEN", "WHISPER_MODEL", "WHISPER_DEVICE",
		"MAX_CONCURRENT_TRANSCRIPTIONS", "MEMORY_LIMIT_MB", "DIGITAL_GARDEN_PATH", "INPUT_PATH",
		"GIT_AUTO_PUSH", "GIT_CREATE_PR", "NTFY_TOPIC", "GARDENPIPE_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	work := t.TempDir()
	t.Chdir(work)
	return work
}

func TestLoadDefaultsExpandPaths(t *testing.T) {
	work := isolateEnv(t)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent")
	}
	if !strings.HasSuffix(resolved, filepath.Join(".config", "gardenpipe", "config.yaml")) {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if cfg.Paths.InputAudio != filepath.Join(work, "input", "audio") {
		t.Fatalf("unexpected audio dir %q", cfg.Paths.InputAudio)
	}
	if cfg.ContentDir() != filepath.Join(work, "digital-garden", "src", "content") {
		t.Fatalf("unexpected content dir %q", cfg.ContentDir())
	}
	if cfg.Transcription.MinConfidence != 0.7 {
		t.Fatalf("unexpected min confidence %v", cfg.Transcription.MinConfidence)
	}
	if cfg.Classification.APIKey != "" {
		t.Fatal("expected empty classification key")
	}
	if err := cfg.RequireClassification(); err == nil {
		t.Fatal("expected missing classification key to be reported")
	}
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	work := isolateEnv(t)
	path := filepath.Join(work, "gardenpipe.yaml")
	data := "performance:\n  max_concurrent_transcriptions: 4\ngit:\n  feature_branch_prefix: content\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected project config to be found, got %q exists=%v", resolved, exists)
	}
	if cfg.Performance.MaxConcurrentTranscriptions != 4 {
		t.Fatalf("expected override, got %d", cfg.Performance.MaxConcurrentTranscriptions)
	}
	if cfg.Performance.MaxConcurrentResearch != 3 {
		t.Fatalf("expected default research concurrency, got %d", cfg.Performance.MaxConcurrentResearch)
	}
	if cfg.Git.FeatureBranchPrefix != "content/" {
		t.Fatalf("expected trailing slash on prefix, got %q", cfg.Git.FeatureBranchPrefix)
	}
}

func TestLoadTOMLByExtension(t *testing.T) {
	work := isolateEnv(t)
	path := filepath.Join(work, "custom.toml")
	data := "[research]\nsearch_recency_filter = \"week\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected explicit config to exist")
	}
	if cfg.Research.SearchRecencyFilter != "week" {
		t.Fatalf("unexpected recency %q", cfg.Research.SearchRecencyFilter)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	work := isolateEnv(t)
	path := filepath.Join(work, "gardenpipe.yaml")
	if err := os.WriteFile(path, []byte("pathz:\n  log_dir: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to fail")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	work := isolateEnv(t)
	t.Setenv("CLAUDE_API_KEY", "claude-key")
	t.Setenv("PERPLEXITY_API_KEY", "pplx-key")
	t.Setenv("INPUT_PATH", filepath.Join(work, "inbox"))
	t.Setenv("GIT_AUTO_PUSH", "false")
	t.Setenv("MAX_CONCURRENT_TRANSCRIPTIONS", "3")
	t.Setenv("IMAGEN4_ENABLED", "no")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Classification.APIKey != "claude-key" {
		t.Fatalf("expected fallback key, got %q", cfg.Classification.APIKey)
	}
	if cfg.Paths.InputText != filepath.Join(work, "inbox", "text") {
		t.Fatalf("unexpected text dir %q", cfg.Paths.InputText)
	}
	if cfg.Paths.InputProcessed != filepath.Join(work, "inbox", "processed") {
		t.Fatalf("unexpected processed dir %q", cfg.Paths.InputProcessed)
	}
	if cfg.Git.AutoPush {
		t.Fatal("expected auto push disabled")
	}
	if cfg.Performance.MaxConcurrentTranscriptions != 3 {
		t.Fatalf("unexpected concurrency %d", cfg.Performance.MaxConcurrentTranscriptions)
	}
	if cfg.Imagen.Enabled {
		t.Fatal("expected imagen disabled")
	}
	if err := cfg.RequireResearch(); err != nil {
		t.Fatalf("expected research configured: %v", err)
	}
}

func TestValidateReportsYAMLKeys(t *testing.T) {
	cfg := config.Default()
	cfg.Transcription.MinConfidence = 1.5
	cfg.Performance.MemoryLimitMB = 128
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"transcription.min_confidence", "performance.memory_limit_mb"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}

func TestValidateTextLengthOrder(t *testing.T) {
	cfg := config.Default()
	cfg.Quality.MinTextLength = 100
	cfg.Quality.MaxTextLength = 10
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "min_text_length") {
		t.Fatalf("expected text length error, got %v", err)
	}
}

func TestLoadDotEnvOverridesEnvironment(t *testing.T) {
	work := isolateEnv(t)
	t.Setenv("PERPLEXITY_API_KEY", "old")
	if err := os.WriteFile(filepath.Join(work, ".env"), []byte("PERPLEXITY_API_KEY=new\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	loaded, err := config.LoadDotEnv("")
	if err != nil {
		t.Fatalf("LoadDotEnv returned error: %v", err)
	}
	if loaded != filepath.Join(work, ".env") {
		t.Fatalf("unexpected loaded path %q", loaded)
	}
	if got := os.Getenv("PERPLEXITY_API_KEY"); got != "new" {
		t.Fatalf("expected override, got %q", got)
	}
}

func TestCreateSampleLoads(t *testing.T) {
	work := isolateEnv(t)
	path := filepath.Join(work, "sample", "config.yaml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	isolateEnv(t)
	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.InputAudio, cfg.Paths.InputProcessed, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected %s to exist", dir)
		}
	}
}
