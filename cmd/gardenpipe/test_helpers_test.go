package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gardenpipe/internal/config"
)

var isolatedEnv = []string{
	"ANTHROPIC_API_KEY", "CLAUDE_API_KEY", "PERPLEXITY_API_KEY", "GOOGLE_AI_API_KEY",
	"GEMINI_API_KEY", "IMAGEN4_ENABLED", "NTFY_TOPIC", "DIGITAL_GARDEN_PATH", "INPUT_PATH",
	"GIT_AUTO_PUSH", "GIT_CREATE_PR", "GARDENPIPE_LOG_LEVEL", "MAX_CONCURRENT_TRANSCRIPTIONS",
}

type cliTestEnv struct {
	baseDir    string
	configPath string
	envPath    string
	settings   cliSettings
}

type cliSettings struct {
	classificationURL string
	ntfyTopic         string
}

func setupCLITestEnv(t *testing.T, settings cliSettings) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	for _, key := range isolatedEnv {
		t.Setenv(key, "")
	}

	envPath := filepath.Join(base, ".env")
	if err := os.WriteFile(envPath, nil, 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "gardenpipe.yaml"),
		envPath:    envPath,
		settings:   settings,
	}
	writeTestConfig(t, env)
	return env
}

func writeTestConfig(t *testing.T, env *cliTestEnv) {
	t.Helper()
	base := env.baseDir
	garden := filepath.Join(base, "garden")
	var b strings.Builder
	fmt.Fprintf(&b, "paths:\n")
	fmt.Fprintf(&b, "  input_audio: %q\n", filepath.Join(base, "input", "audio"))
	fmt.Fprintf(&b, "  input_video: %q\n", filepath.Join(base, "input", "video"))
	fmt.Fprintf(&b, "  input_text: %q\n", filepath.Join(base, "input", "text"))
	fmt.Fprintf(&b, "  input_processed: %q\n", filepath.Join(base, "input", "processed"))
	fmt.Fprintf(&b, "  digital_garden: %q\n", garden)
	fmt.Fprintf(&b, "  log_dir: %q\n", filepath.Join(base, "logs"))
	fmt.Fprintf(&b, "git:\n  repository_path: %q\n", garden)
	fmt.Fprintf(&b, "logging:\n  console_enabled: false\n  file_enabled: false\n")
	if env.settings.classificationURL != "" {
		fmt.Fprintf(&b, "classification:\n  base_url: %q\n  max_retries: 1\n", env.settings.classificationURL)
	}
	if env.settings.ntfyTopic != "" {
		fmt.Fprintf(&b, "notifications:\n  ntfy_topic: %q\n", env.settings.ntfyTopic)
	}
	if err := os.WriteFile(env.configPath, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// loadConfig returns the config the CLI resolves for env.
func (env *cliTestEnv) loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, _, _, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return cfg
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--config", env.configPath, "--env-file", env.envPath}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\n---\n%s", needle, haystack)
	}
}
