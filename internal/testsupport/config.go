package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"gardenpipe/internal/config"
)

// ConfigOption adjusts the config built by NewConfig.
type ConfigOption func(testing.TB, *config.Config)

// NewConfig returns the default config rooted in a fresh temp directory.
// Hosted API keys and the ntfy topic are cleared even when the environment
// sets them.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	root := t.TempDir()
	input := filepath.Join(root, "input")
	cfg := config.Default()
	cfg.Paths = config.Paths{
		InputAudio:     filepath.Join(input, "audio"),
		InputVideo:     filepath.Join(input, "video"),
		InputText:      filepath.Join(input, "text"),
		InputProcessed: filepath.Join(input, "processed"),
		DigitalGarden:  filepath.Join(root, "garden"),
		LogDir:         filepath.Join(root, "logs"),
	}
	cfg.Git.RepositoryPath = cfg.Paths.DigitalGarden
	cfg.Classification.APIKey = ""
	cfg.Research.APIKey = ""
	cfg.Imagen.APIKey = ""
	cfg.Notifications.NtfyTopic = ""

	for _, opt := range opts {
		opt(t, &cfg)
	}
	return &cfg
}

// WithDirectories creates the input, archive and log directories plus the
// garden content tree.
func WithDirectories() ConfigOption {
	return func(t testing.TB, cfg *config.Config) {
		t.Helper()
		if err := cfg.EnsureDirectories(); err != nil {
			t.Fatalf("ensure directories: %v", err)
		}
		if err := os.MkdirAll(cfg.ContentDir(), 0o755); err != nil {
			t.Fatalf("mkdir content dir: %v", err)
		}
	}
}
