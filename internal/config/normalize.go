package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnv()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscription()
	c.normalizeServices()
	c.normalizeGit()
	c.normalizeLogging()
	c.normalizeSecurity()
	return nil
}

// applyEnv layers process environment values over file settings.
func (c *Config) applyEnv() {
	if value := firstEnv("ANTHROPIC_API_KEY", "CLAUDE_API_KEY"); value != "" {
		c.Classification.APIKey = value
	}
	if value := firstEnv("PERPLEXITY_API_KEY"); value != "" {
		c.Research.APIKey = value
	}
	if value := firstEnv("GOOGLE_AI_API_KEY", "GEMINI_API_KEY"); value != "" {
		c.Imagen.APIKey = value
	}
	if value, ok := envBool("IMAGEN4_ENABLED"); ok {
		c.Imagen.Enabled = value
	}
	if value := firstEnv("HF_TOKEN"); value != "" {
		c.Transcription.HFToken = value
	}
	if value := firstEnv("WHISPER_MODEL"); value != "" {
		c.Transcription.Model = value
	}
	if value := firstEnv("WHISPER_DEVICE"); value != "" {
		c.Transcription.Device = value
	}
	if value, ok := envInt("MAX_CONCURRENT_TRANSCRIPTIONS"); ok {
		c.Performance.MaxConcurrentTranscriptions = value
	}
	if value, ok := envInt("MEMORY_LIMIT_MB"); ok {
		c.Performance.MemoryLimitMB = value
	}
	if value := firstEnv("DIGITAL_GARDEN_PATH"); value != "" {
		c.Paths.DigitalGarden = value
	}
	if value := firstEnv("INPUT_PATH"); value != "" {
		c.Paths.InputAudio = filepath.Join(value, "audio")
		c.Paths.InputVideo = filepath.Join(value, "video")
		c.Paths.InputText = filepath.Join(value, "text")
		c.Paths.InputProcessed = filepath.Join(value, "processed")
	}
	if value, ok := envBool("GIT_AUTO_PUSH"); ok {
		c.Git.AutoPush = value
	}
	if value, ok := envBool("GIT_CREATE_PR"); ok {
		c.Git.CreatePR = value
	}
	if value := firstEnv("NTFY_TOPIC"); value != "" {
		c.Notifications.NtfyTopic = value
	}
	if value := firstEnv("GARDENPIPE_LOG_LEVEL"); value != "" {
		c.Logging.Level = value
	}
}

func (c *Config) normalizePaths() error {
	var err error
	targets := []struct {
		name  string
		value *string
	}{
		{"paths.input_audio", &c.Paths.InputAudio},
		{"paths.input_video", &c.Paths.InputVideo},
		{"paths.input_text", &c.Paths.InputText},
		{"paths.input_processed", &c.Paths.InputProcessed},
		{"paths.digital_garden", &c.Paths.DigitalGarden},
		{"paths.log_dir", &c.Paths.LogDir},
		{"git.repository_path", &c.Git.RepositoryPath},
	}
	for _, target := range targets {
		if *target.value, err = expandPath(strings.TrimSpace(*target.value)); err != nil {
			return fmt.Errorf("%s: %w", target.name, err)
		}
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	c.Transcription.Device = strings.ToLower(strings.TrimSpace(c.Transcription.Device))
	c.Transcription.ComputeType = strings.ToLower(strings.TrimSpace(c.Transcription.ComputeType))
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	c.Transcription.SupportedFormats = normalizeExtensions(c.Transcription.SupportedFormats)
	c.Transcription.VideoFormats = normalizeExtensions(c.Transcription.VideoFormats)
	if c.Transcription.FFmpegBinary == "" {
		c.Transcription.FFmpegBinary = "ffmpeg"
	}
	if c.Transcription.FFprobeBinary == "" {
		c.Transcription.FFprobeBinary = "ffprobe"
	}
}

func (c *Config) normalizeServices() {
	c.Classification.APIKey = strings.TrimSpace(c.Classification.APIKey)
	c.Classification.BaseURL = strings.TrimRight(strings.TrimSpace(c.Classification.BaseURL), "/")
	c.Research.APIKey = strings.TrimSpace(c.Research.APIKey)
	c.Research.BaseURL = strings.TrimRight(strings.TrimSpace(c.Research.BaseURL), "/")
	c.Research.SearchRecencyFilter = strings.ToLower(strings.TrimSpace(c.Research.SearchRecencyFilter))
	c.Imagen.APIKey = strings.TrimSpace(c.Imagen.APIKey)
	c.Imagen.BaseURL = strings.TrimRight(strings.TrimSpace(c.Imagen.BaseURL), "/")
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeGit() {
	c.Git.MainBranch = strings.TrimSpace(c.Git.MainBranch)
	c.Git.FeatureBranchPrefix = strings.TrimSpace(c.Git.FeatureBranchPrefix)
	if c.Git.FeatureBranchPrefix != "" && !strings.HasSuffix(c.Git.FeatureBranchPrefix, "/") {
		c.Git.FeatureBranchPrefix += "/"
	}
	if c.Git.GitBinary == "" {
		c.Git.GitBinary = "git"
	}
	if c.Git.GHBinary == "" {
		c.Git.GHBinary = "gh"
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

func (c *Config) normalizeSecurity() {
	c.Security.AllowedFileTypes = normalizeExtensions(c.Security.AllowedFileTypes)
}

func normalizeExtensions(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		ext := strings.ToLower(strings.TrimSpace(value))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func envBool(key string) (bool, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return false, false
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

func envInt(key string) (int, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}
