package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed sample_config.yaml
var sampleConfig string

// Paths contains the input, output, and log directory layout.
type Paths struct {
	InputAudio     string `yaml:"input_audio" toml:"input_audio" validate:"required"`
	InputVideo     string `yaml:"input_video" toml:"input_video" validate:"required"`
	InputText      string `yaml:"input_text" toml:"input_text" validate:"required"`
	InputProcessed string `yaml:"input_processed" toml:"input_processed" validate:"required"`
	DigitalGarden  string `yaml:"digital_garden" toml:"digital_garden" validate:"required"`
	LogDir         string `yaml:"log_dir" toml:"log_dir" validate:"required"`
}

// Transcription configures the WhisperX runner and transcript acceptance.
type Transcription struct {
	Model            string   `yaml:"model_name" toml:"model_name" validate:"required"`
	Device           string   `yaml:"device" toml:"device" validate:"oneof=auto cpu cuda"`
	ComputeType      string   `yaml:"compute_type" toml:"compute_type" validate:"oneof=float16 float32 int8"`
	SupportedFormats []string `yaml:"supported_formats" toml:"supported_formats" validate:"min=1,dive,required"`
	VideoFormats     []string `yaml:"video_formats" toml:"video_formats" validate:"dive,required"`
	MinConfidence    float64  `yaml:"min_confidence" toml:"min_confidence" validate:"gte=0,lte=1"`
	Language         string   `yaml:"language" toml:"language" validate:"required"`
	Task             string   `yaml:"task" toml:"task" validate:"oneof=transcribe translate"`
	ChunkDuration    int      `yaml:"chunk_duration" toml:"chunk_duration" validate:"gt=0"`
	MaxFileSizeMB    int      `yaml:"max_file_size_mb" toml:"max_file_size_mb" validate:"gt=0"`
	FFmpegBinary     string   `yaml:"ffmpeg_binary" toml:"ffmpeg_binary"`
	FFprobeBinary    string   `yaml:"ffprobe_binary" toml:"ffprobe_binary"`
	HFToken          string   `yaml:"hf_token" toml:"hf_token"`
}

// Classification configures the Anthropic Messages client.
type Classification struct {
	APIKey            string  `yaml:"api_key" toml:"api_key"`
	BaseURL           string  `yaml:"base_url" toml:"base_url" validate:"omitempty,url"`
	Model             string  `yaml:"model" toml:"model" validate:"required"`
	MaxTokens         int     `yaml:"max_tokens" toml:"max_tokens" validate:"gt=0"`
	Temperature       float64 `yaml:"temperature" toml:"temperature" validate:"gte=0,lte=1"`
	TimeoutSeconds    int     `yaml:"timeout" toml:"timeout" validate:"gt=0"`
	MaxRetries        int     `yaml:"max_retries" toml:"max_retries" validate:"gte=1"`
	RetryDelaySeconds float64 `yaml:"retry_delay" toml:"retry_delay" validate:"gte=0"`
}

// Research configures the Perplexity search client and its cache.
type Research struct {
	APIKey              string  `yaml:"api_key" toml:"api_key"`
	BaseURL             string  `yaml:"base_url" toml:"base_url" validate:"omitempty,url"`
	Model               string  `yaml:"model" toml:"model" validate:"required"`
	MaxTokens           int     `yaml:"max_tokens" toml:"max_tokens" validate:"gt=0"`
	Temperature         float64 `yaml:"temperature" toml:"temperature" validate:"gte=0,lte=1"`
	TimeoutSeconds      int     `yaml:"timeout" toml:"timeout" validate:"gt=0"`
	MaxRetries          int     `yaml:"max_retries" toml:"max_retries" validate:"gte=1"`
	RetryDelaySeconds   float64 `yaml:"retry_delay" toml:"retry_delay" validate:"gte=0"`
	SearchRecencyFilter string  `yaml:"search_recency_filter" toml:"search_recency_filter" validate:"oneof=hour day week month year"`
}

// Imagen configures thumbnail generation.
type Imagen struct {
	Enabled        bool   `yaml:"enabled" toml:"enabled"`
	APIKey         string `yaml:"api_key" toml:"api_key"`
	BaseURL        string `yaml:"base_url" toml:"base_url" validate:"omitempty,url"`
	Model          string `yaml:"model" toml:"model" validate:"required"`
	AspectRatio    string `yaml:"aspect_ratio" toml:"aspect_ratio" validate:"oneof=1:1 3:4 4:3 9:16 16:9"`
	TimeoutSeconds int    `yaml:"timeout" toml:"timeout" validate:"gt=0"`
}

// Git configures repository automation.
type Git struct {
	RepositoryPath        string `yaml:"repository_path" toml:"repository_path" validate:"required"`
	MainBranch            string `yaml:"main_branch" toml:"main_branch" validate:"required"`
	FeatureBranchPrefix   string `yaml:"feature_branch_prefix" toml:"feature_branch_prefix" validate:"required"`
	CommitMessageTemplate string `yaml:"commit_message_template" toml:"commit_message_template" validate:"required"`
	AutoPush              bool   `yaml:"auto_push" toml:"auto_push"`
	CreatePR              bool   `yaml:"create_pr" toml:"create_pr"`
	PRTemplate            string `yaml:"pr_template" toml:"pr_template"`
	EnableGHPages         bool   `yaml:"enable_gh_pages" toml:"enable_gh_pages"`
	GitBinary             string `yaml:"git_binary" toml:"git_binary"`
	GHBinary              string `yaml:"gh_binary" toml:"gh_binary"`
	CommandTimeoutSeconds int    `yaml:"command_timeout" toml:"command_timeout" validate:"gt=0"`
	PushTimeoutSeconds    int    `yaml:"push_timeout" toml:"push_timeout" validate:"gt=0"`
	MaxAutomationBranches int    `yaml:"max_automation_branches" toml:"max_automation_branches" validate:"gte=0"`
}

// Performance bounds per-stage concurrency and resource use.
type Performance struct {
	MaxConcurrentTranscriptions  int `yaml:"max_concurrent_transcriptions" toml:"max_concurrent_transcriptions" validate:"gte=1"`
	MaxConcurrentClassifications int `yaml:"max_concurrent_classifications" toml:"max_concurrent_classifications" validate:"gte=1"`
	MaxConcurrentResearch        int `yaml:"max_concurrent_research" toml:"max_concurrent_research" validate:"gte=1"`
	MemoryLimitMB                int `yaml:"memory_limit_mb" toml:"memory_limit_mb" validate:"gte=512"`
	DiskCleanupThresholdGB       int `yaml:"disk_cleanup_threshold_gb" toml:"disk_cleanup_threshold_gb" validate:"gte=0"`
	CacheTTLHours                int `yaml:"cache_ttl_hours" toml:"cache_ttl_hours" validate:"gt=0"`
}

// Logging contains logging output preferences.
type Logging struct {
	Level          string `yaml:"level" toml:"level"`
	Format         string `yaml:"format" toml:"format"`
	FileEnabled    bool   `yaml:"file_enabled" toml:"file_enabled"`
	ConsoleEnabled bool   `yaml:"console_enabled" toml:"console_enabled"`
	RetentionDays  int    `yaml:"retention_days" toml:"retention_days" validate:"gte=0"`
}

// Quality contains content acceptance thresholds.
type Quality struct {
	MinTextLength               int      `yaml:"min_text_length" toml:"min_text_length" validate:"gte=0"`
	MaxTextLength               int      `yaml:"max_text_length" toml:"max_text_length" validate:"gt=0"`
	MinClassificationConfidence float64  `yaml:"min_classification_confidence" toml:"min_classification_confidence" validate:"gte=0,lte=1"`
	RequiredMetadataFields      []string `yaml:"required_metadata_fields" toml:"required_metadata_fields"`
	ContentValidation           bool     `yaml:"content_validation" toml:"content_validation"`
}

// Security restricts which inputs are accepted.
type Security struct {
	AllowedFileTypes []string `yaml:"allowed_file_types" toml:"allowed_file_types" validate:"min=1"`
	MaxFileSizeMB    int      `yaml:"max_file_size_mb" toml:"max_file_size_mb" validate:"gt=0"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `yaml:"ntfy_topic" toml:"ntfy_topic" validate:"omitempty,url"`
	RequestTimeout int    `yaml:"request_timeout" toml:"request_timeout" validate:"gte=0"`
	Runs           bool   `yaml:"runs" toml:"runs"`
	Articles       bool   `yaml:"articles" toml:"articles"`
	Errors         bool   `yaml:"errors" toml:"errors"`
}

// Pipeline toggles the integrated single-file pipeline steps.
type Pipeline struct {
	EnableThumbnails bool     `yaml:"enable_thumbnails" toml:"enable_thumbnails"`
	EnableMermaid    bool     `yaml:"enable_mermaid" toml:"enable_mermaid"`
	EnableFactCheck  bool     `yaml:"enable_fact_check" toml:"enable_fact_check"`
	EnableGitCommit  bool     `yaml:"enable_git_commit" toml:"enable_git_commit"`
	EnableGitPush    bool     `yaml:"enable_git_push" toml:"enable_git_push"`
	EnableSiteBuild  bool     `yaml:"enable_site_build" toml:"enable_site_build"`
	SkipExisting     bool     `yaml:"skip_existing" toml:"skip_existing"`
	MaxClaims        int      `yaml:"max_claims" toml:"max_claims" validate:"gte=0"`
	BuildCommand     []string `yaml:"build_command" toml:"build_command"`
}

// Config encapsulates all configuration values for gardenpipe.
type Config struct {
	Paths          Paths          `yaml:"paths" toml:"paths"`
	Transcription  Transcription  `yaml:"transcription" toml:"transcription"`
	Classification Classification `yaml:"classification" toml:"classification"`
	Research       Research       `yaml:"research" toml:"research"`
	Imagen         Imagen         `yaml:"imagen" toml:"imagen"`
	Git            Git            `yaml:"git" toml:"git"`
	Performance    Performance    `yaml:"performance" toml:"performance"`
	Logging        Logging        `yaml:"logging" toml:"logging"`
	Quality        Quality        `yaml:"quality" toml:"quality"`
	Security       Security       `yaml:"security" toml:"security"`
	Notifications  Notifications  `yaml:"notifications" toml:"notifications"`
	Pipeline       Pipeline       `yaml:"pipeline" toml:"pipeline"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/gardenpipe/config.yaml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := decodeInto(&cfg, file, resolvedPath); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func decodeInto(cfg *Config, r io.Reader, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		decoder := toml.NewDecoder(r)
		decoder.DisallowUnknownFields()
		return decoder.Decode(cfg)
	default:
		decoder := yaml.NewDecoder(r)
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	candidates := []string{defaultPath}
	for _, name := range []string{"gardenpipe.yaml", "gardenpipe.yml", "gardenpipe.toml"} {
		projectPath, err := filepath.Abs(name)
		if err != nil {
			return "", false, err
		}
		candidates = append(candidates, projectPath)
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the input, archive, and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.InputAudio,
		c.Paths.InputVideo,
		c.Paths.InputText,
		c.Paths.InputProcessed,
		c.Paths.LogDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ContentDir returns the site source directory that holds one folder per category.
func (c *Config) ContentDir() string {
	return filepath.Join(c.Paths.DigitalGarden, "src", "content")
}

// ThumbnailDir returns the public directory generated thumbnails are written to.
func (c *Config) ThumbnailDir() string {
	return filepath.Join(c.Paths.DigitalGarden, "public", "images", "thumbnails")
}

// HistoryPath returns the run history database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.LogDir, "history.db")
}

// LockPath returns the file used to serialize pipeline runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "gardenpipe.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// SummaryEntry is one line of the configuration summary shown by the CLI.
type SummaryEntry struct {
	Key   string
	Value string
}

// Summary lists the settings most useful when diagnosing a run. Secrets are never included.
func (c *Config) Summary() []SummaryEntry {
	return []SummaryEntry{
		{"transcription_model", c.Transcription.Model},
		{"classification_model", c.Classification.Model},
		{"research_model", c.Research.Model},
		{"imagen_model", c.Imagen.Model},
		{"max_concurrent_transcriptions", fmt.Sprint(c.Performance.MaxConcurrentTranscriptions)},
		{"max_concurrent_classifications", fmt.Sprint(c.Performance.MaxConcurrentClassifications)},
		{"max_concurrent_research", fmt.Sprint(c.Performance.MaxConcurrentResearch)},
		{"auto_push", fmt.Sprint(c.Git.AutoPush)},
		{"create_pr", fmt.Sprint(c.Git.CreatePR)},
		{"min_confidence", fmt.Sprintf("%.2f", c.Transcription.MinConfidence)},
		{"content_validation", fmt.Sprint(c.Quality.ContentValidation)},
	}
}
