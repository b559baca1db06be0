package config

const (
	defaultCommitTemplate = "🤖 Automated content: {category} - {title}\n\nGenerated from: {source_file}\nSession: {session_id}\n\nGenerated by gardenpipe"
	defaultPRTemplate     = "## Automated Content Update\n\n**Category**: {category}\n**Source**: {source_file}\n**Processing Time**: {processing_time}s\n\n### Changes\n{changes_summary}\n"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InputAudio:     "input/audio",
			InputVideo:     "input/video",
			InputText:      "input/text",
			InputProcessed: "input/processed",
			DigitalGarden:  "digital-garden",
			LogDir:         "logs",
		},
		Transcription: Transcription{
			Model:            "large-v3",
			Device:           "auto",
			ComputeType:      "float16",
			SupportedFormats: []string{".mp3", ".wav", ".flac", ".m4a", ".ogg"},
			VideoFormats:     []string{".mp4", ".avi", ".mov", ".mkv", ".webm"},
			MinConfidence:    0.7,
			Language:         "ja",
			Task:             "transcribe",
			ChunkDuration:    30,
			MaxFileSizeMB:    500,
			FFmpegBinary:     "ffmpeg",
			FFprobeBinary:    "ffprobe",
		},
		Classification: Classification{
			BaseURL:           "https://api.anthropic.com",
			Model:             "claude-3-5-sonnet-20241022",
			MaxTokens:         4000,
			Temperature:       0.7,
			TimeoutSeconds:    60,
			MaxRetries:        3,
			RetryDelaySeconds: 1.0,
		},
		Research: Research{
			BaseURL:             "https://api.perplexity.ai",
			Model:               "sonar",
			MaxTokens:           2000,
			Temperature:         0.2,
			TimeoutSeconds:      45,
			MaxRetries:          3,
			RetryDelaySeconds:   1.0,
			SearchRecencyFilter: "month",
		},
		Imagen: Imagen{
			Enabled:        true,
			BaseURL:        "https://generativelanguage.googleapis.com/v1beta",
			Model:          "imagen-4.0-generate-001",
			AspectRatio:    "16:9",
			TimeoutSeconds: 90,
		},
		Git: Git{
			RepositoryPath:        ".",
			MainBranch:            "main",
			FeatureBranchPrefix:   "automation/",
			CommitMessageTemplate: defaultCommitTemplate,
			AutoPush:              true,
			CreatePR:              true,
			PRTemplate:            defaultPRTemplate,
			EnableGHPages:         true,
			GitBinary:             "git",
			GHBinary:              "gh",
			CommandTimeoutSeconds: 30,
			PushTimeoutSeconds:    120,
			MaxAutomationBranches: 10,
		},
		Performance: Performance{
			MaxConcurrentTranscriptions:  2,
			MaxConcurrentClassifications: 5,
			MaxConcurrentResearch:        3,
			MemoryLimitMB:                2048,
			DiskCleanupThresholdGB:       10,
			CacheTTLHours:                24,
		},
		Logging: Logging{
			Level:          "info",
			Format:         "console",
			FileEnabled:    true,
			ConsoleEnabled: true,
			RetentionDays:  7,
		},
		Quality: Quality{
			MinTextLength:               50,
			MaxTextLength:               50000,
			MinClassificationConfidence: 0.8,
			RequiredMetadataFields:      []string{"title", "category", "created_at"},
			ContentValidation:           true,
		},
		Security: Security{
			AllowedFileTypes: []string{".mp3", ".wav", ".flac", ".m4a", ".ogg", ".mp4", ".mov", ".mkv", ".webm", ".txt", ".md"},
			MaxFileSizeMB:    500,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Runs:           true,
			Articles:       true,
			Errors:         true,
		},
		Pipeline: Pipeline{
			EnableThumbnails: true,
			EnableMermaid:    true,
			EnableFactCheck:  true,
			EnableGitCommit:  true,
			EnableGitPush:    true,
			EnableSiteBuild:  false,
			SkipExisting:     true,
			MaxClaims:        5,
			BuildCommand:     []string{"npm", "run", "build"},
		},
	}
}
