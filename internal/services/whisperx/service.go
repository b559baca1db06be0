package whisperx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	langpkg "gardenpipe/internal/language"
)

// CommandRunner executes an external command to completion.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Service provides WhisperX transcription capabilities.
type Service struct {
	cfg           Config
	ffmpegBinary  string
	commandRunner CommandRunner
	lookPath      func(string) (string, error)
}

// NewService creates a WhisperX service with the given configuration.
func NewService(cfg Config, ffmpegBinary string) *Service {
	if ffmpegBinary == "" {
		ffmpegBinary = FFmpegCommand
	}
	return &Service{
		cfg:          cfg,
		ffmpegBinary: ffmpegBinary,
		lookPath:     exec.LookPath,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner CommandRunner) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// Device resolves "auto" to cuda when nvidia-smi is on PATH.
func (s *Service) Device() string {
	switch strings.ToLower(strings.TrimSpace(s.cfg.Device)) {
	case CUDADevice:
		return CUDADevice
	case CPUDevice:
		return CPUDevice
	}
	if s.lookPath != nil {
		if _, err := s.lookPath(NvidiaSMICommand); err == nil {
			return CUDADevice
		}
	}
	return CPUDevice
}

func (s *Service) computeType(device string) string {
	ct := strings.TrimSpace(s.cfg.ComputeType)
	if device == CPUDevice && (ct == "" || ct == "float16") {
		return CPUComputeType
	}
	if ct == "" {
		return "float16"
	}
	return ct
}

// ExtractAudio converts source to the WAV layout WhisperX expects.
func (s *Service) ExtractAudio(ctx context.Context, source, dest string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, s.ffmpegBinary, extractArgs(source, dest)...)
	}
	return ExtractAudio(ctx, s.ffmpegBinary, source, dest)
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	// pyannote checkpoints fail to load under the torch weights_only default.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, tail(strings.TrimSpace(string(output)), 400))
	}
	return nil
}

// Transcribe runs WhisperX on source and loads the JSON transcript it writes
// into outputDir.
func (s *Service) Transcribe(ctx context.Context, source, outputDir string) (Transcript, error) {
	if strings.TrimSpace(source) == "" {
		return Transcript{}, fmt.Errorf("transcribe: source path required")
	}
	if outputDir == "" {
		outputDir = filepath.Dir(source)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Transcript{}, fmt.Errorf("transcribe: ensure output dir: %w", err)
	}
	if err := s.run(ctx, UVXCommand, s.buildArgs(source, outputDir)...); err != nil {
		return Transcript{}, fmt.Errorf("whisperx: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	transcript, err := LoadTranscript(filepath.Join(outputDir, base+".json"))
	if err != nil {
		return Transcript{}, err
	}
	if transcript.Language == "" {
		transcript.Language = langpkg.ToISO2(s.cfg.Language)
	}
	return transcript, nil
}

func (s *Service) buildArgs(source, outputDir string) []string {
	device := s.Device()
	args := make([]string, 0, 32)
	if device == CUDADevice {
		args = append(args, "--index-url", CUDAIndexURL, "--extra-index-url", PypiIndexURL)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	chunk := s.cfg.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	args = append(args,
		"whisperx",
		source,
		"--model", s.Model(),
		"--batch_size", BatchSize,
		"--beam_size", BeamSize,
		"--chunk_size", strconv.Itoa(chunk),
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--device", device,
		"--compute_type", s.computeType(device),
	)
	if task := strings.TrimSpace(s.cfg.Task); task != "" {
		args = append(args, "--task", task)
	}
	if lang := langpkg.ToISO2(s.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	if token := strings.TrimSpace(s.cfg.HFToken); token != "" {
		args = append(args, "--vad_method", VADMethodPyannote, "--hf_token", token)
	} else {
		args = append(args, "--vad_method", VADMethodSilero)
	}
	return args
}

// Word is a single aligned word. Score is the alignment probability.
type Word struct {
	Word  string   `json:"word"`
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
	Score *float64 `json:"score,omitempty"`
}

// Segment represents a transcribed segment from WhisperX JSON output. End is
// nil when WhisperX could not align the tail of the segment.
type Segment struct {
	Text  string   `json:"text"`
	Start float64  `json:"start"`
	End   *float64 `json:"end,omitempty"`
	Words []Word   `json:"words,omitempty"`
}

// Transcript is the decoded WhisperX output file.
type Transcript struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
	JSONPath string    `json:"-"`
}

// Text joins the trimmed segment texts with single spaces.
func (t Transcript) Text() string {
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// LoadTranscript reads a WhisperX JSON file.
func LoadTranscript(jsonPath string) (Transcript, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return Transcript{}, fmt.Errorf("read whisperx json: %w", err)
	}
	var transcript Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return Transcript{}, fmt.Errorf("parse whisperx json: %w", err)
	}
	transcript.Language = langpkg.ToISO2(transcript.Language)
	transcript.JSONPath = jsonPath
	return transcript, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
