package transcription

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"gardenpipe/internal/config"
	"gardenpipe/internal/logging"
	"gardenpipe/internal/media/ffprobe"
	"gardenpipe/internal/services"
	"gardenpipe/internal/services/whisperx"
	"gardenpipe/internal/stage"
)

// Engine is the speech-to-text backend.
type Engine interface {
	ExtractAudio(ctx context.Context, source, dest string) error
	Transcribe(ctx context.Context, source, outputDir string) (whisperx.Transcript, error)
	Model() string
	Device() string
}

// Prober reads media metadata.
type Prober func(ctx context.Context, path string) (ffprobe.Result, error)

// Service transcribes validated inputs.
type Service struct {
	engine        Engine
	probe         Prober
	logger        *slog.Logger
	audioFormats  []string
	videoFormats  []string
	maxFileSizeMB int
	concurrency   int
	language      string
	workRoot      string
}

// Option customizes the service.
type Option func(*Service)

// WithEngine replaces the WhisperX engine.
func WithEngine(engine Engine) Option {
	return func(s *Service) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// WithProber replaces the ffprobe metadata reader.
func WithProber(p Prober) Option {
	return func(s *Service) {
		if p != nil {
			s.probe = p
		}
	}
}

// WithWorkDir sets the parent for per-file scratch directories.
func WithWorkDir(dir string) Option {
	return func(s *Service) { s.workRoot = dir }
}

// New builds a transcription service from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Service {
	tc := cfg.Transcription
	engine := whisperx.NewService(whisperx.Config{
		Model:       tc.Model,
		Device:      tc.Device,
		ComputeType: tc.ComputeType,
		Language:    tc.Language,
		Task:        tc.Task,
		ChunkSize:   tc.ChunkDuration,
		HFToken:     tc.HFToken,
	}, tc.FFmpegBinary)
	ffprobeBinary := tc.FFprobeBinary
	s := &Service{
		engine: engine,
		probe: func(ctx context.Context, path string) (ffprobe.Result, error) {
			return ffprobe.Inspect(ctx, ffprobeBinary, path)
		},
		logger:        logging.NewComponentLogger(logger, "transcription"),
		audioFormats:  tc.SupportedFormats,
		videoFormats:  tc.VideoFormats,
		maxFileSizeMB: tc.MaxFileSizeMB,
		concurrency:   cfg.Performance.MaxConcurrentTranscriptions,
		language:      tc.Language,
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transcribe validates and transcribes a single file. Any failure is logged
// and returned with a nil result.
func (s *Service) Transcribe(ctx context.Context, path string) (*Result, error) {
	ctx = services.WithItem(ctx, path)
	logger := logging.WithContext(ctx, s.logger)
	started := time.Now()

	if err := s.Validate(path); err != nil {
		logger.Error("file validation failed",
			logging.String(logging.FieldEventType, "transcription_validation_failed"),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Error(err))
		return nil, err
	}

	meta := s.metadata(ctx, logger, path)
	logger.Info("transcription started",
		logging.String(logging.FieldEventType, "transcription_start"),
		logging.Float64("duration_seconds", meta.DurationSeconds),
		logging.String("model", s.engine.Model()))

	workDir, err := os.MkdirTemp(s.workRoot, "gardenpipe-transcribe-*")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "transcription", "workdir", "create scratch directory", err)
	}
	defer os.RemoveAll(workDir)

	source := path
	if s.isVideo(path) {
		source = filepath.Join(workDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".wav")
		if err := s.engine.ExtractAudio(ctx, path, source); err != nil {
			wrapped := services.Wrap(services.ErrExternalTool, "transcription", "extract audio", "ffmpeg failed", err)
			logger.Error("audio extraction failed", logging.Error(wrapped))
			return nil, wrapped
		}
	}

	transcript, err := s.engine.Transcribe(ctx, source, workDir)
	if err != nil {
		marker := services.ErrExternalTool
		if ctx.Err() != nil {
			marker = services.ErrTimeout
		}
		wrapped := services.Wrap(marker, "transcription", "whisperx", "transcription failed", err)
		logger.Error("transcription failed",
			logging.String(logging.FieldEventType, "transcription_failed"),
			logging.Error(wrapped))
		return nil, wrapped
	}

	segments := convertSegments(transcript.Segments)
	text := strings.TrimSpace(transcript.Text())
	language := transcript.Language
	if language == "" {
		language = s.language
	}
	result := &Result{
		Text:           text,
		Confidence:     Confidence(segments),
		Segments:       segments,
		AudioMetadata:  meta,
		Language:       language,
		Quality:        AssessQuality(text, segments),
		ProcessingTime: time.Since(started),
		SourceFile:     path,
		Model:          s.engine.Model(),
		Device:         s.engine.Device(),
	}
	logger.Info("transcription completed",
		logging.String(logging.FieldEventType, "transcription_complete"),
		logging.Int("text_length", len([]rune(text))),
		logging.Float64("confidence", result.Confidence),
		logging.Int("segments", len(segments)),
		logging.Duration("duration", result.ProcessingTime.Round(time.Millisecond)))
	return result, nil
}

// TranscribeBatch transcribes every path concurrently. Failed files map to
// nil; the batch itself never fails.
func (s *Service) TranscribeBatch(ctx context.Context, paths []string) map[string]*Result {
	results := make(map[string]*Result, len(paths))
	var mu sync.Mutex
	sem := semaphore.NewWeighted(int64(s.concurrency))
	var g errgroup.Group
	for _, path := range paths {
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				results[path] = nil
				mu.Unlock()
				return nil
			}
			defer sem.Release(1)
			res, _ := s.Transcribe(ctx, path)
			mu.Lock()
			results[path] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	successful := 0
	for _, r := range results {
		if r != nil {
			successful++
		}
	}
	s.logger.Info("batch transcription completed",
		logging.Int("total", len(paths)),
		logging.Int("successful", successful),
		logging.Int("failed", len(paths)-successful))
	return results
}

// Info describes the configured backend.
func (s *Service) Info() map[string]string {
	return map[string]string{
		"model":    s.engine.Model(),
		"device":   s.engine.Device(),
		"language": s.language,
	}
}

// HealthCheck reports whether uvx is available to run WhisperX.
func (s *Service) HealthCheck(context.Context) stage.Health {
	if _, err := exec.LookPath(whisperx.UVXCommand); err != nil {
		return stage.Unhealthy("transcription", "uvx not found on PATH")
	}
	return stage.Healthy("transcription")
}

func (s *Service) metadata(ctx context.Context, logger *slog.Logger, path string) AudioMetadata {
	meta := AudioMetadata{Format: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")}
	if info, err := os.Stat(path); err == nil {
		meta.FileSizeBytes = info.Size()
	}
	if s.probe == nil {
		return meta
	}
	probed, err := s.probe(ctx, path)
	if err != nil {
		logging.WarnWithContext(logger, "could not read audio metadata", "metadata_probe_failed",
			logging.String(logging.FieldErrorHint, "install ffprobe or check the file"),
			logging.String(logging.FieldImpact, "duration and sample rate unknown"),
			logging.Error(err))
		return meta
	}
	meta.DurationSeconds = probed.DurationSeconds()
	meta.SampleRate = probed.SampleRate()
	meta.Bitrate = probed.BitRate()
	if audio, ok := probed.AudioStream(); ok {
		meta.Channels = audio.Channels
		meta.Codec = audio.CodecName
	}
	if size := probed.SizeBytes(); size > 0 {
		meta.FileSizeBytes = size
	}
	return meta
}

func convertSegments(in []whisperx.Segment) []Segment {
	out := make([]Segment, 0, len(in))
	for _, seg := range in {
		end := seg.Start + 1
		if seg.End != nil {
			end = *seg.End
		}
		out = append(out, Segment{
			Start:      seg.Start,
			End:        end,
			Text:       strings.TrimSpace(seg.Text),
			Confidence: wordConfidence(seg.Words),
		})
	}
	return out
}

func wordConfidence(words []whisperx.Word) float64 {
	var sum float64
	n := 0
	for _, w := range words {
		if w.Score != nil {
			sum += *w.Score
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return clamp01(sum / float64(n))
}
