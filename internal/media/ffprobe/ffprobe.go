package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"gardenpipe/internal/language"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int               `json:"index"`
	CodecName  string            `json:"codec_name"`
	CodecType  string            `json:"codec_type"`
	Duration   string            `json:"duration"`
	BitRate    string            `json:"bit_rate"`
	SampleRate string            `json:"sample_rate"`
	Channels   int               `json:"channels"`
	Tags       map[string]string `json:"tags"`
}

// Format captures container-level metadata.
type Format struct {
	Filename   string            `json:"filename"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	FormatName string            `json:"format_name"`
	Tags       map[string]string `json:"tags"`
}

// Runner returns the combined output of an ffprobe invocation.
type Runner func(ctx context.Context, binary string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, binary, args...).CombinedOutput() //nolint:gosec
}

// Inspect executes ffprobe against path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	return InspectWith(ctx, execRunner, binary, path)
}

// InspectWith is Inspect with a caller-provided runner.
func InspectWith(ctx context.Context, run Runner, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}
	output, err := run(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(output)))
	}
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// AudioStream returns the first audio stream.
func (r Result) AudioStream() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			return stream, true
		}
	}
	return Stream{}, false
}

// HasVideo reports whether any video stream is present.
func (r Result) HasVideo() bool {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return true
		}
	}
	return false
}

// DurationSeconds prefers the container duration and falls back to the audio
// stream. Unparseable values yield 0.
func (r Result) DurationSeconds() float64 {
	if d := parseNonNegative(r.Format.Duration); d > 0 {
		return d
	}
	if audio, ok := r.AudioStream(); ok {
		return parseNonNegative(audio.Duration)
	}
	return 0
}

// SizeBytes returns the reported container size in bytes.
func (r Result) SizeBytes() int64 {
	return int64(parseNonNegative(r.Format.Size))
}

// BitRate returns the container bitrate, falling back to the audio stream.
func (r Result) BitRate() int64 {
	if rate := parseNonNegative(r.Format.BitRate); rate > 0 {
		return int64(rate)
	}
	if audio, ok := r.AudioStream(); ok {
		return int64(parseNonNegative(audio.BitRate))
	}
	return 0
}

// SampleRate of the first audio stream in Hz.
func (r Result) SampleRate() int {
	if audio, ok := r.AudioStream(); ok {
		return int(parseNonNegative(audio.SampleRate))
	}
	return 0
}

// Language returns the ISO 639-1 language tagged on the audio stream or
// container, if any.
func (r Result) Language() string {
	if audio, ok := r.AudioStream(); ok {
		if lang := language.FromTags(audio.Tags); lang != "" {
			return lang
		}
	}
	return language.FromTags(r.Format.Tags)
}

func parseNonNegative(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) || parsed < 0 {
		return 0
	}
	return parsed
}
