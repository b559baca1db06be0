package whisperx

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

func extractArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-map", "0:a:0",
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
}

// ExtractAudio writes the first audio stream of source to dest as a mono
// 16kHz PCM WAV file.
func ExtractAudio(ctx context.Context, ffmpegBinary, source, dest string) error {
	if strings.TrimSpace(source) == "" || strings.TrimSpace(dest) == "" {
		return fmt.Errorf("extract audio: source and destination required")
	}
	if ffmpegBinary == "" {
		ffmpegBinary = FFmpegCommand
	}
	cmd := exec.CommandContext(ctx, ffmpegBinary, extractArgs(source, dest)...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg extract: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
