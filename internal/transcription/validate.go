package transcription

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gardenpipe/internal/services"
)

// Validate checks that path exists, has an allowed extension, is within the
// size limit and can be opened.
func (s *Service) Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "transcription", "validate", "input file not accessible", err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "transcription", "validate", fmt.Sprintf("%s is a directory", path), nil)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(s.audioFormats, ext) && !slices.Contains(s.videoFormats, ext) {
		return services.Wrap(services.ErrValidation, "transcription", "validate", fmt.Sprintf("unsupported file type %q", ext), nil)
	}
	if limit := int64(s.maxFileSizeMB) << 20; limit > 0 && info.Size() > limit {
		return services.Wrap(services.ErrValidation, "transcription", "validate",
			fmt.Sprintf("file size %d bytes exceeds %d MB limit", info.Size(), s.maxFileSizeMB), nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "transcription", "validate", "input file not readable", err)
	}
	_ = f.Close()
	return nil
}

func (s *Service) isVideo(path string) bool {
	return slices.Contains(s.videoFormats, strings.ToLower(filepath.Ext(path)))
}
