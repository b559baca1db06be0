package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gardenpipe/internal/config"
)

// InputType groups inputs by how their text is obtained.
type InputType string

const (
	InputAudio InputType = "audio"
	InputVideo InputType = "video"
	InputText  InputType = "text"
)

var (
	videoExtensions = []string{"mp4", "avi", "mov", "mkv", "webm"}
	textExtensions  = []string{"txt", "md", "rtf"}
)

// InputFile is one discovered input.
type InputFile struct {
	Path     string
	Type     InputType
	Size     int64
	Modified time.Time
}

// NeedsTranscription reports whether the file is audio or video.
func (f InputFile) NeedsTranscription() bool {
	return f.Type == InputAudio || f.Type == InputVideo
}

// Discover lists the processable files in the configured input directories,
// sorted by path. Missing directories are skipped.
func Discover(cfg *config.Config) ([]InputFile, error) {
	sources := []struct {
		dir  string
		kind InputType
		exts []string
	}{
		{cfg.Paths.InputAudio, InputAudio, cfg.Transcription.SupportedFormats},
		{cfg.Paths.InputVideo, InputVideo, orDefault(cfg.Transcription.VideoFormats, videoExtensions)},
		{cfg.Paths.InputText, InputText, textExtensions},
	}
	var files []InputFile
	for _, src := range sources {
		found, err := scanDir(src.dir, src.kind, src.exts)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func orDefault(values, fallback []string) []string {
	if len(values) == 0 {
		return fallback
	}
	return values
}

func scanDir(dir string, kind InputType, exts []string) ([]InputFile, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	var files []InputFile
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(entry.Name()), "."))
		if _, ok := allowed[ext]; !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, InputFile{
			Path:     filepath.Join(dir, entry.Name()),
			Type:     kind,
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	return files, nil
}
