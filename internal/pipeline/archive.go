package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
)

// archiveInputs moves files into processedDir/sessionID. Per-file failures
// are reported through onError and do not stop the remaining moves.
func archiveInputs(processedDir, sessionID string, files []InputFile, onError func(path string, err error)) (int, error) {
	sessionDir := filepath.Join(processedDir, sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return 0, fmt.Errorf("create archive dir: %w", err)
	}
	moved := 0
	for _, f := range files {
		dest := filepath.Join(sessionDir, filepath.Base(f.Path))
		if err := os.Rename(f.Path, dest); err != nil {
			if onError != nil {
				onError(f.Path, err)
			}
			continue
		}
		moved++
	}
	return moved, nil
}
