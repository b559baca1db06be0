package logs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoLogs reports an empty log directory.
var ErrNoLogs = errors.New("no run logs found")

const runLogGlob = "gardenpipe-*.log"

// Latest returns the most recently modified run log in dir.
func Latest(dir string) (string, error) {
	paths, err := List(dir)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", ErrNoLogs
	}
	return paths[0], nil
}

// List returns the plain-text run logs in dir, newest first. Archived .gz
// logs are not included.
func List(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, runLogGlob))
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	type stamped struct {
		path    string
		modUnix int64
	}
	found := make([]stamped, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		found = append(found, stamped{path: path, modUnix: info.ModTime().UnixNano()})
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].modUnix == found[j].modUnix {
			return found[i].path > found[j].path
		}
		return found[i].modUnix > found[j].modUnix
	})
	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}

// ForSession finds the run log whose entries carry sessionID. Logs are
// searched newest first and only their first entry is inspected.
func ForSession(dir, sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Latest(dir)
	}
	paths, err := List(dir)
	if err != nil {
		return "", err
	}
	for _, path := range paths {
		entry, ok, err := firstEntry(path)
		if err != nil || !ok {
			continue
		}
		if entry.SessionID == sessionID {
			return path, nil
		}
	}
	return "", fmt.Errorf("no run log for session %s: %w", sessionID, ErrNoLogs)
}
