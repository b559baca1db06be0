package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes size filler bytes to path, enough for discovery and
// archive tests that never decode the media. size <= 0 writes one byte.
func WriteFile(t testing.TB, path string, size int) {
	t.Helper()
	WriteText(t, path, string(bytes.Repeat([]byte{'B'}, max(size, 1))))
}

// WriteText writes content to path, creating parent directories.
func WriteText(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
