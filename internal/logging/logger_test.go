package logging

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gardenpipe/internal/services"
)

func TestConsoleHeaderIncludesComponentAndSubject(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "console", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithStage(services.WithItem(context.Background(), "/in/audio/memo.mp3"), "transcription")
	log := WithContext(ctx, NewComponentLogger(logger, "pipeline"))
	log.Info("stage started", String(FieldEventType, "stage_start"), String("session_id", "abc"))

	out := buf.String()
	if !strings.Contains(out, "INFO [pipeline] memo.mp3 (transcription) – stage started") {
		t.Fatalf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "- Event: stage_start") {
		t.Fatalf("expected event field: %q", out)
	}
	if strings.Contains(out, "abc") {
		t.Fatalf("session id should be hidden at info: %q", out)
	}
	if !strings.Contains(out, "+ 1 more field hidden") {
		t.Fatalf("expected hidden count: %q", out)
	}
}

func TestConsoleDebugShowsAllFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: "console", Console: &buf})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("prompt built", Int("prompt_chars", 1200))
	if !strings.Contains(buf.String(), "prompt_chars: 1200") {
		t.Fatalf("expected debug field: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "logger_test.go:") {
		t.Fatalf("expected source location at debug: %q", buf.String())
	}
}

func TestRunLogFileIsJSONWithSession(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log")
	logger, err := New(Options{Level: "info", Format: "console", FilePath: path, SessionID: "sess-1"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Warn("thumbnail skipped", Error(errors.New("quota")))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatalf("invalid json %q: %v", data, err)
	}
	if record["session_id"] != "sess-1" || record["level"] != "warn" || record["msg"] != "thumbnail skipped" {
		t.Fatalf("unexpected record %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key in %v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml", Console: io.Discard}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestFanoutRespectsHandlerLevels(t *testing.T) {
	var infoBuf, warnBuf bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		nil,
		slog.NewJSONHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	slog.New(h).With("key", "value").Info("hello")
	if !strings.Contains(infoBuf.String(), `"key":"value"`) {
		t.Fatalf("expected attrs in info handler: %q", infoBuf.String())
	}
	if warnBuf.Len() != 0 {
		t.Fatalf("warn handler should be silent, got %q", warnBuf.String())
	}
	if _, ok := newFanoutHandler(nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when no handlers remain")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	WarnWithContext(logger, "research degraded", "research_degraded", String(FieldImpact, "no sources"))
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatal(err)
	}
	if record[FieldEventType] != "research_degraded" || record[FieldImpact] != "no sources" || record[FieldErrorHint] == nil {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestCleanupAndArchiveLogs(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-72 * time.Hour)
	write := func(name string, mod time.Time) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("line\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatal(err)
		}
		return path
	}
	stale := write("gardenpipe-1.log", old)
	fresh := write("gardenpipe-2.log", time.Now())
	write("notes.txt", old)

	archived, err := ArchiveLogs(nil, 24*time.Hour, RetentionTarget{Dir: dir, Pattern: "gardenpipe-*.log"})
	if err != nil || archived != 1 {
		t.Fatalf("ArchiveLogs = %d, %v", archived, err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("expected stale log to be replaced by archive")
	}
	f, err := os.Open(stale + ".gz")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	content, _ := io.ReadAll(zr)
	if string(content) != "line\n" {
		t.Fatalf("unexpected archive content %q", content)
	}

	removed := CleanupOldLogs(nil, 2, RetentionTarget{Dir: dir, Pattern: "gardenpipe-*", Exclude: []string{fresh}})
	if removed != 1 {
		t.Fatalf("expected archived log to be pruned, removed %d", removed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatal("fresh log should remain")
	}
}
