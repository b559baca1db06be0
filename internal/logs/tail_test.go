package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gardenpipe/internal/logs"
)

func writeLog(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func TestTailLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gardenpipe-20260101-120000.log")
	writeLog(t, path, "a\nb\nc\n")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "b" || result.Lines[1] != "c" {
		t.Fatalf("lines = %#v", result.Lines)
	}
	if result.Offset != 6 {
		t.Fatalf("offset = %d, want 6", result.Offset)
	}
}

func TestTailZeroLimitReturnsEndOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	writeLog(t, path, "one\ntwo\n")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 8 {
		t.Fatalf("result = %+v", result)
	}
}

func TestTailFromOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	writeLog(t, path, "one\ntwo\nthree\n")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 4})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "two" {
		t.Fatalf("lines = %#v", result.Lines)
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "absent.log"), logs.TailOptions{Offset: -1, Limit: 5})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("result = %+v", result)
	}
}

func TestTailFollowWaits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	writeLog(t, path, "start\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		time.Sleep(100 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		_, _ = f.WriteString("next\n")
	}()

	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: 6, Follow: true, Wait: 2 * time.Second})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "next" {
		t.Fatalf("lines = %#v", result.Lines)
	}
}
