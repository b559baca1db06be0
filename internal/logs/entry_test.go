package logs_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gardenpipe/internal/logs"
)

const sampleLine = `{"ts":"2026-03-01T10:00:00Z","level":"WARN","msg":"research failed","component":"pipeline","session_id":"20260301_100000_abcd1234","stage":"research","item":"talk.m4a","attempt":2}`

func TestParseExtractsStandardFields(t *testing.T) {
	entry := logs.Parse(sampleLine)
	if entry.Level != "warn" || entry.Message != "research failed" {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.Component != "pipeline" || entry.Stage != "research" || entry.Item != "talk.m4a" {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.SessionID != "20260301_100000_abcd1234" {
		t.Fatalf("session = %q", entry.SessionID)
	}
	if entry.Time.IsZero() {
		t.Fatal("expected timestamp")
	}
	if len(entry.Fields) != 1 || entry.Fields["attempt"] != float64(2) {
		t.Fatalf("fields = %#v", entry.Fields)
	}
}

func TestParseKeepsPlainText(t *testing.T) {
	entry := logs.Parse("panic: boom")
	if entry.Raw != "panic: boom" || entry.Level != "" {
		t.Fatalf("entry = %+v", entry)
	}
	if logs.Format(entry) != "panic: boom" {
		t.Fatalf("format = %q", logs.Format(entry))
	}
}

func TestFilterMatch(t *testing.T) {
	entry := logs.Parse(sampleLine)
	cases := []struct {
		name   string
		filter logs.Filter
		want   bool
	}{
		{"empty", logs.Filter{}, true},
		{"level below", logs.Filter{MinLevel: "info"}, true},
		{"level above", logs.Filter{MinLevel: "error"}, false},
		{"component", logs.Filter{Component: "PIPELINE"}, true},
		{"other component", logs.Filter{Component: "gitops"}, false},
		{"stage", logs.Filter{Stage: "classification"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Match(entry); got != tc.want {
				t.Fatalf("Match = %v, want %v", got, tc.want)
			}
		})
	}
	if !(logs.Filter{MinLevel: "error"}).Match(logs.Parse("not json")) {
		t.Fatal("plain lines should always match")
	}
}

func TestFormat(t *testing.T) {
	out := logs.Format(logs.Parse(sampleLine))
	for _, want := range []string{"WARN", "[pipeline]", "research failed", "stage=research", "item=talk.m4a", "attempt=2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("format %q missing %q", out, want)
		}
	}
}

func TestLatestAndForSession(t *testing.T) {
	dir := t.TempDir()
	if _, err := logs.Latest(dir); !errors.Is(err, logs.ErrNoLogs) {
		t.Fatalf("Latest on empty dir = %v", err)
	}

	older := filepath.Join(dir, "gardenpipe-20260301-100000.log")
	newer := filepath.Join(dir, "gardenpipe-20260302-100000.log")
	writeLog(t, older, sampleLine+"\n")
	writeLog(t, newer, `{"ts":"2026-03-02T10:00:00Z","level":"INFO","msg":"start","session_id":"other"}`+"\n")
	writeLog(t, filepath.Join(dir, "gardenpipe-20260201-100000.log.gz"), "x")
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	latest, err := logs.Latest(dir)
	if err != nil || latest != newer {
		t.Fatalf("Latest = %q, %v", latest, err)
	}
	found, err := logs.ForSession(dir, "20260301_100000_abcd1234")
	if err != nil || found != older {
		t.Fatalf("ForSession = %q, %v", found, err)
	}
	if _, err := logs.ForSession(dir, "missing"); !errors.Is(err, logs.ErrNoLogs) {
		t.Fatalf("ForSession missing = %v", err)
	}
}
