package textutil

import "testing"

func TestSafeTitle(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"AI活用の新しい視点!", 50, "ai活用の新しい視点"},
		{"Hello World: Go Tips ", 50, "hello-world-go-tips"},
		{"ＡＩ　ツール", 50, "ai-ツール"},
		{"abcdefghij", 4, "abcd"},
	}
	for _, tc := range tests {
		if got := SafeTitle(tc.in, tc.limit); got != tc.want {
			t.Errorf("SafeTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Go 1.26 -- Release Notes", "go-1-26-release-notes"},
		{"  AI活用：ＬＬＭの使い方  ", "ai活用-llmの使い方"},
		{"!!!", "untitled"},
	}
	for _, tc := range tests {
		if got := Slug(tc.in, 60, "untitled"); got != tc.want {
			t.Errorf("Slug(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if got := Slug("abc def ghi", 4, "x"); got != "abc" {
		t.Errorf("expected trailing hyphen trimmed, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("日本語テキスト", 3, "..."); got != "日本語..." {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := Truncate("short", 10, "..."); got != "short" {
		t.Fatalf("unexpected passthrough %q", got)
	}
}

func TestFirstSentence(t *testing.T) {
	if got := FirstSentence("市場は拡大している。次の文。"); got != "市場は拡大している。" {
		t.Fatalf("unexpected sentence %q", got)
	}
	if got := FirstSentence("no terminator"); got != "no terminator" {
		t.Fatalf("unexpected sentence %q", got)
	}
	if got := FirstSentence("line one\nline two"); got != "line one" {
		t.Fatalf("unexpected sentence %q", got)
	}
}

func TestSanitizeFileName(t *testing.T) {
	if got := SanitizeFileName(` a/b:c?"d" `); got != "a-b-cd" {
		t.Fatalf("unexpected sanitized name %q", got)
	}
}
