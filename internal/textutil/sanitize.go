package textutil

import "strings"

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

// Truncate shortens s to at most limit runes, appending suffix when cut.
func Truncate(s string, limit int, suffix string) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + suffix
}

// FirstSentence returns the text up to and including the first sentence
// terminator (。.!?！？), or the whole trimmed text when none is present.
func FirstSentence(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, "。.!?！？\n"); idx >= 0 {
		r := []rune(s[idx:])[0]
		if r == '\n' {
			return strings.TrimSpace(s[:idx])
		}
		return strings.TrimSpace(s[:idx+len(string(r))])
	}
	return s
}
