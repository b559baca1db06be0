package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Fold normalizes s to NFKC and canonical widths, so "ＡＩ活用" and "AI活用"
// compare equal while katakana stays full-width.
func Fold(s string) string {
	return width.Fold.String(norm.NFKC.String(s))
}

// SafeTitle keeps letters, digits, spaces, hyphens and underscores, joins
// words with hyphens, lower-cases the result and caps it at limit runes.
// Japanese letters are preserved.
func SafeTitle(title string, limit int) string {
	var b strings.Builder
	for _, r := range Fold(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	safe := strings.TrimRightFunc(b.String(), unicode.IsSpace)
	safe = strings.ToLower(strings.ReplaceAll(safe, " ", "-"))
	if limit > 0 {
		safe = Truncate(safe, limit, "")
	}
	return safe
}

// Slug produces a URL path segment: runs of anything other than letters and
// digits collapse to one hyphen, leading and trailing hyphens are dropped.
// An empty result becomes fallback.
func Slug(title string, limit int, fallback string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(Fold(title)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	slug := b.String()
	if limit > 0 {
		slug = strings.TrimRight(Truncate(slug, limit, ""), "-")
	}
	if slug == "" {
		return fallback
	}
	return slug
}
