// Package textutil provides rune-aware text helpers: truncation, slugs for
// Japanese and full-width titles, and filename sanitization.
package textutil
