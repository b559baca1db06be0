// Package perplexity wraps the Perplexity chat completions API used for web
// research and claim verification.
//
// Search returns the answer text together with its citations. Citations may
// arrive as bare URL strings or as objects with title, url, snippet, and
// date; both shapes decode into Citation. Only HTTP 429 and transport
// failures are retried; any other HTTP error is returned as-is so the caller
// can abandon that query alone.
package perplexity
