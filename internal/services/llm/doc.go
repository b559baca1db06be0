// Package llm provides an Anthropic Messages client used for classification,
// structured content generation, diagram generation, claim extraction, and
// commit messages.
//
// Client.Complete sends one system prompt and one user message and returns
// the concatenated text blocks. Decoding model output is left to callers,
// which run it through internal/structured so malformed payloads surface as
// services.MalformedResponse instead of silently defaulting.
//
// Requests are retried through retry.Policy on HTTP 408/429/5xx (including
// 529 overloaded), network timeouts, and empty content. Context cancellation
// aborts retries immediately.
package llm
