// Package research enriches classified content with web search results.
//
// Queries are derived from the text heuristically, answered through the
// Perplexity client, cached for a configurable TTL, scored for credibility
// and relevance, and consolidated into one ranked result with a lightweight
// claim check. Only rate limits and transport failures are retried; any
// other API error skips that query.
package research
