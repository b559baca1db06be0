// Package retry provides the single retry policy applied to every outbound
// call the pipeline makes: the Anthropic, Perplexity, and Imagen clients as
// well as ntfy notifications.
//
// A Policy bounds the number of attempts and computes exponential delays with
// jitter via cenkalti/backoff. Errors are retried only when the policy's
// classifier accepts them; by default that means HTTP 408/429/5xx, network
// timeouts, and errors wrapped with MarkRetryable. A Retry-After hint carried
// by the error overrides the computed delay, capped at MaxDelay.
package retry
