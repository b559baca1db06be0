// Package services defines shared utilities consumed by the pipeline stages
// and the hosted-API integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, input paths, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and the MalformedResponse
//     type returned whenever a model payload fails strict decoding.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
