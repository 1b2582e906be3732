// Package enrichment orchestrates AI analysis of photos.
//
// An Orchestrator walks a Policy of provider steps in order. Each step is
// retried with exponential backoff while its failures are retryable, then
// the next step runs. When every step fails the orchestrator falls back to a
// metadata-only result derived from the filename, embedded metadata and the
// dominant colour, and reports the failure in Outcome.Failure so callers can
// record it without blocking promotion.
//
// Results are cached by content hash, provider, model and prompt version.
// Concurrent requests for the same content hash share one in-flight call.
package enrichment
