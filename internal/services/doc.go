// Package services defines shared utilities consumed by the pipeline stages and
// their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp asset IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper, and the typed DecodeError
//     and IntegrityError values, so every layer classifies failures the same way
//     (quarantine, retry, reject synchronously, or surface loudly).
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
