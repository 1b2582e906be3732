// Package textutil provides text helpers shared by the naming and enrichment
// code paths.
//
// The primary use cases are:
//   - Sanitizing filenames and path segments for safe filesystem use
//   - Normalizing free-form tags (case folding, whitespace collapse, dedup)
//   - Splitting filenames into descriptive tokens for metadata-only fallbacks
package textutil
