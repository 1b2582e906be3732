// Package store persists the media catalog in SQLite.
//
// Three tables carry the domain: media_assets (one row per unique photo),
// file_versions (one row per tier entry, never rewritten by promotion) and
// asset_history (append-only audit trail). person_relationships holds the
// unordered person graph fed by face detection.
//
// Every state transition goes through WithTx so that the FileVersion change and
// its history row commit together. Writes retry on SQLITE_BUSY with a short
// exponential backoff.
package store
