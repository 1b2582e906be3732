// Package hasher computes the content identity of media files.
//
// Every file gets a hex SHA-256 of its raw bytes, used for exact dedup, and a
// 64-bit difference hash (dHash) of the decoded image, used for visual
// similarity. Decoding honours EXIF orientation so a rotated copy of the same
// photo hashes the same way. Files that cannot be decoded yield a
// *services.DecodeError so callers can quarantine them.
package hasher
