// Package metadata reads and writes the descriptive metadata of media files.
//
// Extraction pulls EXIF (via the dsoprea structure parsers with a brute-force
// fallback), XMP packets (embedded or sidecar) and JPEG IPTC records into a
// Record, resolving the capture time through a fixed priority list. It never
// fails: unreadable fields stay nil and are reported as warnings.
//
// Embedding writes the curated state of a Gold asset back into the file as an
// XMP packet (JPEG APP1) or an adjacent .xmp sidecar. The packet carries a
// JSON payload complete enough for Seeder to rebuild the catalog from the
// Gold tier alone.
package metadata
