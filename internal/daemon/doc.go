// Package daemon runs the long-lived darkroom process.
//
// It holds a flock-based instance lock, schedules dropzone scans, and serves
// the HTTP API over a shared pipeline.Service. Tier transitions and
// enrichment live in their own packages; the daemon only owns startup,
// shutdown, and request routing.
package daemon
