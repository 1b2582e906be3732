// Package notifications pushes dropzone scan summaries and pipeline alerts
// to ntfy.
//
// With no topic configured NewService returns a no-op implementation, so
// callers never need to check whether notifications are enabled.
package notifications
