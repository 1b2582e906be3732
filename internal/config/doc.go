// Package config loads, normalizes, and validates darkroom configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY, GOOGLE_APPLICATION_CREDENTIALS and REDIS_URL. The Config type
// centralizes every knob the daemon and CLI need, so the tier directories,
// classification thresholds and provider credentials are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
