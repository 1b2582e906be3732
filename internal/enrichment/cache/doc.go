// Package cache memoizes enrichment results keyed by content hash, provider,
// model and prompt version.
//
// Two backends are provided: a JSON file guarded by a mutex and written
// atomically, and Redis for setups where several processes share results.
// A Nop store disables caching.
package cache
