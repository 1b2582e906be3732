// Package pipeline is the operation surface shared by the CLI and the daemon
// HTTP API. A Service wires the catalog store, the tier state machine, the
// enrichment orchestrator, archive storage and the optional face detector
// from one Config, and adds bounded-concurrency batch variants of the tier
// operations.
package pipeline
