// Package providers implements the AI vision backends the enrichment
// orchestrator can call.
//
// Each provider performs exactly one request per Analyze call. Failures are
// returned as *Error values carrying a Class so the orchestrator can decide
// between retrying and moving on to the next provider. Retry loops, timeouts
// and rate limits live in the orchestrator.
package providers
