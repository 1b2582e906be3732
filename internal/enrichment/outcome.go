package enrichment

import (
	"time"

	"darkroom/internal/enrichment/providers"
	"darkroom/internal/metadata"
)

// Source names where an Outcome's result came from.
type Source string

const (
	SourceProvider     Source = "provider"
	SourceCache        Source = "cache"
	SourceMetadataOnly Source = "metadata_only"
)

// Request describes one photo to enrich.
type Request struct {
	ContentHash string
	Path        string
	Filename    string
	MimeType    string
	Metadata    metadata.Record
	// People already identified in the photo, used as prompt context.
	People []string
}

// Attempt records one provider call.
type Attempt struct {
	Provider string        `json:"provider"`
	Number   int           `json:"attempt"`
	Class    string        `json:"class"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Outcome is the result of Enrich. Failure is set when every configured
// provider failed and the result is metadata-only.
type Outcome struct {
	Result   Result    `json:"result"`
	Source   Source    `json:"source"`
	Provider string    `json:"provider,omitempty"`
	Model    string    `json:"model,omitempty"`
	Attempts []Attempt `json:"attempts,omitempty"`
	Failure  error     `json:"-"`
}

// Step is one provider in a Policy.
type Step struct {
	Provider    providers.Provider
	MaxAttempts int
}

// Policy lists providers in the order they are tried.
type Policy struct {
	Steps []Step
}

// Names returns the provider names in order.
func (p Policy) Names() []string {
	names := make([]string, 0, len(p.Steps))
	for _, step := range p.Steps {
		if step.Provider != nil {
			names = append(names, step.Provider.Name())
		}
	}
	return names
}
