package metadata

import (
	"encoding/json"
	"time"

	"darkroom/internal/store"
)

// payloadSchema versions the JSON embedded in Gold files.
const payloadSchema = 1

// HistoryEntry is an audit row carried inside an embedded payload.
type HistoryEntry struct {
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Payload is everything the Gold tier embeds in a file. CreatedAt is the
// catalog ingest time; CapturedAt is when the photo was taken. VersionID and
// PromotedAt identify the Gold version the file was written for, so a file
// left behind by a demotion can be told apart from its replacement.
type Payload struct {
	Schema           int             `json:"schema"`
	AssetID          string          `json:"asset_id"`
	VersionID        string          `json:"version_id,omitempty"`
	PromotedAt       time.Time       `json:"promoted_at"`
	OriginalFilename string          `json:"original_filename"`
	CreatedAt        time.Time       `json:"created_at"`
	CapturedAt       *time.Time      `json:"captured_at,omitempty"`
	CapturedSource   string          `json:"captured_at_source,omitempty"`
	Description      string          `json:"description,omitempty"`
	Keywords         []string        `json:"keywords,omitempty"`
	People           []string        `json:"people,omitempty"`
	Rating           int             `json:"rating"`
	Enrichment       json.RawMessage `json:"enrichment,omitempty"`
	History          []HistoryEntry  `json:"history,omitempty"`
}

// promotedAt is when the payload's Gold version was created. Payloads written
// before PromotedAt existed fall back to their last PROMOTED history entry.
func (p Payload) promotedAt() time.Time {
	if !p.PromotedAt.IsZero() {
		return p.PromotedAt
	}
	var latest time.Time
	for _, entry := range p.History {
		if entry.Action == string(store.ActionPromoted) && entry.Timestamp.After(latest) {
			latest = entry.Timestamp
		}
	}
	return latest
}
