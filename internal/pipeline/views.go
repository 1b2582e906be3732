package pipeline

import (
	"encoding/json"
	"time"

	"darkroom/internal/store"
)

// VersionView is the wire form of a file version.
type VersionView struct {
	ID          string          `json:"id"`
	AssetID     string          `json:"asset_id"`
	Tier        store.Tier      `json:"tier"`
	Path        string          `json:"path"`
	ContentHash string          `json:"content_hash"`
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	Size        int64           `json:"size"`
	MimeType    string          `json:"mime_type"`
	Reviewed    bool            `json:"reviewed"`
	Rating      int             `json:"rating"`
	Keywords    []string        `json:"keywords,omitempty"`
	Active      bool            `json:"active"`
	CreatedAt   string          `json:"created_at"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// ViewVersion converts v for JSON output. A nil version yields nil.
func ViewVersion(v *store.FileVersion) *VersionView {
	if v == nil {
		return nil
	}
	view := &VersionView{
		ID:          v.ID,
		AssetID:     v.AssetID,
		Tier:        v.Tier,
		Path:        v.Path,
		ContentHash: v.ContentHash,
		Width:       v.Width,
		Height:      v.Height,
		Size:        v.Size,
		MimeType:    v.MimeType,
		Reviewed:    v.IsReviewed,
		Rating:      v.Rating,
		Keywords:    v.Keywords,
		Active:      v.Active,
		CreatedAt:   v.CreatedAt.UTC().Format(time.RFC3339),
	}
	if len(v.Metadata) > 0 && json.Valid(v.Metadata) {
		view.Metadata = v.Metadata
	}
	return view
}

// HistoryView is the wire form of one audit entry. Details stay raw JSON.
type HistoryView struct {
	ID        int64           `json:"id"`
	AssetID   string          `json:"asset_id"`
	Action    store.Action    `json:"action"`
	Details   json.RawMessage `json:"details,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// ViewHistory converts entries for JSON output, oldest first as stored.
func ViewHistory(entries []store.HistoryEntry) []HistoryView {
	out := make([]HistoryView, 0, len(entries))
	for _, e := range entries {
		view := HistoryView{
			ID:        e.ID,
			AssetID:   e.AssetID,
			Action:    e.Action,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		}
		if e.Details != "" {
			if json.Valid([]byte(e.Details)) {
				view.Details = json.RawMessage(e.Details)
			} else {
				quoted, _ := json.Marshal(e.Details)
				view.Details = quoted
			}
		}
		out = append(out, view)
	}
	return out
}
