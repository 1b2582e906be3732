package metadata

import (
	"encoding/json"
	"time"
)

// Capture time sources, in priority order.
const (
	SourceExifOriginal  = "exif_original"
	SourceExifDigitized = "exif_digitized"
	SourceFileMetadata  = "file_metadata"
	SourceFilename      = "filename"
	SourceFilesystem    = "filesystem"
)

// GPS is a decoded position. Altitude is metres above sea level.
type GPS struct {
	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`
	Alt *float64 `json:"alt,omitempty"`
}

// Record is the normalized metadata of one file. Pointer fields are nil when
// the source did not carry a usable value.
type Record struct {
	CameraMake       string     `json:"camera_make,omitempty"`
	CameraModel      string     `json:"camera_model,omitempty"`
	Lens             string     `json:"lens,omitempty"`
	ExposureTime     string     `json:"exposure_time,omitempty"`
	FNumber          *float64   `json:"f_number,omitempty"`
	ISO              *int       `json:"iso,omitempty"`
	FocalLength      *float64   `json:"focal_length,omitempty"`
	CapturedAt       *time.Time `json:"captured_at,omitempty"`
	CapturedAtSource string     `json:"captured_at_source,omitempty"`
	GPS              *GPS       `json:"gps,omitempty"`
	Width            int        `json:"width,omitempty"`
	Height           int        `json:"height,omitempty"`
	Orientation      *int       `json:"orientation,omitempty"`
	Description      string     `json:"description,omitempty"`
	Keywords         []string   `json:"keywords,omitempty"`
	Creators         []string   `json:"creators,omitempty"`
	Rating           *int       `json:"rating,omitempty"`
	Warnings         []string   `json:"warnings,omitempty"`
}

// HasExposure reports whether the exposure triple is fully known.
func (r Record) HasExposure() bool {
	return r.ExposureTime != "" && r.FNumber != nil && r.ISO != nil
}

// BurstInfo records the burst/duplicate flags computed at Silver promotion.
type BurstInfo struct {
	GroupID         string   `json:"group_id,omitempty"`
	Representative  bool     `json:"representative,omitempty"`
	Members         []string `json:"members,omitempty"`
	DuplicateOf     []string `json:"duplicate_of,omitempty"`
	NearDuplicateOf []string `json:"near_duplicate_of,omitempty"`
}

// Document is the JSON blob persisted on each FileVersion.
type Document struct {
	Extracted          Record          `json:"extracted"`
	Enrichment         json.RawMessage `json:"enrichment,omitempty"`
	EnrichmentSource   string          `json:"enrichment_source,omitempty"`
	EnrichmentProvider string          `json:"enrichment_provider,omitempty"`
	Burst              *BurstInfo      `json:"burst,omitempty"`
	Description        string          `json:"description,omitempty"`
	People             []string        `json:"people,omitempty"`
	RestoredFrom       string          `json:"restored_from,omitempty"`
}

// DecodeDocument parses a stored blob. An empty blob yields an empty Document.
func DecodeDocument(raw json.RawMessage) (Document, error) {
	var doc Document
	if len(raw) == 0 {
		return doc, nil
	}
	err := json.Unmarshal(raw, &doc)
	return doc, err
}

// Encode serializes the document for storage.
func (d Document) Encode() (json.RawMessage, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
