package enrichment

import (
	"encoding/json"
	"fmt"
	"strings"

	"darkroom/internal/enrichment/providers"
	"darkroom/internal/textutil"
)

// SchemaVersion is the current Result layout.
const SchemaVersion = 1

// GPS is a position suggested by a provider.
type GPS struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Result is the enrichment stored on a Silver version. Fields unknown to this
// schema are preserved in Extra.
type Result struct {
	SchemaVersion    int                        `json:"schema_version"`
	Tags             []string                   `json:"tags,omitempty"`
	ShortDescription string                     `json:"short_description,omitempty"`
	LongDescription  string                     `json:"long_description,omitempty"`
	Objects          []providers.DetectedObject `json:"objects,omitempty"`
	Faces            []providers.DetectedFace   `json:"faces,omitempty"`
	Events           []string                   `json:"events,omitempty"`
	PlaceName        string                     `json:"place_name,omitempty"`
	GPS              *GPS                       `json:"gps,omitempty"`
	Confidence       map[string]float64         `json:"confidence,omitempty"`
	People           []string                   `json:"people,omitempty"`
	Extra            json.RawMessage            `json:"extra,omitempty"`
}

var knownResultFields = []string{
	"schema_version", "tags", "short_description", "long_description", "objects",
	"faces", "events", "place_name", "gps", "confidence", "people", "extra",
}

// Validate checks a result at the package boundary.
func (r Result) Validate() error {
	if r.SchemaVersion != SchemaVersion {
		return fmt.Errorf("enrichment result: unknown schema version %d", r.SchemaVersion)
	}
	for i, tag := range r.Tags {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("enrichment result: tag %d is empty", i)
		}
	}
	for key, v := range r.Confidence {
		if v < 0 || v > 1 {
			return fmt.Errorf("enrichment result: confidence %q out of range: %v", key, v)
		}
	}
	for i, obj := range r.Objects {
		if strings.TrimSpace(obj.Label) == "" {
			return fmt.Errorf("enrichment result: object %d has no label", i)
		}
		if obj.Box != nil && !boxValid(*obj.Box) {
			return fmt.Errorf("enrichment result: object %q box out of range", obj.Label)
		}
	}
	for i, face := range r.Faces {
		if !boxValid(face.Box) {
			return fmt.Errorf("enrichment result: face %d box out of range", i)
		}
	}
	if r.GPS != nil && (r.GPS.Lat < -90 || r.GPS.Lat > 90 || r.GPS.Lon < -180 || r.GPS.Lon > 180) {
		return fmt.Errorf("enrichment result: gps out of range")
	}
	return nil
}

func boxValid(b providers.Box) bool {
	in := func(v float64) bool { return v >= 0 && v <= 1 }
	return in(b.X) && in(b.Y) && in(b.W) && in(b.H) && b.X+b.W <= 1.0001 && b.Y+b.H <= 1.0001
}

// Encode serializes the result for storage.
func (r Result) Encode() (json.RawMessage, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// DecodeResult parses and validates a stored result. Unknown top-level fields
// are folded into Extra.
func DecodeResult(raw json.RawMessage) (Result, error) {
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return Result{}, fmt.Errorf("decode enrichment result: %w", err)
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err == nil {
		for _, key := range knownResultFields {
			delete(all, key)
		}
		if len(all) > 0 {
			extra := map[string]json.RawMessage{}
			if len(r.Extra) > 0 {
				_ = json.Unmarshal(r.Extra, &extra)
			}
			for k, v := range all {
				extra[k] = v
			}
			if merged, err := json.Marshal(extra); err == nil {
				r.Extra = merged
			}
		}
	}
	if err := r.Validate(); err != nil {
		return Result{}, err
	}
	return r, nil
}

// fromAnalysis normalizes a provider response into a Result.
func fromAnalysis(raw providers.RawAnalysis, maxTags int, people []string) Result {
	r := Result{
		SchemaVersion:    SchemaVersion,
		Tags:             textutil.NormalizeTags(raw.Tags, maxTags),
		ShortDescription: truncateRunes(strings.TrimSpace(raw.ShortDescription), 100),
		LongDescription:  strings.TrimSpace(raw.LongDescription),
		Events:           textutil.NormalizeTags(raw.Events, 0),
		PlaceName:        textutil.TitleCase(raw.PlaceName),
		People:           append([]string(nil), people...),
		Extra:            raw.Extra,
	}
	for _, obj := range raw.Objects {
		obj.Label = strings.TrimSpace(obj.Label)
		if obj.Label == "" {
			continue
		}
		obj.Confidence = clamp01(obj.Confidence)
		if obj.Box != nil {
			b := clampBox(*obj.Box)
			obj.Box = &b
		}
		r.Objects = append(r.Objects, obj)
	}
	for _, face := range raw.Faces {
		face.Box = clampBox(face.Box)
		face.Confidence = clamp01(face.Confidence)
		if face.Box.W == 0 || face.Box.H == 0 {
			continue
		}
		r.Faces = append(r.Faces, face)
	}
	if raw.Latitude != nil && raw.Longitude != nil {
		r.GPS = &GPS{Lat: *raw.Latitude, Lon: *raw.Longitude}
		if r.GPS.Lat < -90 || r.GPS.Lat > 90 || r.GPS.Lon < -180 || r.GPS.Lon > 180 {
			r.GPS = nil
		}
	}
	if len(raw.Confidence) > 0 {
		r.Confidence = make(map[string]float64, len(raw.Confidence))
		for k, v := range raw.Confidence {
			r.Confidence[k] = clamp01(v)
		}
	}
	return r
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func clampBox(b providers.Box) providers.Box {
	b.X, b.Y = clamp01(b.X), clamp01(b.Y)
	b.W = clamp01(b.W)
	b.H = clamp01(b.H)
	if b.X+b.W > 1 {
		b.W = 1 - b.X
	}
	if b.Y+b.H > 1 {
		b.H = 1 - b.Y
	}
	return b
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
