package providers

import (
	"context"
	"encoding/json"
)

// Image is the input handed to a provider.
type Image struct {
	Data     []byte
	MimeType string
	Filename string
	Width    int
	Height   int
}

// Options carries per-request settings.
type Options struct {
	Prompt  string
	MaxTags int
}

// Box is a normalized bounding box; all values are within [0,1].
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// DetectedObject is a labelled region.
type DetectedObject struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        *Box    `json:"box,omitempty"`
}

// DetectedFace is a face region reported by a provider.
type DetectedFace struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
	Expression string  `json:"expression,omitempty"`
}

// RawAnalysis is a provider response before validation.
type RawAnalysis struct {
	Tags             []string           `json:"tags,omitempty"`
	ShortDescription string             `json:"short_description,omitempty"`
	LongDescription  string             `json:"long_description,omitempty"`
	Objects          []DetectedObject   `json:"objects,omitempty"`
	Faces            []DetectedFace     `json:"faces,omitempty"`
	Events           []string           `json:"events,omitempty"`
	PlaceName        string             `json:"place_name,omitempty"`
	Latitude         *float64           `json:"latitude,omitempty"`
	Longitude        *float64           `json:"longitude,omitempty"`
	Confidence       map[string]float64 `json:"confidence,omitempty"`
	People           []string           `json:"people,omitempty"`
	Extra            json.RawMessage    `json:"extra,omitempty"`
}

// Provider is a vision backend.
type Provider interface {
	Name() string
	Model() string
	Analyze(ctx context.Context, img Image, opts Options) (RawAnalysis, error)
}
