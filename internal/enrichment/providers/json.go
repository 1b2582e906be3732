package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// decodeModelJSON decodes JSON produced by a language model, tolerating code
// fences and prose around the object.
func decodeModelJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}
	sanitized := sanitizeJSONPayload(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return fmt.Errorf("%w (payload snippet: %s)", directErr, summarizePayloadSnippet(trimmed))
	}
	if err := json.Unmarshal([]byte(sanitized), target); err != nil {
		return fmt.Errorf("%w (sanitized payload snippet: %s)", err, summarizePayloadSnippet(sanitized))
	}
	return nil
}

func sanitizeJSONPayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFenceBlock(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFenceBlock(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func summarizePayloadSnippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}

// modelAnalysis is the JSON shape the prompt asks language models to produce.
type modelAnalysis struct {
	Tags             []string           `json:"tags"`
	ShortDescription string             `json:"short_description"`
	LongDescription  string             `json:"long_description"`
	Objects          []DetectedObject   `json:"objects"`
	Faces            []DetectedFace     `json:"faces"`
	Events           []string           `json:"events"`
	PlaceName        string             `json:"place_name"`
	Confidence       map[string]float64 `json:"confidence"`
}

// parseModelAnalysis decodes model output. Fields the prompt does not ask for
// are kept verbatim in Extra.
func parseModelAnalysis(provider, content string) (RawAnalysis, error) {
	var parsed modelAnalysis
	if err := decodeModelJSON(content, &parsed); err != nil {
		return RawAnalysis{}, terminal(provider, fmt.Errorf("parse model output: %w", err))
	}
	out := RawAnalysis{
		Tags:             parsed.Tags,
		ShortDescription: strings.TrimSpace(parsed.ShortDescription),
		LongDescription:  strings.TrimSpace(parsed.LongDescription),
		Objects:          parsed.Objects,
		Faces:            parsed.Faces,
		Events:           parsed.Events,
		PlaceName:        strings.TrimSpace(parsed.PlaceName),
		Confidence:       parsed.Confidence,
	}

	var all map[string]json.RawMessage
	if err := decodeModelJSON(content, &all); err == nil {
		for _, known := range []string{"tags", "short_description", "long_description", "objects", "faces", "events", "place_name", "confidence"} {
			delete(all, known)
		}
		if len(all) > 0 {
			if extra, err := json.Marshal(all); err == nil {
				out.Extra = extra
			}
		}
	}
	return out, nil
}
