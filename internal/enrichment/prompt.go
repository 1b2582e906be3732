package enrichment

import (
	"fmt"
	"strings"
)

// PromptVersion identifies the prompt text below. Changing the prompt means
// bumping this value, which invalidates every cached result.
const PromptVersion = "v3"

const analysisPrompt = `Analyze this photo and return a single JSON object with this structure:
{
  "tags": ["tag1", "tag2"],
  "short_description": "Brief description under 100 characters",
  "long_description": "Warm, natural description suitable for a family album (200-500 characters)",
  "objects": [{"label": "dog", "confidence": 0.95, "box": {"x": 0.1, "y": 0.2, "w": 0.3, "h": 0.4}}],
  "faces": [{"box": {"x": 0.4, "y": 0.1, "w": 0.1, "h": 0.15}, "confidence": 0.9, "expression": "joy"}],
  "events": ["birthday"],
  "place_name": "Location if clearly identifiable, otherwise empty",
  "confidence": {"tags": 0.9, "description": 0.85, "objects": 0.8, "faces": 0.7, "events": 0.6, "place": 0.7}
}

Rules:
- Provide up to %d tags describing content, mood and setting
- Describe the photo as a memory, not a technical analysis
- Boxes use coordinates relative to the image size, between 0 and 1
- Only include objects and faces you are confident about (above 0.7)
- Only set place_name when a specific location is clearly identifiable
- Return only valid JSON with no additional text`

// BuildPrompt renders the analysis prompt with any context known about the
// photo.
func BuildPrompt(req Request, maxTags int) string {
	if maxTags <= 0 {
		maxTags = 8
	}
	var b strings.Builder
	fmt.Fprintf(&b, analysisPrompt, maxTags)

	var context []string
	if md := req.Metadata; md.CapturedAt != nil {
		context = append(context, "Captured: "+md.CapturedAt.Format("2 January 2006"))
	}
	if desc := strings.TrimSpace(req.Metadata.Description); desc != "" {
		context = append(context, "Existing caption: "+desc)
	}
	if len(req.People) > 0 {
		context = append(context, "Known people in this photo: "+strings.Join(req.People, ", "))
	}
	if len(context) > 0 {
		b.WriteString("\n\nContext:\n- ")
		b.WriteString(strings.Join(context, "\n- "))
	}
	return b.String()
}
