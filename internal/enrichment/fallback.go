package enrichment

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"

	"github.com/EdlinOrg/prominentcolor"
	_ "golang.org/x/image/webp"

	"darkroom/internal/textutil"
)

type namedColor struct {
	name    string
	r, g, b float64
}

var palette = []namedColor{
	{"red", 200, 40, 40},
	{"orange", 230, 140, 40},
	{"yellow", 230, 210, 60},
	{"green", 60, 150, 70},
	{"teal", 40, 140, 140},
	{"blue", 50, 90, 200},
	{"purple", 130, 60, 170},
	{"pink", 230, 140, 180},
	{"brown", 120, 80, 50},
	{"black", 20, 20, 20},
	{"white", 240, 240, 240},
	{"gray", 128, 128, 128},
}

// metadataOnly builds a result from what is already known about the file. It
// never calls a provider.
func metadataOnly(req Request, data []byte, maxTags int) Result {
	tags := []string{"photo", "image"}
	short := "Digital photograph"
	long := "A photograph preserving a meaningful moment."
	tagConfidence, descConfidence := 0.4, 0.3

	lower := strings.ToLower(req.Filename)
	switch {
	case len(req.People) > 0:
		tags = append(tags, "people")
		short = peopleDescription(req.People)
		long = "A moment captured with " + strings.Join(req.People, ", ") + "."
		tagConfidence, descConfidence = 0.7, 0.8
	case strings.Contains(lower, "portrait"):
		tags = append(tags, "portrait", "person")
		short = "Portrait photograph"
	case strings.Contains(lower, "landscape"):
		tags = append(tags, "landscape", "outdoor", "nature")
		short = "Landscape photograph"
	case strings.Contains(lower, "food"):
		tags = append(tags, "food", "cuisine")
		short = "Food photograph"
	}

	if color := dominantColor(data); color != "" {
		tags = append(tags, color)
	}
	tags = append(tags, req.Metadata.Keywords...)
	tags = append(tags, textutil.FilenameKeywords(req.Filename)...)

	if desc := strings.TrimSpace(req.Metadata.Description); desc != "" {
		short = truncateRunes(desc, 100)
		long = desc
		descConfidence = 0.6
	}

	if maxTags <= 0 || maxTags > 8 {
		maxTags = 8
	}
	r := Result{
		SchemaVersion:    SchemaVersion,
		Tags:             textutil.NormalizeTags(tags, maxTags),
		ShortDescription: short,
		LongDescription:  long,
		People:           append([]string(nil), req.People...),
		Confidence: map[string]float64{
			"tags":        tagConfidence,
			"description": descConfidence,
			"objects":     0,
			"faces":       0,
			"place":       0,
		},
	}
	if gps := req.Metadata.GPS; gps != nil && gps.Lat != nil && gps.Lon != nil {
		r.GPS = &GPS{Lat: *gps.Lat, Lon: *gps.Lon}
	}
	return r
}

func peopleDescription(people []string) string {
	switch len(people) {
	case 1:
		return "A moment with " + people[0]
	case 2:
		return people[0] + " and " + people[1] + " together"
	case 3:
		return "Time together with " + strings.Join(people, ", ")
	default:
		return fmt.Sprintf("Time together with %s and %d others", strings.Join(people[:2], ", "), len(people)-2)
	}
}

// dominantColor returns the palette name nearest to the most prominent
// colour, or "" when the image cannot be decoded.
func dominantColor(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	colors, err := prominentcolor.KmeansWithArgs(prominentcolor.ArgumentNoCropping, img)
	if err != nil || len(colors) == 0 {
		return ""
	}
	c := colors[0].Color
	return nearestColorName(float64(c.R), float64(c.G), float64(c.B))
}

func nearestColorName(r, g, b float64) string {
	best := ""
	bestDist := math.MaxFloat64
	for _, p := range palette {
		d := (r-p.r)*(r-p.r) + (g-p.g)*(g-p.g) + (b-p.b)*(b-p.b)
		if d < bestDist {
			best, bestDist = p.name, d
		}
	}
	return best
}
