package burst

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// maxFrameGap bounds how far apart two frame counters may be and still count
// as one sequence.
const maxFrameGap = 10

var (
	sharedPrefixPattern = regexp.MustCompile(`(?i)^(\d{8}_\d{6})_([a-f0-9]{8})$`)

	counterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(.+_burst)(\d+)$`),
		regexp.MustCompile(`^(.+)-(\d+)$`),
		regexp.MustCompile(`^(.+_)(\d+)$`),
		regexp.MustCompile(`^(.+?)(\d+)$`),
	}

	brandMarkers = []struct {
		name    string
		pattern *regexp.Regexp
	}{
		{"iphone_burst", regexp.MustCompile(`(?i)IMG_\d{4}_BURST\d{3}`)},
		{"sony_burst", regexp.MustCompile(`(?i)DSC\d+_BURST`)},
		{"panasonic_burst", regexp.MustCompile(`(?i)P\d{7}_BURST`)},
		{"hdr", regexp.MustCompile(`(?i)_HDR\d*`)},
		{"bracket", regexp.MustCompile(`(?i)_BRACKET\d*`)},
		{"panorama", regexp.MustCompile(`(?i)PANO_\d+_\d+`)},
	}
)

// sequencePattern reports whether two filenames look like consecutive frames
// of one capture sequence. The returned string names the matching rule.
func sequencePattern(nameA, nameB string) (string, bool) {
	stemA, stemB := stem(nameA), stem(nameB)
	if stemA == "" || stemB == "" || stemA == stemB {
		return "", false
	}

	if a, b := sharedPrefixPattern.FindStringSubmatch(stemA), sharedPrefixPattern.FindStringSubmatch(stemB); a != nil && b != nil {
		if a[1] == b[1] && a[2] != b[2] {
			return "shared_timestamp_prefix", true
		}
	}

	baseA, seqA, okA := frameCounter(stemA)
	baseB, seqB, okB := frameCounter(stemB)
	if okA && okB && baseA == baseB {
		gap := seqA - seqB
		if gap < 0 {
			gap = -gap
		}
		if gap >= 1 && gap <= maxFrameGap {
			return "frame_counter", true
		}
	}

	for _, marker := range brandMarkers {
		if marker.pattern.MatchString(nameA) && marker.pattern.MatchString(nameB) {
			return marker.name, true
		}
	}
	return "", false
}

func frameCounter(stem string) (string, int, bool) {
	for _, pattern := range counterPatterns {
		match := pattern.FindStringSubmatch(stem)
		if match == nil {
			continue
		}
		n, err := strconv.Atoi(match[2])
		if err != nil {
			continue
		}
		return match[1], n, true
	}
	return "", 0, false
}

func stem(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}
