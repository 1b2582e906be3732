package metadata

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var exifTimeLayouts = []string{
	"2006:01:02 15:04:05",
	"2006:01:02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04",
	"2006-01-02",
	"20060102",
}

var (
	// 20240501_101112, IMG_20240501_101112, PXL_20240501_101112345
	compactStampPattern = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)\d{2})(\d{2})(\d{2})[_-](\d{2})(\d{2})(\d{2})`)
	// 2024-05-01 10.11.12
	dashedStampPattern = regexp.MustCompile(`((?:19|20)\d{2})-(\d{2})-(\d{2})[ _T](\d{2})[.\-:](\d{2})[.\-:](\d{2})`)
)

// parseMetadataTime parses EXIF and XMP date strings. Values carrying a zone
// keep it; naive values are interpreted in the supplied offset ("+02:00")
// or UTC when none is known.
func parseMetadataTime(value, offset string) (time.Time, bool) {
	value = strings.TrimSpace(strings.ReplaceAll(value, "\x00", ""))
	if value == "" || strings.HasPrefix(value, "0000") {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02T15:04:05-07:00", value); err == nil {
		return t, true
	}
	loc := zoneFromOffset(offset)
	for _, layout := range exifTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func zoneFromOffset(offset string) *time.Location {
	offset = strings.TrimSpace(offset)
	if offset == "" {
		return time.UTC
	}
	t, err := time.Parse("-07:00", offset)
	if err != nil {
		return time.UTC
	}
	_, secs := t.Zone()
	return time.FixedZone(offset, secs)
}

// timeFromFilename recognizes camera and phone naming conventions that embed
// the capture time.
func timeFromFilename(name string) (time.Time, bool) {
	for _, pattern := range []*regexp.Regexp{compactStampPattern, dashedStampPattern} {
		m := pattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		parts := make([]int, 6)
		for i := range parts {
			v, err := strconv.Atoi(m[i+1])
			if err != nil {
				return time.Time{}, false
			}
			parts[i] = v
		}
		t := time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], 0, time.UTC)
		// time.Date normalizes overflow (month 13), so reject anything that moved.
		if t.Year() != parts[0] || int(t.Month()) != parts[1] || t.Day() != parts[2] ||
			t.Hour() != parts[3] || t.Minute() != parts[4] || t.Second() != parts[5] {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

type timeSources struct {
	exif      exifTimes
	xmpCreate string
	iptcDate  string
	filename  string
	modTime   time.Time
}

// resolveCapturedAt walks the capture time priority list and reports which
// source won. Unparseable values in higher tiers are reported through warn.
func resolveCapturedAt(src timeSources, warn fieldWarner) (*time.Time, string) {
	try := func(field, value string) (*time.Time, bool) {
		if strings.TrimSpace(value) == "" {
			return nil, false
		}
		t, ok := parseMetadataTime(value, src.exif.offset)
		if !ok {
			warn(field, value, errUnparseableTime)
			return nil, false
		}
		return &t, true
	}
	if t, ok := try("DateTimeOriginal", src.exif.original); ok {
		return t, SourceExifOriginal
	}
	if t, ok := try("DateTimeDigitized", src.exif.digitized); ok {
		return t, SourceExifDigitized
	}
	if t, ok := try("DateTime", src.exif.generic); ok {
		return t, SourceFileMetadata
	}
	if t, ok := try("xmp:CreateDate", src.xmpCreate); ok {
		return t, SourceFileMetadata
	}
	if t, ok := try("iptc:DateCreated", src.iptcDate); ok {
		return t, SourceFileMetadata
	}
	if t, ok := timeFromFilename(src.filename); ok {
		return &t, SourceFilename
	}
	if !src.modTime.IsZero() {
		t := src.modTime.UTC()
		return &t, SourceFilesystem
	}
	return nil, ""
}
