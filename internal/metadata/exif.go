package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/dsoprea/go-exif/v3"
	heicexif "github.com/dsoprea/go-heic-exif-extractor"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure"
	pngstructure "github.com/dsoprea/go-png-image-structure"
	tiffstructure "github.com/dsoprea/go-tiff-image-structure"
	riimage "github.com/dsoprea/go-utility/image"
)

type mediaParser interface {
	Parse(rs io.ReadSeeker, size int) (ec riimage.MediaContext, err error)
}

func parserFor(ext string) mediaParser {
	switch ext {
	case ".jpg", ".jpeg":
		return jpegstructure.NewJpegMediaParser()
	case ".png":
		return pngstructure.NewPngMediaParser()
	case ".tif", ".tiff":
		return tiffstructure.NewTiffMediaParser()
	case ".heic", ".heif", ".avif":
		return heicexif.NewHeicExifMediaParser()
	default:
		return nil
	}
}

// parseMedia runs the structure parser for ext. The dsoprea parsers panic on
// some malformed inputs, so panics are converted to errors.
func parseMedia(data []byte, ext string) (mc riimage.MediaContext, err error) {
	parser := parserFor(ext)
	if parser == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			mc = nil
			err = fmt.Errorf("parse %s structure: %v", ext, r)
		}
	}()
	return parser.Parse(bytes.NewReader(data), len(data))
}

// rawTag keeps both renderings go-exif offers: the first value and the whole
// value list (e.g. "[51/1 30/1 1234/100]" for a GPS coordinate).
type rawTag struct {
	First string
	All   string
}

// exifBlock returns the raw EXIF bytes from a parsed media context, falling
// back to a brute-force scan of the whole file.
func exifBlock(mc riimage.MediaContext, data []byte) (block []byte, err error) {
	if mc != nil {
		func() {
			defer func() { _ = recover() }()
			_, block, _ = mc.Exif()
		}()
	}
	if len(block) > 0 {
		return block, nil
	}
	defer func() {
		if r := recover(); r != nil {
			block = nil
			err = fmt.Errorf("search exif: %v", r)
		}
	}()
	block, err = exif.SearchAndExtractExifWithReader(bytes.NewReader(data))
	if errors.Is(err, exif.ErrNoExif) {
		return nil, nil
	}
	return block, err
}

// flattenExif decodes an EXIF block into tag name → value. The first
// occurrence wins so IFD0 values shadow thumbnail IFD duplicates.
func flattenExif(block []byte) (tags map[string]rawTag, err error) {
	defer func() {
		if r := recover(); r != nil {
			tags = nil
			err = fmt.Errorf("flatten exif: %v", r)
		}
	}()
	entries, _, err := exif.GetFlatExifData(block, nil)
	if err != nil {
		return nil, err
	}
	tags = make(map[string]rawTag, len(entries))
	for _, entry := range entries {
		if entry.TagName == "" {
			continue
		}
		if _, seen := tags[entry.TagName]; seen {
			continue
		}
		first := strings.TrimSpace(strings.ReplaceAll(entry.FormattedFirst, "\x00", ""))
		all := strings.TrimSpace(strings.ReplaceAll(entry.Formatted, "\x00", ""))
		if first == "" && all == "" {
			continue
		}
		tags[entry.TagName] = rawTag{First: first, All: all}
	}
	return tags, nil
}

// fieldWarner records a field that was present but unusable.
type fieldWarner func(field, value string, err error)

type exifTimes struct {
	original  string
	digitized string
	generic   string
	offset    string
}

// applyExif maps flattened tags onto rec and returns the raw timestamp strings
// for capture time resolution.
func applyExif(tags map[string]rawTag, rec *Record, warn fieldWarner) exifTimes {
	var times exifTimes
	if len(tags) == 0 {
		return times
	}
	text := func(name string) string { return tags[name].First }

	rec.CameraMake = text("Make")
	rec.CameraModel = text("Model")
	rec.Lens = firstNonEmpty(text("LensModel"), text("LensMake"))
	if v := text("ExposureTime"); v != "" {
		if _, err := parseRational(v); err != nil {
			warn("ExposureTime", v, err)
		} else {
			rec.ExposureTime = v
		}
	}
	if v := text("FNumber"); v != "" {
		if f, err := parseRational(v); err != nil {
			warn("FNumber", v, err)
		} else {
			rec.FNumber = floatPtr(math.Round(f*10) / 10)
		}
	}
	if v := firstNonEmpty(text("ISOSpeedRatings"), text("PhotographicSensitivity")); v != "" {
		if iso, err := parseIntLoose(v); err != nil || iso <= 0 {
			warn("ISOSpeedRatings", v, orInvalid(err))
		} else {
			rec.ISO = intPtr(iso)
		}
	}
	if v := text("FocalLength"); v != "" {
		if f, err := parseRational(v); err != nil {
			warn("FocalLength", v, err)
		} else {
			rec.FocalLength = floatPtr(f)
		}
	}
	if v := text("Orientation"); v != "" {
		if o, err := parseIntLoose(v); err != nil || o < 1 || o > 8 {
			warn("Orientation", v, orInvalid(err))
		} else {
			rec.Orientation = intPtr(o)
		}
	}
	if v := text("PixelXDimension"); v != "" {
		if w, err := parseIntLoose(v); err == nil && w > 0 {
			rec.Width = w
		}
	}
	if v := text("PixelYDimension"); v != "" {
		if h, err := parseIntLoose(v); err == nil && h > 0 {
			rec.Height = h
		}
	}
	if v := text("ImageDescription"); v != "" {
		rec.Description = v
	}

	rec.GPS = gpsFromTags(tags, warn)

	times.original = text("DateTimeOriginal")
	times.digitized = text("DateTimeDigitized")
	times.generic = text("DateTime")
	times.offset = firstNonEmpty(text("OffsetTimeOriginal"), text("OffsetTime"))
	return times
}

func gpsFromTags(tags map[string]rawTag, warn fieldWarner) *GPS {
	var gps GPS
	if lat, ok := tags["GPSLatitude"]; ok {
		if v, err := parseDMS(lat.All, tags["GPSLatitudeRef"].First, 90); err != nil {
			warn("GPSLatitude", lat.All, err)
		} else {
			gps.Lat = floatPtr(v)
		}
	}
	if lon, ok := tags["GPSLongitude"]; ok {
		if v, err := parseDMS(lon.All, tags["GPSLongitudeRef"].First, 180); err != nil {
			warn("GPSLongitude", lon.All, err)
		} else {
			gps.Lon = floatPtr(v)
		}
	}
	if (gps.Lat == nil) != (gps.Lon == nil) {
		warn("GPS", "", errors.New("latitude and longitude must both be present"))
		gps.Lat, gps.Lon = nil, nil
	}
	if alt, ok := tags["GPSAltitude"]; ok && gps.Lat != nil {
		if v, err := parseRational(alt.First); err != nil {
			warn("GPSAltitude", alt.First, err)
		} else {
			if ref, err := parseIntLoose(tags["GPSAltitudeRef"].First); err == nil && ref == 1 {
				v = -v
			}
			gps.Alt = floatPtr(v)
		}
	}
	if gps.Lat == nil {
		return nil
	}
	return &gps
}

// parseDMS converts "[d/1 m/1 s/100]" plus a hemisphere reference into
// signed decimal degrees.
func parseDMS(value, ref string, limit float64) (float64, error) {
	value = strings.Trim(strings.TrimSpace(value), "[]")
	parts := strings.FieldsFunc(value, func(r rune) bool { return r == ' ' || r == ',' })
	if len(parts) == 0 || len(parts) > 3 {
		return 0, fmt.Errorf("want 1-3 components, got %d", len(parts))
	}
	var deg float64
	scale := 1.0
	for _, part := range parts {
		v, err := parseRational(part)
		if err != nil {
			return 0, err
		}
		deg += v / scale
		scale *= 60
	}
	if deg > limit || math.IsNaN(deg) {
		return 0, fmt.Errorf("coordinate %.6f out of range", deg)
	}
	switch strings.ToUpper(strings.TrimSpace(ref)) {
	case "S", "W":
		deg = -deg
	}
	return deg, nil
}

func parseRational(s string) (float64, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "/")
	if len(parts) == 1 {
		return strconv.ParseFloat(parts[0], 64)
	}
	if len(parts) != 2 {
		return 0, errors.New("invalid rational format")
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0, errors.New("invalid rational components")
	}
	return num / den, nil
}

// parseIntLoose accepts "3", "[3]" and the "0x03" rendering go-exif uses for
// BYTE values.
func parseIntLoose(s string) (int, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 64)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func orInvalid(err error) error {
	if err != nil {
		return err
	}
	return errors.New("value out of range")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
