package metadata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	jpegstructure "github.com/dsoprea/go-jpeg-image-structure"

	"darkroom/internal/logging"
)

var errUnparseableTime = errors.New("unparseable timestamp")

// Extractor reads metadata from media files.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor constructs an Extractor. A nil logger discards output.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logging.NewComponentLogger(logger, "metadata")}
}

// Extract reads EXIF, XMP (embedded and sidecar) and IPTC from path. It never
// fails: anything unreadable is left unset and reported in Record.Warnings.
func (e *Extractor) Extract(ctx context.Context, path string) Record {
	var rec Record
	log := logging.WithContext(ctx, e.logger).With(logging.String("path", path))
	warn := func(field, value string, err error) {
		msg := field
		if err != nil {
			msg = fmt.Sprintf("%s: %v", field, err)
		}
		rec.Warnings = append(rec.Warnings, msg)
		logging.WarnWithContext(log, "metadata field invalid", "metadata_field_invalid",
			logging.String("field", field),
			logging.String("value", truncate(value, 64)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "field left empty"),
			logging.String(logging.FieldErrorHint, "inspect the file with exiftool"),
		)
	}

	if err := ctx.Err(); err != nil {
		warn("context", "", err)
		return rec
	}
	info, err := os.Stat(path)
	if err != nil {
		warn("file", "", err)
		return rec
	}
	data, err := os.ReadFile(path)
	if err != nil {
		warn("file", "", err)
		return rec
	}
	ext := strings.ToLower(filepath.Ext(path))

	mc, err := parseMedia(data, ext)
	if err != nil {
		log.Debug("structured parse failed; falling back to brute-force exif search", logging.Error(err))
	}
	var times exifTimes
	block, err := exifBlock(mc, data)
	switch {
	case err != nil:
		warn("exif", "", err)
	case len(block) > 0:
		tags, err := flattenExif(block)
		if err != nil {
			warn("exif", "", err)
		} else {
			times = applyExif(tags, &rec, warn)
		}
	}

	var xmp xmpFields
	var iptc iptcFields
	if sl, ok := mc.(*jpegstructure.SegmentList); ok && sl != nil {
		if packet := embeddedXMP(sl); packet != nil {
			if parsed, err := parseXMP(packet); err != nil {
				warn("xmp", "", err)
			} else {
				xmp = parsed
			}
		}
		if parsed, err := readIPTC(sl); err != nil {
			warn("iptc", "", err)
		} else {
			iptc = parsed
		}
	}
	if sidecar, sidecarPath, err := readSidecar(path); err != nil {
		warn("xmp sidecar", sidecarPath, err)
	} else if sidecar != nil {
		if parsed, err := parseXMP(sidecar); err != nil {
			warn("xmp sidecar", sidecarPath, err)
		} else {
			xmp = mergeXMP(xmp, parsed)
		}
	}
	applyDescriptive(&rec, xmp, iptc)

	if rec.Width == 0 || rec.Height == 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			rec.Width, rec.Height = cfg.Width, cfg.Height
		}
	}

	rec.CapturedAt, rec.CapturedAtSource = resolveCapturedAt(timeSources{
		exif:      times,
		xmpCreate: xmp.CreateDate,
		iptcDate:  iptc.DateCreated,
		filename:  filepath.Base(path),
		modTime:   info.ModTime(),
	}, warn)
	return rec
}

// mergeXMP fills gaps in the embedded packet from the sidecar.
func mergeXMP(embedded, sidecar xmpFields) xmpFields {
	if embedded.Description == "" {
		embedded.Description = sidecar.Description
	}
	if len(embedded.Keywords) == 0 {
		embedded.Keywords = sidecar.Keywords
	}
	if len(embedded.Creators) == 0 {
		embedded.Creators = sidecar.Creators
	}
	if embedded.Rating == nil {
		embedded.Rating = sidecar.Rating
	}
	if embedded.CreateDate == "" {
		embedded.CreateDate = sidecar.CreateDate
	}
	if embedded.Payload == "" {
		embedded.Payload = sidecar.Payload
	}
	return embedded
}

// applyDescriptive prefers XMP over IPTC over EXIF for the descriptive fields.
// A darkroom payload is authoritative: its fields are taken as written, empty
// ones included, so stale camera IPTC never leaks back in.
func applyDescriptive(rec *Record, xmp xmpFields, iptc iptcFields) {
	if p, ok := xmp.payload(); ok {
		rec.Description = p.Description
		rec.Keywords = append([]string(nil), p.Keywords...)
		rec.Creators = append([]string(nil), p.People...)
		rec.Rating = intPtr(p.Rating)
		return
	}
	if xmp.Description != "" {
		rec.Description = xmp.Description
	} else if iptc.Caption != "" {
		rec.Description = iptc.Caption
	}
	switch {
	case len(xmp.Keywords) > 0:
		rec.Keywords = xmp.Keywords
	case len(iptc.Keywords) > 0:
		rec.Keywords = iptc.Keywords
	}
	switch {
	case len(xmp.Creators) > 0:
		rec.Creators = xmp.Creators
	case len(iptc.Byline) > 0:
		rec.Creators = iptc.Byline
	}
	if xmp.Rating != nil {
		rec.Rating = xmp.Rating
	}
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
