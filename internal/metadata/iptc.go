package metadata

import (
	"errors"
	"fmt"
	"strings"

	jpegstructure "github.com/dsoprea/go-jpeg-image-structure"
)

// IPTC-IIM application record datasets.
const (
	iptcRecordApplication = 2
	iptcDateCreated       = 55
	iptcByline            = 80
	iptcKeywords          = 25
	iptcCaption           = 120
)

type iptcFields struct {
	Keywords    []string
	Caption     string
	Byline      []string
	DateCreated string
}

// readIPTC pulls the application record datasets out of a JPEG's Photoshop
// APP13 segment. Files without IPTC yield empty fields and no error.
func readIPTC(sl *jpegstructure.SegmentList) (fields iptcFields, err error) {
	if sl == nil {
		return fields, nil
	}
	defer func() {
		if r := recover(); r != nil {
			fields = iptcFields{}
			err = fmt.Errorf("parse iptc: %v", r)
		}
	}()
	tags, err := sl.Iptc()
	if errors.Is(err, jpegstructure.ErrNoIptc) || errors.Is(err, jpegstructure.ErrNoPhotoshopData) {
		return fields, nil
	}
	if err != nil {
		return fields, fmt.Errorf("parse iptc: %w", err)
	}
	for key, values := range tags {
		if key.RecordNumber != iptcRecordApplication {
			continue
		}
		for _, value := range values {
			text := strings.TrimSpace(strings.ReplaceAll(string(value), "\x00", ""))
			if text == "" {
				continue
			}
			switch key.DatasetNumber {
			case iptcKeywords:
				fields.Keywords = append(fields.Keywords, text)
			case iptcCaption:
				if fields.Caption == "" {
					fields.Caption = text
				}
			case iptcByline:
				fields.Byline = append(fields.Byline, text)
			case iptcDateCreated:
				if fields.DateCreated == "" && len(text) == 8 {
					fields.DateCreated = text
				}
			}
		}
	}
	return fields, nil
}

// isIPTCSegment reports whether s is a Photoshop APP13 segment carrying IPTC.
// Malformed Photoshop data counts as IPTC so it gets replaced.
func isIPTCSegment(s *jpegstructure.Segment) (found bool) {
	if s.MarkerId != jpegstructure.MARKER_APP13 {
		return false
	}
	defer func() {
		if recover() != nil {
			found = true
		}
	}()
	return s.IsIptc()
}

// embeddedXMP returns the XMP packet inside a JPEG's APP1 segments, or nil.
func embeddedXMP(sl *jpegstructure.SegmentList) []byte {
	if sl == nil {
		return nil
	}
	for _, s := range sl.Segments() {
		if s.IsXmp() && len(s.Data) > len(xmpHeader) {
			return s.Data[len(xmpHeader):]
		}
	}
	return nil
}
