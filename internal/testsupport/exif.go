package testsupport

import (
	"bytes"
	"encoding/binary"
	"fmt"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure"
)

// ExifFields selects the tags written by BuildExif. Zero values are omitted.
type ExifFields struct {
	Make             string
	Model            string
	DateTimeOriginal string // "2006:01:02 15:04:05"
	ExposureTime     [2]uint32
	FNumber          [2]uint32
	ISO              uint16
	// GPS coordinates as degrees/minutes/seconds rationals.
	Latitude     [3][2]uint32
	LatitudeRef  string
	Longitude    [3][2]uint32
	LongitudeRef string
}

func rationals(values ...[2]uint32) []exifcommon.Rational {
	out := make([]exifcommon.Rational, len(values))
	for i, v := range values {
		out[i] = exifcommon.Rational{Numerator: v[0], Denominator: v[1]}
	}
	return out
}

// BuildExif encodes IFD0, the Exif sub-IFD and, when coordinates are set, the
// GPS IFD as a complete EXIF block (TIFF header included).
func BuildExif(f ExifFields) ([]byte, error) {
	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, err
	}
	root := exif.NewIfdBuilder(im, exif.NewTagIndex(), exifcommon.IfdStandardIfdIdentity, binary.LittleEndian)

	type tag struct {
		ifd   string
		name  string
		value any
		set   bool
	}
	tags := []tag{
		{"IFD", "Make", f.Make, f.Make != ""},
		{"IFD", "Model", f.Model, f.Model != ""},
		{"IFD/Exif", "ExposureTime", rationals(f.ExposureTime), f.ExposureTime[1] != 0},
		{"IFD/Exif", "FNumber", rationals(f.FNumber), f.FNumber[1] != 0},
		{"IFD/Exif", "ISOSpeedRatings", []uint16{f.ISO}, f.ISO != 0},
		{"IFD/Exif", "DateTimeOriginal", f.DateTimeOriginal, f.DateTimeOriginal != ""},
	}
	if f.LatitudeRef != "" && f.LongitudeRef != "" {
		tags = append(tags,
			tag{"IFD/GPSInfo", "GPSLatitudeRef", f.LatitudeRef, true},
			tag{"IFD/GPSInfo", "GPSLatitude", rationals(f.Latitude[:]...), true},
			tag{"IFD/GPSInfo", "GPSLongitudeRef", f.LongitudeRef, true},
			tag{"IFD/GPSInfo", "GPSLongitude", rationals(f.Longitude[:]...), true},
		)
	}
	for _, t := range tags {
		if !t.set {
			continue
		}
		ib, err := exif.GetOrCreateIbFromRootIb(root, t.ifd)
		if err != nil {
			return nil, fmt.Errorf("ifd %s: %w", t.ifd, err)
		}
		if err := ib.SetStandardWithName(t.name, t.value); err != nil {
			return nil, fmt.Errorf("set %s: %w", t.name, err)
		}
	}
	return exif.NewIfdByteEncoder().EncodeToExif(root)
}

// iptcBlock wraps IPTC 2:25 keyword datasets in a Photoshop 3.0 image
// resource (0x0404). The dsoprea IPTC and Photoshop packages only decode, so
// the record bytes are laid out here.
func iptcBlock(keywords []string) []byte {
	var iptc []byte
	for _, kw := range keywords {
		iptc = append(iptc, 0x1C, 0x02, 25)
		iptc = binary.BigEndian.AppendUint16(iptc, uint16(len(kw)))
		iptc = append(iptc, kw...)
	}
	return photoshopResource(0x0404, iptc)
}

func photoshopResource(id uint16, body []byte) []byte {
	out := []byte("Photoshop 3.0\x00")
	out = append(out, "8BIM"...)
	out = binary.BigEndian.AppendUint16(out, id)
	out = append(out, 0x00, 0x00) // empty pascal name, padded to even
	out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
	out = append(out, body...)
	if len(body)%2 == 1 {
		out = append(out, 0)
	}
	return out
}

// insertSegments splices extra APPn segments directly after SOI using the
// jpegstructure segment list, so lengths and markers are written by the
// library.
func insertSegments(data []byte, extra ...*jpegstructure.Segment) ([]byte, error) {
	mc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, err
	}
	sl := mc.(*jpegstructure.SegmentList)
	segments := sl.Segments()
	if len(segments) == 0 || segments[0].MarkerId != jpegstructure.MARKER_SOI {
		return nil, fmt.Errorf("jpeg does not start with SOI")
	}
	out := make([]*jpegstructure.Segment, 0, len(segments)+len(extra))
	out = append(out, segments[0])
	out = append(out, extra...)
	out = append(out, segments[1:]...)

	var buf bytes.Buffer
	if err := jpegstructure.NewSegmentList(out).Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func app1(body []byte) *jpegstructure.Segment {
	return &jpegstructure.Segment{MarkerId: jpegstructure.MARKER_APP1, MarkerName: "APP1", Data: body}
}

func app13(body []byte) *jpegstructure.Segment {
	return &jpegstructure.Segment{MarkerId: jpegstructure.MARKER_APP13, MarkerName: "APP13", Data: body}
}
