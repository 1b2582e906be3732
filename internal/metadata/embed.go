package metadata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	jpegstructure "github.com/dsoprea/go-jpeg-image-structure"

	"darkroom/internal/fileutil"
	"darkroom/internal/logging"
	"darkroom/internal/services"
)

// maxSegmentPayload is the largest APPn body (65535 minus the length field).
const maxSegmentPayload = 65533

// EmbedResult describes where the payload ended up.
type EmbedResult struct {
	Path        string
	SidecarPath string
	Embedded    bool
	Bytes       int
}

// Embedder writes payloads into Gold files.
type Embedder struct {
	logger *slog.Logger
}

// NewEmbedder constructs an Embedder. A nil logger discards output.
func NewEmbedder(logger *slog.Logger) *Embedder {
	return &Embedder{logger: logging.NewComponentLogger(logger, "embedder")}
}

// Embed writes payload into the file at path. JPEGs get an XMP APP1 segment
// in place (replacing any existing XMP); other formats, and packets too large
// for a single segment, get a sidecar and the media stream is left untouched.
func (e *Embedder) Embed(ctx context.Context, path string, payload Payload) (EmbedResult, error) {
	if err := ctx.Err(); err != nil {
		return EmbedResult{}, err
	}
	if payload.AssetID == "" {
		return EmbedResult{}, services.Validation("embedder", "embed", "payload requires an asset id")
	}
	payload.Schema = payloadSchema

	packet, err := buildXMP(payload)
	if err != nil {
		return EmbedResult{}, services.Wrap(services.ErrValidation, "embedder", "build xmp", "Unable to render metadata packet", err)
	}
	result := EmbedResult{Path: path, Bytes: len(packet)}

	data, err := os.ReadFile(path)
	if err != nil {
		return EmbedResult{}, services.Wrap(services.ErrNotFound, "embedder", "read", "Unable to read gold file", err)
	}

	if isJPEG(data) {
		if len(xmpHeader)+len(packet) > maxSegmentPayload {
			logging.WarnWithContext(e.logger, "xmp packet exceeds jpeg segment limit; writing sidecar", "xmp_oversize",
				logging.String("path", path),
				logging.Int("bytes", len(packet)),
				logging.String(logging.FieldImpact, "metadata stored beside the file instead of inside it"),
				logging.String(logging.FieldErrorHint, "trim keywords or history to embed in-file"),
			)
		} else {
			rewritten, err := injectXMP(data, packet)
			if err != nil {
				return EmbedResult{}, &services.DecodeError{Path: path, Err: err}
			}
			if err := fileutil.WriteFileAtomic(path, func(w io.Writer) error {
				_, err := w.Write(rewritten)
				return err
			}); err != nil {
				return EmbedResult{}, services.Wrap(services.ErrTransient, "embedder", "write", "Unable to write gold file", err)
			}
			result.Embedded = true
			e.logger.Debug("embedded xmp packet", logging.String("path", path), logging.Int("bytes", len(packet)))
			return result, nil
		}
	}

	sidecar, err := writeSidecar(path, packet)
	if err != nil {
		return EmbedResult{}, services.Wrap(services.ErrTransient, "embedder", "write sidecar", "Unable to write xmp sidecar", err)
	}
	result.SidecarPath = sidecar
	e.logger.Debug("wrote xmp sidecar", logging.String("path", sidecar), logging.Int("bytes", len(packet)))
	return result, nil
}

// ReadEmbedded recovers a darkroom payload from the file's own XMP first and
// its sidecar second. ok is false when neither holds one.
func ReadEmbedded(path string) (Payload, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, false, err
	}
	if isJPEG(data) {
		if packet := embeddedXMP(parseSegments(data)); packet != nil {
			if fields, err := parseXMP(packet); err == nil {
				if p, ok := fields.payload(); ok {
					return p, true, nil
				}
			}
		}
	}
	packet, _, err := readSidecar(path)
	if err != nil {
		return Payload{}, false, err
	}
	if packet == nil {
		return Payload{}, false, nil
	}
	fields, err := parseXMP(packet)
	if err != nil {
		return Payload{}, false, err
	}
	p, ok := fields.payload()
	return p, ok, nil
}

func isJPEG(data []byte) bool {
	return len(data) > 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF
}

// parseSegments returns the JPEG segment list, or nil when the structure
// parser rejects the file.
func parseSegments(data []byte) *jpegstructure.SegmentList {
	mc, err := parseMedia(data, ".jpg")
	if err != nil || mc == nil {
		return nil
	}
	sl, _ := mc.(*jpegstructure.SegmentList)
	return sl
}

// injectXMP rewrites the JPEG so it carries exactly one XMP APP1 segment,
// placed after the leading APPn segments. Existing standard and extended XMP
// segments are dropped, as are Photoshop IPTC blocks whose keywords and
// captions the packet supersedes. Scan data is written back unchanged.
func injectXMP(data, packet []byte) ([]byte, error) {
	if !isJPEG(data) {
		return nil, errors.New("not a jpeg stream")
	}
	mc, err := parseMedia(data, ".jpg")
	if err != nil {
		return nil, err
	}
	sl, ok := mc.(*jpegstructure.SegmentList)
	if !ok || sl == nil {
		return nil, errors.New("jpeg structure unavailable")
	}

	xmpSegment := &jpegstructure.Segment{
		MarkerId:   jpegstructure.MARKER_APP1,
		MarkerName: "APP1",
		Data:       append([]byte(xmpHeader), packet...),
	}
	kept := make([]*jpegstructure.Segment, 0, len(sl.Segments())+1)
	inserted := false
	for i, seg := range sl.Segments() {
		if seg.IsXmp() || (seg.MarkerId == jpegstructure.MARKER_APP1 && bytes.HasPrefix(seg.Data, []byte(xmpExtendedHeader))) {
			continue
		}
		if isIPTCSegment(seg) {
			continue
		}
		if !inserted && i > 0 && !isAPPn(seg.MarkerId) {
			kept = append(kept, xmpSegment)
			inserted = true
		}
		kept = append(kept, seg)
	}
	if !inserted {
		return nil, errors.New("jpeg has no image data")
	}

	var out bytes.Buffer
	out.Grow(len(data) + len(xmpSegment.Data) + 4)
	if err := jpegstructure.NewSegmentList(kept).Write(&out); err != nil {
		return nil, fmt.Errorf("write jpeg segments: %w", err)
	}
	return out.Bytes(), nil
}

func isAPPn(marker byte) bool {
	return marker >= jpegstructure.MARKER_APP0 && marker <= jpegstructure.MARKER_APP15
}
