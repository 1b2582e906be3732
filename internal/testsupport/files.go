package testsupport

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	jpegstructure "github.com/dsoprea/go-jpeg-image-structure"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// JPEGOptions controls synthetic JPEG generation.
type JPEGOptions struct {
	// Seed varies the pixel pattern so distinct seeds produce distinct images.
	Seed   int
	Width  int
	Height int
	Exif   *ExifFields
	// IPTCKeywords are written as IPTC 2:25 datasets in a Photoshop APP13 segment.
	IPTCKeywords []string
	// RawAPP13 is written verbatim as an extra APP13 body, for malformed
	// Photoshop blocks.
	RawAPP13 []byte
	// ModTime, when set, is applied to the written file.
	ModTime time.Time
}

// Image renders the synthetic test pattern for seed.
func Image(seed, width, height int) *image.NRGBA {
	if width <= 0 {
		width = 64
	}
	if height <= 0 {
		height = 48
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8((x*7 + y*3 + seed*53) % 256)
			if (x/8+y/8+seed)%2 == 0 {
				v = 255 - v
			}
			img.Set(x, y, color.NRGBA{R: v, G: uint8((int(v) + seed*31) % 256), B: uint8(x * 4 % 256), A: 255})
		}
	}
	return img
}

// WriteJPEG encodes a synthetic JPEG at path, optionally carrying EXIF and
// IPTC segments, and returns the written bytes.
func WriteJPEG(t testing.TB, path string, opts JPEGOptions) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Image(opts.Seed, opts.Width, opts.Height), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	data := buf.Bytes()

	var segments []*jpegstructure.Segment
	if opts.Exif != nil {
		block, err := BuildExif(*opts.Exif)
		if err != nil {
			t.Fatalf("build exif: %v", err)
		}
		segments = append(segments, app1(append([]byte("Exif\x00\x00"), block...)))
	}
	if len(opts.IPTCKeywords) > 0 {
		segments = append(segments, app13(iptcBlock(opts.IPTCKeywords)))
	}
	if opts.RawAPP13 != nil {
		segments = append(segments, app13(opts.RawAPP13))
	}
	if len(segments) > 0 {
		withSegments, err := insertSegments(data, segments...)
		if err != nil {
			t.Fatalf("insert jpeg segments: %v", err)
		}
		data = withSegments
	}

	writeBytes(t, path, data, opts.ModTime)
	return data
}

// WritePNG encodes a synthetic PNG at path.
func WritePNG(t testing.TB, path string, seed int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, Image(seed, 64, 48)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	writeBytes(t, path, buf.Bytes(), time.Time{})
	return buf.Bytes()
}

// WriteCorrupt writes bytes that look like a JPEG header but do not decode.
func WriteCorrupt(t testing.TB, path string) {
	t.Helper()
	writeBytes(t, path, []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00 truncated garbage"), time.Time{})
}

func writeBytes(t testing.TB, path string, data []byte, modTime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(path, modTime, modTime); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}
}
