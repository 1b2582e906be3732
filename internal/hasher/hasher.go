package hasher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"darkroom/internal/services"
)

const readChunk = 256 * 1024

// Result carries the identity of one media file.
type Result struct {
	ContentHash    string
	PerceptualHash uint64
	Width          int
	Height         int
	Size           int64
	MimeType       string
}

var mimeByFormat = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"webp": "image/webp",
}

// Hash reads the file at path and computes its content and perceptual hashes.
func Hash(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, services.Wrap(services.ErrNotFound, "hasher", "open", "Unable to open media file", err)
	}
	defer f.Close()

	data, err := readAll(ctx, f)
	if err != nil {
		return Result{}, err
	}
	res, err := hashBytes(data)
	if err != nil {
		return Result{}, &services.DecodeError{Path: path, Err: err}
	}
	return res, nil
}

func readAll(ctx context.Context, r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(chunk)
		buf.Write(chunk[:n])
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("read media: %w", err)
		}
	}
}

func hashBytes(data []byte) (Result, error) {
	sum := sha256.Sum256(data)
	res := Result{
		ContentHash: hex.EncodeToString(sum[:]),
		Size:        int64(len(data)),
	}
	if len(data) == 0 {
		return res, errors.New("empty file")
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return res, fmt.Errorf("decode header: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return res, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return res, errors.New("image has no pixels")
	}
	res.Width = bounds.Dx()
	res.Height = bounds.Dy()
	res.MimeType = mimeByFormat[format]
	if res.MimeType == "" {
		res.MimeType = "image/" + format
	}
	res.PerceptualHash = DHash(img)
	return res, nil
}
