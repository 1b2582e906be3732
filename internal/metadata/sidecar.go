package metadata

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"darkroom/internal/fileutil"
)

// SidecarPath is where darkroom writes the XMP sidecar for path ("photo.heic.xmp").
func SidecarPath(path string) string {
	return path + ".xmp"
}

// sidecarCandidates lists sidecar locations in lookup order: darkroom's own
// naming first, then the "photo.xmp" convention used by other editors.
func sidecarCandidates(path string) []string {
	ext := filepath.Ext(path)
	candidates := []string{SidecarPath(path)}
	if ext != "" {
		candidates = append(candidates, strings.TrimSuffix(path, ext)+".xmp")
	}
	return candidates
}

func readSidecar(path string) ([]byte, string, error) {
	for _, candidate := range sidecarCandidates(path) {
		data, err := os.ReadFile(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, candidate, err
		}
		return data, candidate, nil
	}
	return nil, "", nil
}

func writeSidecar(path string, packet []byte) (string, error) {
	target := SidecarPath(path)
	err := fileutil.WriteFileAtomic(target, func(w io.Writer) error {
		_, err := w.Write(packet)
		return err
	})
	return target, err
}

// IsSidecar reports whether path is an XMP sidecar rather than media.
func IsSidecar(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xmp")
}
