package metadata

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"darkroom/internal/testsupport"
)

func TestExtractReadsExifFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "DSCF0001.jpg")
	testsupport.WriteJPEG(t, path, testsupport.JPEGOptions{
		Seed: 1,
		Exif: &testsupport.ExifFields{
			Make:             "FUJIFILM",
			Model:            "X100V",
			DateTimeOriginal: "2024:05:01 10:11:12",
			ExposureTime:     [2]uint32{1, 250},
			FNumber:          [2]uint32{28, 10},
			ISO:              400,
			Latitude:         [3][2]uint32{{51, 1}, {30, 1}, {0, 1}},
			LatitudeRef:      "N",
			Longitude:        [3][2]uint32{{0, 1}, {7, 1}, {30, 1}},
			LongitudeRef:     "W",
		},
	})

	rec := NewExtractor(nil).Extract(context.Background(), path)
	if rec.CameraMake != "FUJIFILM" || rec.CameraModel != "X100V" {
		t.Fatalf("unexpected camera %q %q", rec.CameraMake, rec.CameraModel)
	}
	if rec.ISO == nil || *rec.ISO != 400 {
		t.Fatalf("unexpected ISO %v", rec.ISO)
	}
	if rec.FNumber == nil || *rec.FNumber != 2.8 {
		t.Fatalf("unexpected f-number %v", rec.FNumber)
	}
	if rec.ExposureTime != "1/250" {
		t.Fatalf("unexpected exposure %q", rec.ExposureTime)
	}
	want := time.Date(2024, 5, 1, 10, 11, 12, 0, time.UTC)
	if rec.CapturedAt == nil || !rec.CapturedAt.Equal(want) {
		t.Fatalf("unexpected capture time %v", rec.CapturedAt)
	}
	if rec.CapturedAtSource != SourceExifOriginal {
		t.Fatalf("unexpected capture source %q", rec.CapturedAtSource)
	}
	if rec.GPS == nil || rec.GPS.Lat == nil || rec.GPS.Lon == nil {
		t.Fatalf("expected gps, got %+v", rec.GPS)
	}
	if math.Abs(*rec.GPS.Lat-51.5) > 1e-6 || math.Abs(*rec.GPS.Lon-(-0.125)) > 1e-6 {
		t.Fatalf("unexpected coordinates %v,%v", *rec.GPS.Lat, *rec.GPS.Lon)
	}
	if rec.Width != 64 || rec.Height != 48 {
		t.Fatalf("unexpected dimensions %dx%d", rec.Width, rec.Height)
	}
}

func TestExtractWithoutExifLeavesFieldsNil(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.jpg")
	mod := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	testsupport.WriteJPEG(t, path, testsupport.JPEGOptions{Seed: 2, ModTime: mod})

	rec := NewExtractor(nil).Extract(context.Background(), path)
	if rec.CameraMake != "" || rec.ISO != nil || rec.FNumber != nil || rec.GPS != nil || rec.Orientation != nil {
		t.Fatalf("expected empty exif fields, got %+v", rec)
	}
	if rec.CapturedAtSource != SourceFilesystem || rec.CapturedAt == nil || !rec.CapturedAt.Equal(mod) {
		t.Fatalf("expected filesystem time %v, got %v (%s)", mod, rec.CapturedAt, rec.CapturedAtSource)
	}
}

func TestExtractFilenameTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "IMG_20230715_183045.png")
	testsupport.WritePNG(t, path, 3)

	rec := NewExtractor(nil).Extract(context.Background(), path)
	want := time.Date(2023, 7, 15, 18, 30, 45, 0, time.UTC)
	if rec.CapturedAtSource != SourceFilename || rec.CapturedAt == nil || !rec.CapturedAt.Equal(want) {
		t.Fatalf("expected filename time, got %v (%s)", rec.CapturedAt, rec.CapturedAtSource)
	}
}

func TestExtractReadsIPTCKeywords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tagged.jpg")
	testsupport.WriteJPEG(t, path, testsupport.JPEGOptions{Seed: 4, IPTCKeywords: []string{"harbour", "boats"}})

	rec := NewExtractor(nil).Extract(context.Background(), path)
	if len(rec.Keywords) != 2 || rec.Keywords[0] != "harbour" || rec.Keywords[1] != "boats" {
		t.Fatalf("unexpected keywords %v", rec.Keywords)
	}
}

func TestExtractWarnsOnMalformedIPTC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	// IPTC resource claims 4 KiB of data but carries four bytes.
	block := []byte("Photoshop 3.0\x008BIM\x04\x04\x00\x00\x00\x00\x10\x00\x1c\x02\x19\x00")
	testsupport.WriteJPEG(t, path, testsupport.JPEGOptions{Seed: 6, RawAPP13: block})

	rec := NewExtractor(nil).Extract(context.Background(), path)
	found := false
	for _, w := range rec.Warnings {
		if strings.HasPrefix(w, "iptc:") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an iptc warning, got %v", rec.Warnings)
	}
	if len(rec.Keywords) != 0 {
		t.Fatalf("malformed iptc should yield no keywords, got %v", rec.Keywords)
	}
	if rec.Width != 64 || rec.Height != 48 {
		t.Fatalf("other fields should still be extracted, got %dx%d", rec.Width, rec.Height)
	}
}

func TestExtractReadsSidecar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.png")
	testsupport.WritePNG(t, path, 5)
	sidecar := `<x:xmpmeta xmlns:x="adobe:ns:meta/"><rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
<rdf:Description xmlns:xmp="http://ns.adobe.com/xap/1.0/" xmlns:dc="http://purl.org/dc/elements/1.1/" xmp:Rating="3" xmp:CreateDate="2019-08-01T09:30:00">
<dc:subject><rdf:Bag><rdf:li>film</rdf:li></rdf:Bag></dc:subject>
</rdf:Description></rdf:RDF></x:xmpmeta>`
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "scan.xmp"), []byte(sidecar), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := NewExtractor(nil).Extract(context.Background(), path)
	if rec.Rating == nil || *rec.Rating != 3 {
		t.Fatalf("expected rating 3 from sidecar attribute, got %v", rec.Rating)
	}
	if len(rec.Keywords) != 1 || rec.Keywords[0] != "film" {
		t.Fatalf("unexpected keywords %v", rec.Keywords)
	}
	if rec.CapturedAtSource != SourceFileMetadata || rec.CapturedAt.Year() != 2019 {
		t.Fatalf("expected xmp create date, got %v (%s)", rec.CapturedAt, rec.CapturedAtSource)
	}
}

func TestExtractNeverFailsOnMissingFile(t *testing.T) {
	rec := NewExtractor(nil).Extract(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	if len(rec.Warnings) == 0 {
		t.Fatal("expected a warning for a missing file")
	}
}

func TestParseDMS(t *testing.T) {
	tests := []struct {
		value string
		ref   string
		want  float64
		ok    bool
	}{
		{"[51/1 30/1 0/1]", "N", 51.5, true},
		{"[33/1 52/1 1080/100]", "S", -(33 + 52.0/60 + 10.8/3600), true},
		{"[200/1 0/1 0/1]", "E", 0, false},
		{"[1/0 0/1 0/1]", "N", 0, false},
	}
	for _, tc := range tests {
		got, err := parseDMS(tc.value, tc.ref, 180)
		if (err == nil) != tc.ok {
			t.Fatalf("parseDMS(%q) err=%v, want ok=%v", tc.value, err, tc.ok)
		}
		if tc.ok && math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("parseDMS(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestTimeFromFilename(t *testing.T) {
	tests := []struct {
		name string
		want time.Time
		ok   bool
	}{
		{"20240501_101112_ABCDEF12.jpg", time.Date(2024, 5, 1, 10, 11, 12, 0, time.UTC), true},
		{"PXL_20221231_235959123.jpg", time.Date(2022, 12, 31, 23, 59, 59, 0, time.UTC), true},
		{"Screenshot 2020-02-03 14.15.16.png", time.Date(2020, 2, 3, 14, 15, 16, 0, time.UTC), true},
		{"IMG_20241399_101112.jpg", time.Time{}, false},
		{"holiday.jpg", time.Time{}, false},
	}
	for _, tc := range tests {
		got, ok := timeFromFilename(tc.name)
		if ok != tc.ok || (ok && !got.Equal(tc.want)) {
			t.Fatalf("timeFromFilename(%q) = %v %v, want %v %v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestResolveCapturedAtPriority(t *testing.T) {
	var warnings []string
	warn := func(field, _ string, _ error) { warnings = append(warnings, field) }

	got, source := resolveCapturedAt(timeSources{
		exif:     exifTimes{original: "garbage", digitized: "2020:01:02 03:04:05"},
		filename: "20240501_101112.jpg",
		modTime:  time.Now(),
	}, warn)
	if source != SourceExifDigitized || got.Year() != 2020 {
		t.Fatalf("expected digitized time, got %v (%s)", got, source)
	}
	if len(warnings) != 1 || warnings[0] != "DateTimeOriginal" {
		t.Fatalf("expected a warning for the unparseable original time, got %v", warnings)
	}

	got, source = resolveCapturedAt(timeSources{exif: exifTimes{generic: "2018:06:07 08:09:10", offset: "+02:00"}}, warn)
	if source != SourceFileMetadata {
		t.Fatalf("expected file metadata source, got %s", source)
	}
	if got.UTC().Hour() != 6 {
		t.Fatalf("expected offset applied, got %v", got.UTC())
	}
}
