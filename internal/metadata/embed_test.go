package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"darkroom/internal/hasher"
	"darkroom/internal/testsupport"
)

func samplePayload() Payload {
	return Payload{
		AssetID:          "0b5c3c2e-7d0a-4a83-9c55-1f6f2a0c9b11",
		OriginalFilename: "IMG_0042.jpg",
		CreatedAt:        time.Date(2024, 5, 1, 10, 11, 12, 0, time.UTC),
		Description:      "Two kids & a dog <on> the \"beach\"",
		Keywords:         []string{"beach", "dog", "golden hour"},
		People:           []string{"Ana Lima", "Jonas Berg"},
		Rating:           4,
		Enrichment:       json.RawMessage(`{"tags":["beach","dog"]}`),
		History: []HistoryEntry{
			{Action: "INGESTED", Details: "from dropzone", Timestamp: time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)},
			{Action: "PROMOTED", Details: "bronze -> silver", Timestamp: time.Date(2024, 5, 2, 8, 1, 0, 0, time.UTC)},
		},
	}
}

func TestEmbedJPEGRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gold.jpg")
	testsupport.WriteJPEG(t, path, testsupport.JPEGOptions{
		Seed: 7,
		Exif: &testsupport.ExifFields{Make: "Canon", Model: "EOS R6", DateTimeOriginal: "2024:05:01 10:11:12"},
	})
	before, err := hasher.Hash(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	payload := samplePayload()
	res, err := NewEmbedder(nil).Embed(context.Background(), path, payload)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if !res.Embedded || res.SidecarPath != "" {
		t.Fatalf("expected in-file embedding, got %+v", res)
	}

	rec := NewExtractor(nil).Extract(context.Background(), path)
	if rec.Description != payload.Description {
		t.Fatalf("description mismatch: %q", rec.Description)
	}
	if !reflect.DeepEqual(rec.Keywords, payload.Keywords) {
		t.Fatalf("keywords mismatch: %v", rec.Keywords)
	}
	if !reflect.DeepEqual(rec.Creators, payload.People) {
		t.Fatalf("people mismatch: %v", rec.Creators)
	}
	if rec.Rating == nil || *rec.Rating != 4 {
		t.Fatalf("rating mismatch: %v", rec.Rating)
	}
	if rec.CameraMake != "Canon" {
		t.Fatalf("embedding should preserve exif, got make %q", rec.CameraMake)
	}

	got, ok, err := ReadEmbedded(path)
	if err != nil || !ok {
		t.Fatalf("ReadEmbedded: ok=%v err=%v", ok, err)
	}
	if got.AssetID != payload.AssetID || got.Description != payload.Description || !reflect.DeepEqual(got.People, payload.People) {
		t.Fatalf("payload mismatch: %+v", got)
	}
	if len(got.History) != 2 || !got.History[1].Timestamp.Equal(payload.History[1].Timestamp) {
		t.Fatalf("history mismatch: %+v", got.History)
	}
	if string(got.Enrichment) != string(payload.Enrichment) {
		t.Fatalf("enrichment mismatch: %s", got.Enrichment)
	}

	after, err := hasher.Hash(context.Background(), path)
	if err != nil {
		t.Fatalf("embedded file must still decode: %v", err)
	}
	if after.PerceptualHash != before.PerceptualHash {
		t.Fatal("embedding must not change the pixels")
	}
	if after.ContentHash == before.ContentHash {
		t.Fatal("embedding should change the file bytes")
	}
}

func TestEmbedReplacesExistingXMP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gold.jpg")
	testsupport.WriteJPEG(t, path, testsupport.JPEGOptions{Seed: 8})
	embedder := NewEmbedder(nil)

	first := samplePayload()
	if _, err := embedder.Embed(context.Background(), path, first); err != nil {
		t.Fatal(err)
	}
	second := samplePayload()
	second.Keywords = []string{"updated"}
	if _, err := embedder.Embed(context.Background(), path, second); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := bytes.Count(data, []byte(xmpHeader)); n != 1 {
		t.Fatalf("expected exactly one xmp segment, found %d", n)
	}
	got, ok, err := ReadEmbedded(path)
	if err != nil || !ok {
		t.Fatalf("ReadEmbedded: %v %v", ok, err)
	}
	if !reflect.DeepEqual(got.Keywords, []string{"updated"}) {
		t.Fatalf("expected replaced keywords, got %v", got.Keywords)
	}
}

func TestEmbedClearsStaleIPTC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gold.jpg")
	testsupport.WriteJPEG(t, path, testsupport.JPEGOptions{Seed: 12, IPTCKeywords: []string{"camera-default", "stale"}})

	payload := samplePayload()
	payload.Description = ""
	payload.Keywords = nil
	payload.People = nil
	if _, err := NewEmbedder(nil).Embed(context.Background(), path, payload); err != nil {
		t.Fatalf("Embed: %v", err)
	}

	rec := NewExtractor(nil).Extract(context.Background(), path)
	if len(rec.Keywords) != 0 || rec.Description != "" || len(rec.Creators) != 0 {
		t.Fatalf("cleared fields came back: keywords=%v description=%q creators=%v", rec.Keywords, rec.Description, rec.Creators)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("camera-default")) {
		t.Fatal("stale iptc block should be dropped from the gold file")
	}
}

func TestEmbedNonJPEGWritesSidecar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gold.png")
	original := testsupport.WritePNG(t, path, 9)

	res, err := NewEmbedder(nil).Embed(context.Background(), path, samplePayload())
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if res.Embedded || res.SidecarPath != path+".xmp" {
		t.Fatalf("expected sidecar, got %+v", res)
	}
	data, _ := os.ReadFile(path)
	if !bytes.Equal(data, original) {
		t.Fatal("sidecar embedding must leave the media untouched")
	}

	got, ok, err := ReadEmbedded(path)
	if err != nil || !ok || got.Rating != 4 {
		t.Fatalf("ReadEmbedded from sidecar: %+v %v %v", got, ok, err)
	}
	rec := NewExtractor(nil).Extract(context.Background(), path)
	if !reflect.DeepEqual(rec.Keywords, samplePayload().Keywords) {
		t.Fatalf("extractor should read sidecar keywords, got %v", rec.Keywords)
	}
}

func TestEmbedRequiresAssetID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gold.jpg")
	testsupport.WriteJPEG(t, path, testsupport.JPEGOptions{Seed: 10})
	if _, err := NewEmbedder(nil).Embed(context.Background(), path, Payload{}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestInjectXMPPlacement(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.jpg")
	data := testsupport.WriteJPEG(t, path, testsupport.JPEGOptions{
		Seed: 11,
		Exif: &testsupport.ExifFields{Make: "Nikon"},
	})
	out, err := injectXMP(data, []byte("<x/>"))
	if err != nil {
		t.Fatal(err)
	}
	exifAt := bytes.Index(out, []byte("Exif\x00\x00"))
	xmpAt := bytes.Index(out, []byte(xmpHeader))
	if exifAt < 0 || xmpAt < 0 || xmpAt < exifAt {
		t.Fatalf("expected xmp after the leading exif segment (exif=%d xmp=%d)", exifAt, xmpAt)
	}
	if _, err := injectXMP([]byte("not a jpeg"), nil); err == nil {
		t.Fatal("expected error for non-jpeg input")
	}
}
