package textutil

import (
	"reflect"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  beach: day/one ", "beach- day-one"},
		{"what?", "what"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := SanitizeFileName(tc.in); got != tc.want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("Hello World!"); got != "hello_world" {
		t.Fatalf("unexpected token %q", got)
	}
	if got := SanitizeToken("   "); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
}

func TestStem(t *testing.T) {
	if got := Stem("/in/My Trip:1.JPG"); got != "My_Trip-1" {
		t.Fatalf("unexpected stem %q", got)
	}
	if got := Stem("/in/.jpg"); got != "unnamed" {
		t.Fatalf("expected unnamed, got %q", got)
	}
}

func TestNormalizeTagsDedupAndCap(t *testing.T) {
	got := NormalizeTags([]string{" Beach ", "beach", "SUNSET", "", "Golden   Hour", "sea", "sky"}, 4)
	want := []string{"beach", "sunset", "golden hour", "sea"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeTags = %v, want %v", got, want)
	}
	if all := NormalizeTags([]string{"a", "b", "c"}, 0); len(all) != 3 {
		t.Fatalf("expected no cap, got %v", all)
	}
}

func TestTitleCase(t *testing.T) {
	if got := TitleCase("  san   FRANCISCO "); got != "San Francisco" {
		t.Fatalf("unexpected title %q", got)
	}
}

func TestFilenameKeywords(t *testing.T) {
	got := FilenameKeywords("IMG_2041_sunset_over_the_bay.jpg")
	want := []string{"sunset", "over", "the", "bay"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FilenameKeywords = %v, want %v", got, want)
	}
}
