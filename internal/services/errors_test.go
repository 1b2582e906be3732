package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"darkroom/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrProviderUnavailable, "enrichment", "analyze", "local provider down", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrProviderUnavailable) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"enrichment", "analyze", "local provider down"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindOfClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"nil", nil, ""},
		{"decode", &services.DecodeError{Path: "a.jpg", Err: errors.New("bad header")}, services.KindDecode},
		{"integrity", &services.IntegrityError{ContentHash: "abc"}, services.KindIntegrity},
		{"validation", services.Validation("tier", "promote", "not reviewed"), services.KindValidation},
		{"rejected", services.Wrap(services.ErrProviderRejected, "enrichment", "", "", nil), services.KindProviderRejected},
		{"timeout", services.Wrap(services.ErrTimeout, "", "", "", nil), services.KindTransient},
		{"wrapped decode", fmt.Errorf("ingest: %w", &services.DecodeError{Err: errors.New("x")}), services.KindDecode},
		{"plain", errors.New("plain"), services.KindInternal},
	}
	for _, tc := range cases {
		if got := services.KindOf(tc.err); got != tc.want {
			t.Errorf("%s: KindOf = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestDecodeErrorMatchesMarker(t *testing.T) {
	base := errors.New("unexpected EOF")
	err := error(&services.DecodeError{Path: "broken.jpg", Err: base})
	if !errors.Is(err, services.ErrDecode) {
		t.Fatal("expected decode marker")
	}
	if !errors.Is(err, base) {
		t.Fatal("expected underlying error")
	}
	var de *services.DecodeError
	if !errors.As(err, &de) || de.Path != "broken.jpg" {
		t.Fatalf("unexpected decode error: %#v", de)
	}
}

