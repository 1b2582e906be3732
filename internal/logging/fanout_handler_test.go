package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner, nil); h != inner {
		t.Fatal("expected the single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerLevelsPerSink(t *testing.T) {
	var console, daemonFile bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&console, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewJSONHandler(&daemonFile, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug enabled while any sink accepts it")
	}

	logger := slog.New(h)
	logger.Debug("hash computed", slog.String(FieldAssetID, "a1"))
	if console.Len() != 0 {
		t.Fatalf("console received debug record: %s", console.String())
	}
	if !bytes.Contains(daemonFile.Bytes(), []byte(`"asset_id":"a1"`)) {
		t.Fatalf("daemon sink missing record: %s", daemonFile.String())
	}

	logger.Warn("enrichment degraded")
	if !bytes.Contains(console.Bytes(), []byte("enrichment degraded")) {
		t.Fatalf("console missing warn record: %s", console.String())
	}
}

func TestFanoutHandlerCarriesAttrsAndGroups(t *testing.T) {
	var a, b bytes.Buffer
	h := newFanoutHandler(slog.NewJSONHandler(&a, nil), slog.NewJSONHandler(&b, nil))
	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String(FieldComponent, "tier")}).WithGroup("promote"))
	logger.Info("promoted", slog.String("to", "silver"))

	for name, buf := range map[string]*bytes.Buffer{"first": &a, "second": &b} {
		out := buf.Bytes()
		if !bytes.Contains(out, []byte(`"component":"tier"`)) {
			t.Fatalf("%s sink missing component: %s", name, out)
		}
		if !bytes.Contains(out, []byte(`"promote":{"to":"silver"}`)) {
			t.Fatalf("%s sink missing group: %s", name, out)
		}
	}
}

func TestTeeLogger(t *testing.T) {
	var base, tee bytes.Buffer
	logger := TeeLogger(slog.New(slog.NewJSONHandler(&base, nil)), slog.NewJSONHandler(&tee, nil))
	logger.Info("teed message")
	if base.Len() == 0 || tee.Len() == 0 {
		t.Fatalf("expected both sinks written, base=%d tee=%d", base.Len(), tee.Len())
	}

	tee.Reset()
	TeeLogger(nil, slog.NewJSONHandler(&tee, nil)).Info("no base")
	if tee.Len() == 0 {
		t.Fatal("expected tee output without a base logger")
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestFanoutHandlerKeepsWritingPastFailedSink(t *testing.T) {
	var good bytes.Buffer
	h := newFanoutHandler(
		failingHandler{slog.NewJSONHandler(&bytes.Buffer{}, nil)},
		slog.NewJSONHandler(&good, nil),
	)
	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "catalog seeded", 0))
	if err == nil || err.Error() != "disk full" {
		t.Fatalf("expected sink error, got %v", err)
	}
	if !bytes.Contains(good.Bytes(), []byte("catalog seeded")) {
		t.Fatal("healthy sink should still receive the record")
	}
}
