package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func TestJSONLineHandlerRecordShape(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newJSONLineHandler(&buf, slog.LevelDebug, false))
	logger.Warn("provider slow",
		slog.Duration("latency", 1234567*time.Microsecond),
		slog.String("openai_api_key", "sk-live-123"),
		slog.String(FieldProvider, "openai"),
	)

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	if entry["level"] != "warn" || entry["msg"] != "provider slow" || entry[FieldProvider] != "openai" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["latency"] != "1.235s" {
		t.Fatalf("latency = %v", entry["latency"])
	}
	if entry["openai_api_key"] != "<redacted>" {
		t.Fatalf("secret leaked: %v", entry["openai_api_key"])
	}
	ts, ok := entry["ts"].(string)
	if !ok {
		t.Fatalf("missing ts in %v", entry)
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil || ts[len(ts)-1] != 'Z' {
		t.Fatalf("ts %q should be UTC RFC3339: %v", ts, err)
	}
}

func TestJSONLineHandlerShortSource(t *testing.T) {
	var buf bytes.Buffer
	slog.New(newJSONLineHandler(&buf, slog.LevelInfo, true)).Info("with source")
	if !bytes.Contains(buf.Bytes(), []byte(`"source":"json_handler_test.go:`)) {
		t.Fatalf("expected short source, got %s", buf.String())
	}
}
