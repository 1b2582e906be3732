package logging

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

const jsonTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// secretKeyParts mark attribute keys whose values never reach a log file.
var secretKeyParts = []string{"api_key", "apikey", "secret", "password", "token", "authorization"}

// newJSONLineHandler writes one JSON object per record with the keys the
// daemon log and `darkroom logs` expect: ts, level, msg and source.
func newJSONLineHandler(w io.Writer, level slog.Leveler, withSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		AddSource:   withSource,
		ReplaceAttr: rewriteJSONAttr,
	})
}

func rewriteJSONAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		if attr.Value.Kind() == slog.KindTime {
			return slog.String("ts", attr.Value.Time().UTC().Format(jsonTimeLayout))
		}
		attr.Key = "ts"
		return attr
	case slog.LevelKey:
		return slog.String("level", strings.ToLower(attr.Value.String()))
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			return slog.String("source", fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
		return attr
	}
	if isSecretKey(attr.Key) {
		return slog.String(attr.Key, "<redacted>")
	}
	if attr.Value.Kind() == slog.KindDuration {
		// Enrichment latencies read better as "1.25s" than as nanoseconds.
		return slog.String(attr.Key, attr.Value.Duration().Round(time.Millisecond).String())
	}
	return attr
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, part := range secretKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}
