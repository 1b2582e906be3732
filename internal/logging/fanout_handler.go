package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler sends each record to every sink that accepts its level. The
// daemon uses it to write the console and the daemon log file at their own
// levels.
type teeHandler struct {
	sinks []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	var sinks []slog.Handler
	for _, h := range handlers {
		if h != nil {
			sinks = append(sinks, h)
		}
	}
	switch len(sinks) {
	case 0:
		return NoopHandler{}
	case 1:
		return sinks[0]
	default:
		return &teeHandler{sinks: sinks}
	}
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, sink := range t.sinks {
		if sink.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle reports every sink failure; one broken sink does not silence the others.
func (t *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, sink := range t.sinks {
		if !sink.Enabled(ctx, record.Level) {
			continue
		}
		if err := sink.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t *teeHandler) derive(fn func(slog.Handler) slog.Handler) slog.Handler {
	sinks := make([]slog.Handler, len(t.sinks))
	for i, sink := range t.sinks {
		sinks[i] = fn(sink)
	}
	return &teeHandler{sinks: sinks}
}

// TeeLogger returns a logger writing to base's handler and every extra sink.
func TeeLogger(base *slog.Logger, sinks ...slog.Handler) *slog.Logger {
	if base != nil {
		sinks = append([]slog.Handler{base.Handler()}, sinks...)
	}
	return slog.New(newFanoutHandler(sinks...))
}
