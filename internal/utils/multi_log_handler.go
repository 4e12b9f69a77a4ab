package utils

import (
	"context"
	"errors"
	"log/slog"
)

// MultiLogHandler fans one slog record out to several sinks, typically a
// colored terminal handler plus a plain-text log file.
type MultiLogHandler struct {
	sinks []slog.Handler
}

func NewMultiLogHandler(sinks ...slog.Handler) *MultiLogHandler {
	return &MultiLogHandler{sinks: sinks}
}

// Enabled reports true when at least one sink wants the level.
func (h *MultiLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, sink := range h.sinks {
		if sink.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers the record to every sink that accepts its level. A failing
// sink does not stop delivery to the others.
func (h *MultiLogHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, sink := range h.sinks {
		if !sink.Enabled(ctx, r.Level) {
			continue
		}
		if err := sink.Handle(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *MultiLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.fanOut(func(sink slog.Handler) slog.Handler { return sink.WithAttrs(attrs) })
}

func (h *MultiLogHandler) WithGroup(name string) slog.Handler {
	return h.fanOut(func(sink slog.Handler) slog.Handler { return sink.WithGroup(name) })
}

func (h *MultiLogHandler) fanOut(wrap func(slog.Handler) slog.Handler) slog.Handler {
	sinks := make([]slog.Handler, len(h.sinks))
	for i, sink := range h.sinks {
		sinks[i] = wrap(sink)
	}
	return NewMultiLogHandler(sinks...)
}
