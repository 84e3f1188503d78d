package clog

import (
	"context"
	"log/slog"
	"slices"
)

// AttributesHandler appends the request's context attributes to each record
// in key order. The stack trace is only attached to error records.
type AttributesHandler struct {
	next slog.Handler
}

func NewAttributesHandler(next slog.Handler) *AttributesHandler {
	return &AttributesHandler{next: next}
}

func (h *AttributesHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *AttributesHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := GetAttributes(ctx)
	if record.Level < slog.LevelError {
		delete(attrs, StackAttributeKey)
	}
	if len(attrs) > 0 {
		keys := make([]string, 0, len(attrs))
		for k := range attrs {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			record.AddAttrs(slog.Any(k, attrs[k]))
		}
	}
	return h.next.Handle(ctx, record)
}

func (h *AttributesHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewAttributesHandler(h.next.WithAttrs(attrs))
}

func (h *AttributesHandler) WithGroup(name string) slog.Handler {
	return NewAttributesHandler(h.next.WithGroup(name))
}
