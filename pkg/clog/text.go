package clog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
)

// TextHandler renders records as one colored headline followed by indented
// key=value lines. Request columns (method, procedure, role, operation,
// actor, status) are lifted into the headline when present.
type TextHandler struct {
	cfg    TextHandlerConfig
	groups []string
	attrs  []slog.Attr
	mu     *sync.Mutex
	w      io.Writer
}

type TextHandlerConfig struct {
	Color bool
	Level slog.Leveler
}

type TextHandlerOption func(*TextHandlerConfig)

func WithColor(c bool) TextHandlerOption {
	return func(cfg *TextHandlerConfig) {
		cfg.Color = c
	}
}

func WithLevel(level slog.Leveler) TextHandlerOption {
	return func(cfg *TextHandlerConfig) {
		cfg.Level = level
	}
}

var headlineColumns = []string{"method", "procedure", "role", "operation", "actor", "status"}

func NewTextHandler(w io.Writer, opts ...TextHandlerOption) *TextHandler {
	cfg := TextHandlerConfig{
		Color: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TextHandler{
		cfg: cfg,
		mu:  &sync.Mutex{},
		w:   w,
	}
}

func (h *TextHandler) clone() *TextHandler {
	nh := *h
	nh.groups = make([]string, len(h.groups))
	copy(nh.groups, h.groups)
	nh.attrs = make([]slog.Attr, len(h.attrs))
	copy(nh.attrs, h.attrs)
	return &nh
}

func (h *TextHandler) Enabled(_ context.Context, l slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.cfg.Level != nil {
		minLevel = h.cfg.Level.Level()
	}
	return l >= minLevel
}

func (h *TextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(h2.groups, name)
	return h2
}

func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	nh.attrs = append(nh.attrs, attrs...)
	return nh
}

func (h *TextHandler) Handle(_ context.Context, record slog.Record) error {
	buf := bytes.NewBuffer(make([]byte, 0, 1024))
	paint := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if h.cfg.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}

	fmt.Fprintf(buf, "%s ", record.Time.Format(time.RFC3339))
	var levelColor *color.Color
	switch {
	case record.Level >= slog.LevelError:
		levelColor = paint(color.FgRed)
	case record.Level >= slog.LevelWarn:
		levelColor = paint(color.FgYellow)
	case record.Level >= slog.LevelInfo:
		levelColor = paint(color.FgBlue)
	default:
		levelColor = paint(color.FgCyan)
	}
	levelColor.Fprintf(buf, "%s ", record.Level)

	kv := map[string]slog.Value{}
	for _, attr := range h.attrs {
		kv[attr.Key] = attr.Value
	}
	record.Attrs(func(attr slog.Attr) bool {
		kv[attr.Key] = attr.Value
		return true
	})
	for _, key := range headlineColumns {
		if v, ok := kv[key]; ok {
			fmt.Fprintf(buf, "%s ", v)
			delete(kv, key)
		}
	}

	msgColor := paint(color.FgGreen)
	if v, ok := kv["code"]; ok {
		delete(kv, "code")
		msgColor.Fprintf(buf, "[%s] ", v)
	}
	msgColor.Fprintf(buf, "%q", record.Message)
	if e, ok := kv[ErrorAttributeKey]; ok {
		delete(kv, ErrorAttributeKey)
		paint(color.FgRed).Fprintf(buf, " %q", e.String())
	}
	buf.WriteByte('\n')

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "    %s=%s\n", k, kv[k])
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("can't write log record: %w", err)
	}
	return nil
}
