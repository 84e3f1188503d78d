package clog

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig configures an optional rotated log file. An empty Path disables
// file output.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Output returns the writer log records go to. With a file configured the
// records are written to both the console writer and the rotated file, and
// the returned closer releases the file.
func Output(console io.Writer, file FileConfig) (io.Writer, io.Closer) {
	if file.Path == "" {
		return console, nopCloser{}
	}
	rotated := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   file.Compress,
	}
	return io.MultiWriter(console, rotated), rotated
}

// NewHandler picks the console text handler for local development and JSON
// everywhere else, and wraps the result so context attributes are attached.
func NewHandler(w io.Writer, env string, level slog.Leveler) slog.Handler {
	var handler slog.Handler
	if env == "local" {
		handler = NewTextHandler(w, WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return NewAttributesHandler(handler)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
