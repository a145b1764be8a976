package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

type SlogLogger struct {
	l *slog.Logger
}

var _ Logger = (*SlogLogger)(nil)

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

// Options configures the terminal logger built by New.
type Options struct {
	Level  string
	Format string
}

// New builds a logger that writes through a charmbracelet/log handler.
// Unknown levels fall back to warn.
func New(w io.Writer, opts Options) *SlogLogger {
	level, err := charmlog.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil || strings.TrimSpace(opts.Level) == "" {
		level = charmlog.WarnLevel
	}

	formatter := charmlog.TextFormatter
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		formatter = charmlog.JSONFormatter
	case "logfmt":
		formatter = charmlog.LogfmtFormatter
	}

	handler := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02 15:04:05",
		Prefix:          "pdx",
	})
	return NewSlogLogger(slog.New(handler))
}

// NewNop returns a logger that discards everything.
func NewNop() *SlogLogger {
	return NewSlogLogger(slog.New(slog.DiscardHandler))
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.l.DebugContext(ctx, msg, args...)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.InfoContext(ctx, msg, args...)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.WarnContext(ctx, msg, args...)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.ErrorContext(ctx, msg, args...)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}
