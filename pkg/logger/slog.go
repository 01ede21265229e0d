package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

// SlogLogger wraps slog.Logger to implement the Logger interface
type SlogLogger struct {
	logger *slog.Logger
}

// Options tweaks the output of NewSlogLogger
type Options struct {
	NoColor bool
}

// NewSlogLogger creates a new SlogLogger with colored output and configurable minimum level
func NewSlogLogger(minLevel slog.Level, writer io.Writer, opts ...Options) *SlogLogger {
	if writer == nil {
		writer = os.Stdout
	}

	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	handler := &ColoredHandler{
		mu:       &sync.Mutex{},
		writer:   writer,
		minLevel: minLevel,
		noColor:  o.NoColor,
	}

	return &SlogLogger{
		logger: slog.New(handler),
	}
}

// ColoredHandler implements slog.Handler with colored level output
type ColoredHandler struct {
	mu       *sync.Mutex
	writer   io.Writer
	minLevel slog.Level
	noColor  bool
	attrs    []slog.Attr
	groups   []string
}

func (h *ColoredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *ColoredHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	b.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	b.WriteByte(' ')
	b.WriteString(h.coloredLevel(r.Level))
	b.WriteByte(' ')
	b.WriteString(r.Message)

	for _, attr := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", attr.Key, attr.Value)
	}

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s%s=%v", prefix, a.Key, a.Value)
		return true
	})

	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *ColoredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)

	c := *h
	c.attrs = newAttrs
	return &c
}

func (h *ColoredHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups[len(h.groups)] = name

	c := *h
	c.groups = newGroups
	return &c
}

func (h *ColoredHandler) coloredLevel(level slog.Level) string {
	var color string
	var levelStr string

	switch level {
	case slog.LevelDebug:
		color = colorGray
		levelStr = "DBG"
	case slog.LevelInfo:
		color = colorBlue
		levelStr = "INF"
	case slog.LevelWarn:
		color = colorYellow
		levelStr = "WRN"
	case slog.LevelError:
		color = colorRed
		levelStr = "ERR"
	default:
		color = colorReset
		levelStr = level.String()
	}

	if h.noColor {
		return levelStr
	}
	return color + levelStr + colorReset
}

// Info logs an informational message
func (l *SlogLogger) Info(msg string, args ...interface{}) {
	l.logger.Info(msg, formatArgs(args...)...)
}

// Warn logs a warning message
func (l *SlogLogger) Warn(msg string, args ...interface{}) {
	l.logger.Warn(msg, formatArgs(args...)...)
}

// Error logs an error message
func (l *SlogLogger) Error(msg string, args ...interface{}) {
	l.logger.Error(msg, formatArgs(args...)...)
}

// Debug logs a debug message
func (l *SlogLogger) Debug(msg string, args ...interface{}) {
	l.logger.Debug(msg, formatArgs(args...)...)
}

// With returns a logger that prefixes every line with the given pairs
func (l *SlogLogger) With(args ...interface{}) Logger {
	return &SlogLogger{logger: l.logger.With(formatArgs(args...)...)}
}

// formatArgs converts key-value pairs to slog attributes, dropping a dangling key
func formatArgs(args ...interface{}) []any {
	if len(args) == 0 {
		return nil
	}

	attrs := make([]any, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			attrs = append(attrs, slog.Any(key, args[i+1]))
		}
	}
	return attrs
}
