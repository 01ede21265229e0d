package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSlogLogger(t *testing.T) {
	t.Run("creates logger with custom writer", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l := NewSlogLogger(slog.LevelInfo, buf)

		require.NotNil(t, l)
		require.NotNil(t, l.logger)
	})

	t.Run("creates logger with default writer when nil", func(t *testing.T) {
		l := NewSlogLogger(slog.LevelInfo, nil)

		require.NotNil(t, l)
		require.NotNil(t, l.logger)
	})
}

func TestSlogLogger_Levels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(*SlogLogger)
		level string
		msg   string
	}{
		{name: "debug", log: func(l *SlogLogger) { l.Debug("debug message") }, level: "DBG", msg: "debug message"},
		{name: "info", log: func(l *SlogLogger) { l.Info("info message") }, level: "INF", msg: "info message"},
		{name: "warn", log: func(l *SlogLogger) { l.Warn("warning message") }, level: "WRN", msg: "warning message"},
		{name: "error", log: func(l *SlogLogger) { l.Error("error message") }, level: "ERR", msg: "error message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.log(NewSlogLogger(slog.LevelDebug, buf))

			assert.Contains(t, buf.String(), tt.level)
			assert.Contains(t, buf.String(), tt.msg)
		})
	}
}

func TestSlogLogger_MinLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewSlogLogger(slog.LevelWarn, buf)

	l.Debug("hidden debug")
	l.Info("hidden info")
	l.Warn("shown warn")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown warn")
}

func TestSlogLogger_WithArgs(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewSlogLogger(slog.LevelInfo, buf)

	l.Info("session synced", "user_id", "@alice:example.org", "pending", 1)
	output := buf.String()

	assert.Contains(t, output, "user_id=@alice:example.org")
	assert.Contains(t, output, "pending=1")
}

func TestSlogLogger_OddNumberOfArgs(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewSlogLogger(slog.LevelInfo, buf)

	l.Info("test message", "key1", "value1", "key2")
	output := buf.String()

	assert.Contains(t, output, "key1=value1")
	assert.NotContains(t, output, "key2")
}

func TestSlogLogger_With(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewSlogLogger(slog.LevelInfo, buf).With("component", "gate")

	l.Info("started", "sessions", 2)

	assert.Contains(t, buf.String(), "component=gate")
	assert.Contains(t, buf.String(), "sessions=2")
}

func TestSlogLogger_NoColor(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewSlogLogger(slog.LevelInfo, buf, Options{NoColor: true})

	l.Info("plain")

	assert.NotContains(t, buf.String(), "\033[")
	assert.Contains(t, buf.String(), " INF plain")
}

func TestColoredHandler_WithGroup(t *testing.T) {
	buf := &bytes.Buffer{}
	h := &ColoredHandler{mu: &sync.Mutex{}, writer: buf, minLevel: slog.LevelInfo, noColor: true}

	slog.New(h).WithGroup("push").Info("registered", "pushkey", "abc")

	assert.Contains(t, buf.String(), "push.pushkey=abc")
}

func TestColoredHandler_Enabled(t *testing.T) {
	h := &ColoredHandler{minLevel: slog.LevelInfo}

	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestLogFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewSlogLogger(slog.LevelInfo, buf)

	l.Info("gate ready", "outcome", "navigated")

	parts := strings.Fields(buf.String())
	require.GreaterOrEqual(t, len(parts), 4)
	assert.Contains(t, parts[0], "-")
	assert.Contains(t, parts[1], ":")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "", want: slog.LevelInfo},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", want: slog.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNop(t *testing.T) {
	var _ Logger = (*SlogLogger)(nil)

	l := OrNop(nil)
	assert.NotPanics(t, func() {
		l.With("k", "v").Info("dropped")
	})
}
