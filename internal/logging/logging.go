// Package logging builds the slog loggers shared by the daemon's
// components and carries the audit helper used on rejected access.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New returns a logger writing to w. Format "json" selects the JSON
// handler; anything else gives logfmt-style text. Timestamps are UTC.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: utcTime,
	}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel accepts the names slog itself understands, offsets included
// ("warn", "DEBUG", "info+2"). Anything else is info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

func utcTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.TimeValue(a.Value.Time().UTC())
	}
	return a
}

// Component tags every record of logger with the subsystem that wrote it.
// A nil logger yields a discarding one so optional loggers need no checks.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = Discard()
	}
	return logger.With("component", name)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Security logs an audit event at warn level. The fixed event attribute
// lets audit lines be filtered out of the general stream.
func Security(logger *slog.Logger, msg string, args ...any) {
	logger.Warn("security: "+msg, append([]any{"event", "security_audit"}, args...)...)
}
