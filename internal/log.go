package internal

import (
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns a text logger writing to w and, when file is set, to a
// rotated log file as well.
func NewLogger(w io.Writer, level, file string) *slog.Logger {
	if file != "" {
		w = io.MultiWriter(w, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithCalendar tags every record of logger with the calendar it concerns.
func WithCalendar(logger *slog.Logger, role, calendarID string) *slog.Logger {
	return logger.With(slog.String(role, calendarID))
}
