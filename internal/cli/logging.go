package cli

import (
	"io"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"
)

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogger(level string, w io.Writer) *slog.Logger {
	handler := tint.NewHandler(w, &tint.Options{
		Level:      parseLevel(level),
		TimeFormat: "15:04:05.000",
	})
	return slog.New(handler)
}
