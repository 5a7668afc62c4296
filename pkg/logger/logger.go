package logger

import (
	"fmt"
	"log/slog"
	"os"
)

// Loggers bundles the per-level loggers the application layers share.
type Loggers struct {
	InfoLogger  *slog.Logger
	DebugLogger *slog.Logger
	ErrorLogger *slog.Logger
}

func SetupLogger(level string) (*Loggers, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %q", level)
	}

	outHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	errHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})

	return &Loggers{
		InfoLogger:  slog.New(outHandler),
		DebugLogger: slog.New(outHandler),
		ErrorLogger: slog.New(errHandler),
	}, nil
}

// NewDiscard returns loggers that drop everything. Used in tests.
func NewDiscard() *Loggers {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(127)})
	l := slog.New(h)
	return &Loggers{InfoLogger: l, DebugLogger: l, ErrorLogger: l}
}
