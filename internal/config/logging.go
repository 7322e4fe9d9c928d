package config

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// isTerminal reports whether fd is a terminal. Variable for mocking in tests.
var isTerminal = term.IsTerminal

// SetupLogging configures the global slog logger based on args
// Returns the log file handle (caller must close it) or nil if no file
func SetupLogging(args Args) (*os.File, error) {
	var writers []io.Writer
	var logFile *os.File

	// Add file writer if specified
	if args.Log != "" {
		f, err := os.OpenFile(args.Log, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		logFile = f
		writers = append(writers, f)
	}

	// JSON mode always logs to stderr as well, so a pipeline sees failures.
	if args.Json || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	slog.SetDefault(slog.New(newHandler(writers, args.Json, parseLogLevel(args.LogLevel))))
	return logFile, nil
}

// newHandler picks the handler: JSON for --json, colored tint output when
// the only destination is a terminal, plain text otherwise.
func newHandler(writers []io.Writer, jsonMode bool, level slog.Level) slog.Handler {
	var output io.Writer
	if len(writers) == 1 {
		output = writers[0]
	} else {
		output = io.MultiWriter(writers...)
	}

	addSource := level == slog.LevelDebug
	switch {
	case jsonMode:
		return slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level, AddSource: addSource})
	case output == os.Stderr && isTerminal(int(os.Stderr.Fd())):
		return tint.NewHandler(output, &tint.Options{Level: level, AddSource: addSource})
	default:
		return slog.NewTextHandler(output, &slog.HandlerOptions{Level: level, AddSource: addSource})
	}
}

// parseLogLevel converts string to slog.Level
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
