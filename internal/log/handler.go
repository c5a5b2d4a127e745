package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// Log output formats accepted by --log-format.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// HandlerOptions configures the log handler.
type HandlerOptions struct {
	Level     slog.Leveler
	Format    string // FormatText or FormatJSON
	Output    io.Writer
	AddSource bool
}

// ValidateFormat rejects formats NewHandler does not know.
func ValidateFormat(format string) error {
	switch format {
	case "", FormatText, FormatJSON:
		return nil
	default:
		return fmt.Errorf("unknown log format %q (want %s or %s)", format, FormatText, FormatJSON)
	}
}

// NewHandler creates a text or JSON handler. Output defaults to stderr:
// stdout carries command results such as stale module lists.
func NewHandler(opts HandlerOptions) slog.Handler {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	if opts.Format == FormatJSON {
		return slog.NewJSONHandler(opts.Output, &slog.HandlerOptions{
			Level:       opts.Level,
			AddSource:   opts.AddSource,
			ReplaceAttr: replaceLevel,
		})
	}
	return slog.NewTextHandler(opts.Output, &slog.HandlerOptions{
		Level:       opts.Level,
		AddSource:   opts.AddSource,
		ReplaceAttr: replaceText,
	})
}

// replaceLevel prints the trace level as TRACE instead of DEBUG-4.
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(LevelName(level))
		}
	}
	return a
}

// replaceText also rounds durations (check and rebuild timings) to
// microseconds for readability. JSON keeps nanoseconds.
func replaceText(groups []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindDuration {
		a.Value = slog.DurationValue(a.Value.Duration().Round(time.Microsecond))
		return a
	}
	return replaceLevel(groups, a)
}
