package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// ChangeType represents the type of file change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "+"
	ChangeModified ChangeType = "~"
	ChangeDeleted  ChangeType = "-"
)

// Logger writes watch mode progress for humans or, with JSON set, as one
// JSON event per line.
type Logger struct {
	writer  io.Writer
	isTTY   bool
	verbose bool
	noColor bool
	jsonOut bool

	mu    sync.Mutex
	stats Stats
}

// Stats counts what happened during a watch session.
type Stats struct {
	Rebuilds  int
	Failures  int
	Errors    int
	StartTime time.Time
}

// LoggerConfig configures the logger.
type LoggerConfig struct {
	Writer  io.Writer
	Verbose bool
	NoColor bool
	JSON    bool
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg LoggerConfig) *Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	isTTY := false
	if f, ok := writer.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	return &Logger{
		writer:  writer,
		isTTY:   isTTY,
		verbose: cfg.Verbose,
		noColor: cfg.NoColor,
		jsonOut: cfg.JSON,
		stats:   Stats{StartTime: time.Now()},
	}
}

// Ready logs that watching started.
func (l *Logger) Ready(modules []string, dirCount int, project string) {
	if l.jsonOut {
		l.event("ready", map[string]any{"modules": modules, "dirs": dirCount, "path": project})
		return
	}
	l.printf("modsnap: watching %d modules (%d directories) in %s\n", len(modules), dirCount, project)
	if len(modules) > 0 {
		l.printf("modsnap: modules: %s\n", strings.Join(modules, ", "))
	}
	l.println("modsnap: ready")
	l.println()
}

// FileChanged logs a file change event. Text output shows it only when
// verbose.
func (l *Logger) FileChanged(path string, change ChangeType) {
	if l.jsonOut {
		l.event("file_changed", map[string]any{"path": path, "change": string(change)})
		return
	}
	if l.verbose {
		l.printf("[%s] %s %s\n", l.timestamp(), l.colorize(string(change), change), path)
	}
}

// Checking logs that a detection pass started.
func (l *Logger) Checking(modules []string) {
	if l.jsonOut {
		l.event("checking", map[string]any{"modules": modules})
		return
	}
	if len(modules) == 1 {
		l.printf("[%s] checking %s...\n", l.timestamp(), modules[0])
	} else {
		l.printf("[%s] checking %d modules...\n", l.timestamp(), len(modules))
	}
}

// UpToDate logs that a pass found nothing to rebuild.
func (l *Logger) UpToDate() {
	if l.jsonOut {
		l.event("up_to_date", nil)
		return
	}
	l.printf("[%s] up to date\n", l.timestamp())
}

// Rebuilt logs a successful module rebuild.
func (l *Logger) Rebuilt(module string) {
	l.mu.Lock()
	l.stats.Rebuilds++
	l.mu.Unlock()

	if l.jsonOut {
		l.event("rebuilt", map[string]any{"module": module})
		return
	}
	l.printf("[%s] %s %s rebuilt\n", l.timestamp(), l.colorize("✓", ChangeAdded), module)
}

// Failed logs a failed rebuild.
func (l *Logger) Failed(module string, err error) {
	l.mu.Lock()
	l.stats.Failures++
	l.mu.Unlock()

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if l.jsonOut {
		l.event("failed", map[string]any{"module": module, "error": msg})
		return
	}
	l.printf("[%s] %s %s failed: %s\n", l.timestamp(), l.colorize("✗", ChangeDeleted), module, msg)
}

// Error logs an error that is not tied to one rebuild.
func (l *Logger) Error(err error) {
	l.mu.Lock()
	l.stats.Errors++
	l.mu.Unlock()

	if l.jsonOut {
		l.event("error", map[string]any{"error": err.Error()})
		return
	}
	l.printf("[%s] %s error: %v\n", l.timestamp(), l.colorize("✗", ChangeDeleted), err)
}

// Shutdown logs the session summary. pending is the number of modules whose
// changes were still waiting for the debounce window.
func (l *Logger) Shutdown(pending int) {
	stats := l.Stats()
	if l.jsonOut {
		l.event("shutdown", map[string]any{
			"rebuilds": stats.Rebuilds,
			"failures": stats.Failures,
			"errors":   stats.Errors,
			"pending":  pending,
			"duration": time.Since(stats.StartTime).String(),
		})
		return
	}
	l.println()
	if pending > 0 {
		l.printf("modsnap: %d modules have unprocessed changes\n", pending)
	}
	l.printf("modsnap: shutting down (%d rebuilds, %d failures, %d errors)\n",
		stats.Rebuilds, stats.Failures, stats.Errors)
}

// Stats returns the current session statistics.
func (l *Logger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Logger) timestamp() string {
	return time.Now().Format("15:04:05")
}

// colorize applies ANSI color codes based on change type.
func (l *Logger) colorize(s string, change ChangeType) string {
	if l.noColor || !l.isTTY {
		return s
	}

	var color string
	switch change {
	case ChangeAdded:
		color = "\033[32m" // green
	case ChangeModified:
		color = "\033[33m" // yellow
	case ChangeDeleted:
		color = "\033[31m" // red
	default:
		return s
	}
	return color + s + "\033[0m"
}

// event writes one JSON line with the event name and a timestamp.
func (l *Logger) event(name string, fields map[string]any) {
	v := map[string]any{"event": name, "time": time.Now().Format(time.RFC3339)}
	for k, f := range fields {
		v[k] = f
	}
	data, err := json.Marshal(v)
	if err != nil {
		l.println(`{"event":"internal_error","error":"json marshal failed"}`)
		return
	}
	l.println(string(data))
}

// Output errors are ignored; the log is informational.
func (l *Logger) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(l.writer, format, args...)
}

func (l *Logger) println(args ...any) {
	_, _ = fmt.Fprintln(l.writer, args...)
}
