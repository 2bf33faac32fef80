package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	// level is shared by every handler, so level changes need no rebuild.
	level slog.LevelVar

	mu       sync.RWMutex
	format   = "text"
	output   io.Writer = os.Stderr
	useColor bool
	closer   io.Closer
	slogger  *slog.Logger
)

func init() {
	useColor = isTerminal(os.Stderr.Fd())
	rebuild()
}

// parseLevel maps a configuration level name to a slog level.
func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	return 0, false
}

// rebuild recreates the handler for the current format and output.
func rebuild() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: &level}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = NewColorTextHandler(output, opts, useColor)
	}
	slogger = slog.New(h)
}

// Init initializes the logger with the given configuration.
// Output can be "stdout", "stderr", or a file path. Frames are often
// written to stdout, so stderr is the default.
func Init(cfg Config) error {
	if cfg.Output != "" {
		w, color, c, err := openOutput(cfg.Output)
		if err != nil {
			return err
		}

		mu.Lock()
		if closer != nil {
			_ = closer.Close()
		}
		output, useColor, closer = w, color, c
		mu.Unlock()
	}

	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	rebuild()
	return nil
}

func openOutput(name string) (io.Writer, bool, io.Closer, error) {
	switch strings.ToLower(name) {
	case "stdout":
		return os.Stdout, isTerminal(os.Stdout.Fd()), nil, nil
	case "stderr":
		return os.Stderr, isTerminal(os.Stderr.Fd()), nil, nil
	}

	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, false, nil, fmt.Errorf("failed to open log file %q: %w", name, err)
	}
	return f, false, f, nil
}

// InitWithWriter initializes the logger with a custom io.Writer.
// This is primarily useful for testing.
func InitWithWriter(w io.Writer, lvl, fmtName string, enableColor bool) {
	mu.Lock()
	output = w
	useColor = enableColor
	mu.Unlock()

	if lvl != "" {
		SetLevel(lvl)
	}
	if fmtName != "" {
		SetFormat(fmtName)
	}
	rebuild()
}

// SetLevel sets the minimum log level. Unknown names are ignored.
func SetLevel(name string) {
	if l, ok := parseLevel(name); ok {
		level.Set(l)
	}
}

// GetLevel returns the current minimum level name.
func GetLevel() string {
	return level.Level().String()
}

// SetFormat sets the output format (text or json). Unknown formats are
// ignored.
func SetFormat(name string) {
	name = strings.ToLower(name)
	if name != "text" && name != "json" {
		return
	}

	mu.Lock()
	changed := format != name
	format = name
	mu.Unlock()

	if changed {
		rebuild()
	}
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

func logAt(ctx context.Context, l slog.Level, msg string, args []any) {
	if l < level.Level() {
		return
	}
	getLogger().Log(ctx, l, msg, appendContextFields(ctx, args)...)
}

// Debug logs at debug level with structured fields
// Usage: Debug("message", "key1", value1, "key2", value2)
func Debug(msg string, args ...any) { logAt(context.Background(), slog.LevelDebug, msg, args) }

// Info logs at info level with structured fields
func Info(msg string, args ...any) { logAt(context.Background(), slog.LevelInfo, msg, args) }

// Warn logs at warn level with structured fields
func Warn(msg string, args ...any) { logAt(context.Background(), slog.LevelWarn, msg, args) }

// Error logs at error level with structured fields
func Error(msg string, args ...any) { logAt(context.Background(), slog.LevelError, msg, args) }

// DebugCtx logs at debug level, prefixed with the LogContext fields in ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	logAt(ctx, slog.LevelDebug, msg, args)
}

// InfoCtx logs at info level with context
func InfoCtx(ctx context.Context, msg string, args ...any) {
	logAt(ctx, slog.LevelInfo, msg, args)
}

// WarnCtx logs at warn level with context
func WarnCtx(ctx context.Context, msg string, args ...any) {
	logAt(ctx, slog.LevelWarn, msg, args)
}

// ErrorCtx logs at error level with context
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	logAt(ctx, slog.LevelError, msg, args)
}

// appendContextFields prepends the LogContext fields in ctx to args.
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	ctxArgs := make([]any, 0, 10+len(args))
	if lc.TraceID != "" {
		ctxArgs = append(ctxArgs, KeyTraceID, lc.TraceID)
	}
	if lc.SpanID != "" {
		ctxArgs = append(ctxArgs, KeySpanID, lc.SpanID)
	}
	if lc.Operation != "" {
		ctxArgs = append(ctxArgs, KeyOperation, lc.Operation)
	}
	if lc.JobID != "" {
		ctxArgs = append(ctxArgs, KeyJobID, lc.JobID)
	}
	if lc.FD >= 0 {
		ctxArgs = append(ctxArgs, KeyFD, lc.FD)
	}
	return append(ctxArgs, args...)
}

// With returns a new slog.Logger with additional attributes
func With(args ...any) *slog.Logger {
	return getLogger().With(args...)
}

// Duration returns duration since start time in milliseconds
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
