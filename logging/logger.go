package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled
// from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a configuration string (debug, info, warn, error) to its
// LogLevel. Unknown or empty strings map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger defines the minimal logging interface for the runtime. Users can
// provide their own implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NoOpLogger discards all log messages. Useful for testing or when logging
// is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// LoggerConfig configures construction of a KernelLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout}
}

// KernelLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. It is cheap to copy via the With* methods.
type KernelLogger struct {
	logger    *slog.Logger
	level     LogLevel
	component string
	tenantID  string
	sessionID string
}

// NewLogger builds a KernelLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *KernelLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &KernelLogger{logger: slog.New(handler), level: cfg.Level, component: cfg.Component}
}

// NewKernelLogger creates a KernelLogger with the given level and format.
func NewKernelLogger(level LogLevel, format string) *KernelLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	return NewLogger(cfg)
}

func (l *KernelLogger) clone() *KernelLogger {
	nl := *l
	return &nl
}

// WithComponent sets the logical component (kernel, registry, persistor, ...).
func (l *KernelLogger) WithComponent(c string) *KernelLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithTenant attaches a tenant identifier to every entry.
func (l *KernelLogger) WithTenant(tenantID string) *KernelLogger {
	nl := l.clone()
	nl.tenantID = tenantID
	return nl
}

// WithSession attaches a session identifier to every entry.
func (l *KernelLogger) WithSession(sessionID string) *KernelLogger {
	nl := l.clone()
	nl.sessionID = sessionID
	return nl
}

func (l *KernelLogger) attrs(extra ...slog.Attr) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(extra)+3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.tenantID != "" {
		attrs = append(attrs, slog.String("tenant_id", l.tenantID))
	}
	if l.sessionID != "" {
		attrs = append(attrs, slog.String("session_id", l.sessionID))
	}
	return append(attrs, extra...)
}

func (l *KernelLogger) log(level slog.Level, msg string, args ...any) {
	l.logger.LogAttrs(context.Background(), level, msg, append(l.attrs(), argsToAttrs(args)...)...)
}

func argsToAttrs(args []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	return attrs
}

// Debug logs at debug level.
func (l *KernelLogger) Debug(msg string, args ...any) {
	if l.level <= LogLevelDebug {
		l.log(slog.LevelDebug, msg, args...)
	}
}

// Info logs at info level.
func (l *KernelLogger) Info(msg string, args ...any) {
	if l.level <= LogLevelInfo {
		l.log(slog.LevelInfo, msg, args...)
	}
}

// Warn logs at warn level.
func (l *KernelLogger) Warn(msg string, args ...any) {
	if l.level <= LogLevelWarn {
		l.log(slog.LevelWarn, msg, args...)
	}
}

// Error logs at error level.
func (l *KernelLogger) Error(msg string, args ...any) {
	if l.level <= LogLevelError {
		l.log(slog.LevelError, msg, args...)
	}
}

// LogSnapshot records a snapshot write or restore with its hash and timing.
func (l *KernelLogger) LogSnapshot(op, hash string, isDelta bool, dur time.Duration, err error) {
	attrs := l.attrs(
		slog.String("operation", op),
		slog.String("snapshot_hash", hash),
		slog.Bool("is_delta", isDelta),
		slog.Duration("duration", dur),
	)
	level := slog.LevelInfo
	msg := "Snapshot " + op + " completed"
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		level = slog.LevelError
		msg = "Snapshot " + op + " failed"
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogAdmission records an admission decision (tenant validation or rate
// limit check) for an operation.
func (l *KernelLogger) LogAdmission(tenantID, operation string, allowed bool, code string) {
	attrs := l.attrs(
		slog.String("tenant_id", tenantID),
		slog.String("operation", operation),
		slog.Bool("allowed", allowed),
	)
	if code != "" {
		attrs = append(attrs, slog.String("error_code", code))
	}
	level := slog.LevelDebug
	msg := "Admission allowed"
	if !allowed {
		level = slog.LevelWarn
		msg = "Admission denied"
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
