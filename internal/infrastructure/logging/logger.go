package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gray-logic-ism7/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "ism7-bridge"

const logFileMode = 0o640

// redactedKeys are attribute keys whose values never reach the output.
var redactedKeys = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"secret":        {},
	"token":         {},
	"ticket":        {},
	"authorization": {},
}

// Logger is the structured logger shared by all components. It satisfies
// the Logger interfaces of the bridge, the API server and the MQTT client.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New builds a logger from the logging section of config.yaml.
//
// cfg.Output is "stdout" (default), "stderr" or a file path that is opened
// for appending. If the file cannot be opened the logger falls back to
// stderr and says so in its first entry.
//
// Parameters:
//   - cfg: Logging configuration
//   - version: Reported in the version field of every entry
//
// Returns:
//   - *Logger: Ready to use; call Close on shutdown to release a log file
func New(cfg config.LoggingConfig, version string) *Logger {
	out, closer, openErr := openOutput(cfg.Output)
	l := NewWithWriter(cfg, version, out)
	l.closer = closer
	if openErr != nil {
		l.Warn("log file unavailable, logging to stderr", "path", cfg.Output, "error", openErr)
	}
	return l
}

func openOutput(output string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode) //nolint:gosec // path comes from the operator's config
	if err != nil {
		return os.Stderr, nil, err
	}
	return f, f, nil
}

// NewWithWriter is New writing to w; cfg.Output is ignored.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	h = h.WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(h)}
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := redactedKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

// parseLevel maps debug, info, warn(ing) and error; anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger that adds args to every entry, e.g.
// logger.With("component", "mqtt").
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Close releases the log file, if any. Child loggers share the file and
// must not be used afterwards.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}

// Default is a JSON info logger on stdout for use before the configuration
// is loaded.
func Default() *Logger {
	return NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "dev", os.Stdout)
}
