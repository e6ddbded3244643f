package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	once   sync.Once
	mu     sync.RWMutex
	logger *slog.Logger
)

// Setup initializes the global logger writing JSON to stdout.
// Unknown levels fall back to INFO. Only the first call has an effect.
func Setup(level string) {
	once.Do(func() {
		install(New(os.Stdout, level, "json"))
	})
}

// New builds a logger for w. format is "json" (default) or "text".
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel maps debug/info/warn/error (any case) to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Replace swaps the global logger. Used by the CLI once config is loaded
// and by tests that capture output.
func Replace(l *slog.Logger) {
	once.Do(func() {})
	install(l)
}

func install(l *slog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
	slog.SetDefault(l)
}

// Get returns the configured logger, or a default one if Setup hasn't been called.
func Get() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l == nil {
		Setup("INFO")
		mu.RLock()
		l = logger
		mu.RUnlock()
	}
	return l
}

// WithComponent returns a logger with the component field set.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

// WithQueue returns a logger tagged with the dispatcher key.
func WithQueue(owner, queue string) *slog.Logger {
	return Get().With(slog.String("owner", owner), slog.String("queue", queue))
}

// WithTask returns a logger with the task_id field set.
func WithTask(id int64) *slog.Logger {
	return Get().With(slog.Int64("task_id", id))
}

// Info logs at INFO level.
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// Warn logs at WARN level.
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs at ERROR level.
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}
