// Package log provides structured logging for the monitor server using zap.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zboralski/vicemon/internal/trace"
)

// Logger wraps zap.Logger with monitor-specific helpers.
type Logger struct {
	*zap.Logger
}

var (
	// L is the global logger instance.
	L    *Logger
	once sync.Once
)

// Init initializes the global logger with the given configuration.
// Safe to call multiple times; only the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New creates a new Logger instance.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}

	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Session logs a client connection lifecycle event.
func (l *Logger) Session(event, sessionID string) {
	l.Info("session",
		zap.String("event", event),
		zap.String("session", sessionID),
	)
}

// Frame logs a decoded request frame at debug level.
func (l *Logger) Frame(requestID uint32, cmdType uint8) {
	l.Debug("frame",
		zap.Uint32("request_id", requestID),
		zap.Uint8("cmd", cmdType),
	)
}

// Checkpoint logs a checkpoint lifecycle or hit event.
func (l *Logger) Checkpoint(event string, number uint32, addr uint64) {
	l.Info("checkpoint",
		zap.String("event", event),
		zap.Uint32("number", number),
		zap.String("addr", Hex(addr)),
	)
}

// Trace logs a trace.Event at debug level, tagged with its primary
// category so a log filter can isolate e.g. just checkpoint hits.
func (l *Logger) Trace(e *trace.Event) {
	l.Debug("trace",
		zap.String("tag", e.PrimaryTag()),
		zap.Strings("tags", e.Tags.Strings()),
		zap.Int("memspace", e.Memspace),
		zap.String("pc", Hex(e.PC)),
		zap.String("name", e.Name),
		zap.String("detail", e.Detail),
	)
}

// WithCategory returns a logger with the category field preset.
func (l *Logger) WithCategory(category string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("cat", category))}
}

// Hex formats a uint64 as a hex string for logging.
func Hex(addr uint64) string {
	return "0x" + hexString(addr)
}

func hexString(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 16)
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}

// Field helpers for common patterns.

// Addr creates an address field.
func Addr(addr uint64) zap.Field {
	return zap.String("addr", Hex(addr))
}

// Size creates a size field.
func Size(size uint64) zap.Field {
	return zap.Uint64("size", size)
}

// Ptr creates a pointer field.
func Ptr(name string, ptr uint64) zap.Field {
	return zap.String(name, Hex(ptr))
}

// Fn creates a function name field.
func Fn(name string) zap.Field {
	return zap.String("fn", name)
}
