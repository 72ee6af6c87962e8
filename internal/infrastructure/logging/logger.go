package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below zap's DebugLevel. Sandbox console chatter and retry
// decisions are logged here so production debug logs stay readable.
const TraceLevel = zapcore.DebugLevel - 1

// Logger is a zap.Logger that also knows TraceLevel.
type Logger struct {
	*zap.Logger
}

// Config selects the level and output of a Logger.
type Config struct {
	Level       string // "trace" (or "silly"), "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string // defaults to stdout
}

// New builds a logger. Development mode writes colored console lines with
// stack traces on warnings; otherwise output is JSON.
func New(cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig = encoderConfig(cfg.Development)
	zapCfg.OutputPaths = outputs
	zapCfg.DisableStacktrace = !cfg.Development
	// Trace lines are per console call; sampling would drop them silently.
	zapCfg.Sampling = nil

	z, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: z}, nil
}

// Wrap adapts an existing zap logger, e.g. one built by zaptest/observer.
func Wrap(z *zap.Logger) *Logger {
	if z == nil {
		return NewNop()
	}
	return &Logger{Logger: z}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Child scopes the logger with additional fields.
func (l *Logger) Child(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Trace logs at TraceLevel.
func (l *Logger) Trace(msg string, fields ...zap.Field) {
	if ce := l.Logger.Check(TraceLevel, msg); ce != nil {
		ce.Write(fields...)
	}
}

// ParseLevel converts a level name to zapcore.Level, accepting "trace" and
// its alias "silly".
func ParseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "trace", "silly":
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		enc := zap.NewDevelopmentEncoderConfig()
		enc.EncodeLevel = withTrace(zapcore.CapitalColorLevelEncoder, "TRACE")
		return enc
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = withTrace(zapcore.LowercaseLevelEncoder, "trace")
	return enc
}

// withTrace names TraceLevel, which zap's encoders would print as "LEVEL(-2)".
func withTrace(base zapcore.LevelEncoder, name string) zapcore.LevelEncoder {
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		if l == TraceLevel {
			enc.AppendString(name)
			return
		}
		base(l, enc)
	}
}
