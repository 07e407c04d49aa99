package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap with the scoping helpers used across the indexer
type Logger struct {
	*zap.Logger
}

// NewLogger builds a JSON logger at level. The "development" env switches to
// the colored console encoder; unknown levels fall back to info.
func NewLogger(level, env string) (*Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	if env == "development" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: logger}, nil
}

// New wraps an existing core
func New(core zapcore.Core) *Logger {
	return &Logger{Logger: zap.New(core)}
}

// NewNopLogger discards everything
func NewNopLogger() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

func (l *Logger) with(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// WithComponent tags entries with the emitting component
func (l *Logger) WithComponent(component string) *Logger {
	return l.with(zap.String("component", component))
}

// WithRoot scopes the logger to one traversal root
func (l *Logger) WithRoot(root string) *Logger {
	return l.with(zap.String("root", root))
}

// WithSession scopes the logger to one viewer session
func (l *Logger) WithSession(session string) *Logger {
	return l.with(zap.String("session", session))
}

// WithTask scopes the logger to one profile build
func (l *Logger) WithTask(id uint64, root string) *Logger {
	return l.with(zap.Uint64("task_id", id), zap.String("root", root))
}
