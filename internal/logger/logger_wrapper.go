package logger

import (
	"os"
	"time"

	"github.com/leandrodaf/trackmix/sdk/contracts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements contracts.Logger on top of zap.
type ZapLogger struct {
	logger *zap.Logger
	cfg    *zap.Config     // nil when wrapping a caller-supplied logger
	level  zap.AtomicLevel // shared with every Named child
	name   string
}

// NewZapLogger creates a production JSON logger writing to stderr.
func NewZapLogger() contracts.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger, cfg: &cfg, level: cfg.Level}
}

// NewZapLoggerWith wraps an existing zap logger, e.g. one built on a test observer core.
func NewZapLoggerWith(l *zap.Logger) contracts.Logger {
	return &ZapLogger{
		logger: l.WithOptions(zap.AddCallerSkip(2)),
		level:  zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
}

// Info logs a message at the INFO level
func (z *ZapLogger) Info(msg string, fields ...contracts.Field) {
	z.log(zapcore.InfoLevel, msg, fields...)
}

// Error logs a message at the ERROR level
func (z *ZapLogger) Error(msg string, fields ...contracts.Field) {
	z.log(zapcore.ErrorLevel, msg, fields...)
}

// Debug logs a message at the DEBUG level
func (z *ZapLogger) Debug(msg string, fields ...contracts.Field) {
	z.log(zapcore.DebugLevel, msg, fields...)
}

// Warn logs a message at the WARN level
func (z *ZapLogger) Warn(msg string, fields ...contracts.Field) {
	z.log(zapcore.WarnLevel, msg, fields...)
}

// Fatal logs a message at the FATAL level and terminates the application
func (z *ZapLogger) Fatal(msg string, fields ...contracts.Field) {
	z.log(zapcore.FatalLevel, msg, fields...)
	os.Exit(1)
}

// Field returns a new instance of Field
func (z *ZapLogger) Field() contracts.Field {
	return &zapField{}
}

// Named returns a child logger sharing the level of its parent.
func (z *ZapLogger) Named(component string) contracts.Logger {
	return &ZapLogger{
		logger: z.logger.Named(component),
		cfg:    z.cfg,
		level:  z.level,
		name:   component,
	}
}

// SetLevel sets the logging level
func (z *ZapLogger) SetLevel(level contracts.LogLevel) {
	z.level.SetLevel(toZapLevel(level))
}

// SetDestination rebuilds the underlying core to write to the console or a file.
func (z *ZapLogger) SetDestination(dest contracts.LogDestination, filePath ...string) {
	if z.cfg == nil {
		z.Warn("log destination is fixed for wrapped loggers")
		return
	}
	cfg := *z.cfg
	switch dest {
	case contracts.FileLog:
		if len(filePath) == 0 || filePath[0] == "" {
			z.Warn("file log destination requested without a path")
			return
		}
		cfg.OutputPaths = []string{filePath[0]}
		cfg.ErrorOutputPaths = []string{filePath[0]}
	default:
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}
	logger, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		z.Error("failed to switch log destination", z.Field().Error("error", err))
		return
	}
	if z.name != "" {
		logger = logger.Named(z.name)
	}
	z.logger = logger
	z.cfg = &cfg
}

func (z *ZapLogger) log(level zapcore.Level, msg string, fields ...contracts.Field) {
	if !z.level.Enabled(level) {
		return
	}
	zf := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		if f, ok := field.(*zapField); ok {
			zf = append(zf, f.f)
		}
	}
	if ce := z.logger.Check(level, msg); ce != nil {
		ce.Write(zf...)
	}
}

// toZapLevel maps contract levels, whose ordering differs from zap's.
func toZapLevel(level contracts.LogLevel) zapcore.Level {
	switch level {
	case contracts.DebugLevel:
		return zapcore.DebugLevel
	case contracts.WarnLevel:
		return zapcore.WarnLevel
	case contracts.ErrorLevel:
		return zapcore.ErrorLevel
	case contracts.FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// zapField implements contracts.Field
type zapField struct {
	f zap.Field
}

func (f *zapField) Bool(key string, val bool) contracts.Field {
	return &zapField{zap.Bool(key, val)}
}

func (f *zapField) Int(key string, val int) contracts.Field {
	return &zapField{zap.Int(key, val)}
}

func (f *zapField) Float64(key string, val float64) contracts.Field {
	return &zapField{zap.Float64(key, val)}
}

func (f *zapField) String(key string, val string) contracts.Field {
	return &zapField{zap.String(key, val)}
}

func (f *zapField) Time(key string, val time.Time) contracts.Field {
	return &zapField{zap.Time(key, val)}
}

func (f *zapField) Duration(key string, val time.Duration) contracts.Field {
	return &zapField{zap.Duration(key, val)}
}

func (f *zapField) Int64(key string, val int64) contracts.Field {
	return &zapField{zap.Int64(key, val)}
}

func (f *zapField) Error(key string, val error) contracts.Field {
	return &zapField{zap.NamedError(key, val)}
}

func (f *zapField) Uint64(key string, val uint64) contracts.Field {
	return &zapField{zap.Uint64(key, val)}
}

func (f *zapField) Uint8(key string, val uint8) contracts.Field {
	return &zapField{zap.Uint8(key, val)}
}
