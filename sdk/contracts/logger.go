package contracts

import "time"

// LogLevel represents the severity level for logging.
type LogLevel int

const (
	// InfoLevel is the default level: lifecycle transitions and operator actions.
	InfoLevel LogLevel = iota
	// DebugLevel adds per-tick and per-message chatter.
	DebugLevel
	// ErrorLevel reports failures that lost a user action.
	ErrorLevel
	// WarnLevel reports recovered failures (play suppressed, device fallback, sink errors).
	WarnLevel
	// FatalLevel logs and terminates the process.
	FatalLevel
)

// ParseLogLevel maps a textual level to a LogLevel, falling back to InfoLevel.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// LogDestination specifies where the log messages should be directed.
type LogDestination string

const (
	// ConsoleLog directs log messages to stderr.
	ConsoleLog LogDestination = "console"
	// FileLog directs log messages to a file.
	FileLog LogDestination = "file"
)

// Field is a typed key/value attached to a log entry.
type Field interface {
	Bool(key string, val bool) Field
	Int(key string, val int) Field
	Float64(key string, val float64) Field
	String(key string, val string) Field
	Time(key string, val time.Time) Field
	Duration(key string, val time.Duration) Field
	Int64(key string, val int64) Field
	Error(key string, val error) Field
	Uint64(key string, val uint64) Field
	Uint8(key string, val uint8) Field
}

// Logger provides leveled, structured logging.
type Logger interface {
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	Field() Field
	// Named returns a child logger tagged with a component name.
	Named(component string) Logger

	SetLevel(level LogLevel)
	SetDestination(dest LogDestination, filePath ...string)
}
