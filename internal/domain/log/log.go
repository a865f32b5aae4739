package log

// Field is a single structured attribute attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// Logger is the logging contract the rest of the service depends on.
// Adapters implement it; nothing outside internal/adapters imports a
// concrete logging library.
type Logger interface {
	Debug(message string, fields ...Field)
	Info(message string, fields ...Field)
	Warn(message string, fields ...Field)
	Error(message string, fields ...Field)
}
