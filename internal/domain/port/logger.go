package port

// Logger is a printf-style leveled logger
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})

	// Named returns a logger scoped to a component, e.g. "model" or "transport"
	Named(name string) Logger

	// SetLevel changes the logging level (debug, info, warn, error)
	SetLevel(level string)

	// Close flushes buffered entries and closes any log file
	Close() error
}
