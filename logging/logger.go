package logging

// Logger is the logging interface every arsession component is handed. Messages are either
// printed as-is or carry structured key/value pairs (the `w` variants).
type Logger interface {
	Debug(args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// SetLevel changes the level used when no registry pattern matches the logger's name.
	SetLevel(level Level)
	// GetLevel returns the effective level.
	GetLevel() Level
	// Sublogger returns a logger named "<name>.<subname>" sharing this logger's appenders.
	Sublogger(subname string) Logger
	AddAppender(appender Appender)
	// Sync flushes every appender.
	Sync() error
}
