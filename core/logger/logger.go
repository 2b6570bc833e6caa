package logger

// Logger exposes leveled logging used across the matching engine.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// StructuredLogger can emit structured debug records. Implemented by the
// zerolog adapter in infra/logger.
type StructuredLogger interface {
	Debugw(msg string, fields map[string]any)
}
