package fanout

import "go.uber.org/zap"

// Logger defines the logging interface required by the fanout core.
// Implement this interface to integrate your logging system, or use
// NewZapLogger to adapt a *zap.Logger.
type Logger interface {
	// Debugf logs debug-level messages with printf-style formatting.
	Debugf(format string, args ...interface{})

	// Infof logs info-level messages with printf-style formatting.
	Infof(format string, args ...interface{})

	// Warnf logs warning-level messages with printf-style formatting.
	Warnf(format string, args ...interface{})

	// Errorf logs error-level messages with printf-style formatting.
	Errorf(format string, args ...interface{})

	// Info logs info-level messages without formatting.
	Info(message string)
}

// NoopLogger is a no-operation logger implementation useful for testing
// or when logging is not desired. All methods are no-ops.
type NoopLogger struct{}

// Debugf implements Logger.Debugf as a no-op.
func (l *NoopLogger) Debugf(_ string, _ ...interface{}) {}

// Infof implements Logger.Infof as a no-op.
func (l *NoopLogger) Infof(_ string, _ ...interface{}) {}

// Warnf implements Logger.Warnf as a no-op.
func (l *NoopLogger) Warnf(_ string, _ ...interface{}) {}

// Errorf implements Logger.Errorf as a no-op.
func (l *NoopLogger) Errorf(_ string, _ ...interface{}) {}

// Info implements Logger.Info as a no-op.
func (l *NoopLogger) Info(_ string) {}

// ZapLogger adapts a *zap.Logger to Logger through its sugared API.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps l. A nil l yields a no-op zap logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{sugar: l.Sugar()}
}

// Debugf implements Logger.
func (l *ZapLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Infof implements Logger.
func (l *ZapLogger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warnf implements Logger.
func (l *ZapLogger) Warnf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Errorf implements Logger.
func (l *ZapLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Info implements Logger.
func (l *ZapLogger) Info(message string) {
	l.sugar.Info(message)
}
