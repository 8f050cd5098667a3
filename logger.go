package modular

import (
	"go.uber.org/zap"
)

// Logger defines the interface for registry logging.
// Structured key-value pairs keep output parseable:
//
//	logger.Info("Module registered", "module", "analytics_core", "requestID", id)
//
// *slog.Logger satisfies this interface directly. NewZapLogger adapts a zap logger.
type Logger interface {
	// Info logs normal lifecycle events such as a completed registration.
	Info(msg string, args ...any)

	// Error logs failures that did not stop the registry.
	Error(msg string, args ...any)

	// Warn logs unusual conditions, e.g. an evicted pending request.
	Warn(msg string, args ...any)

	// Debug logs diagnostic detail like resolver cache hits.
	Debug(msg string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Debug(string, ...any) {}

// ZapLogger adapts a *zap.Logger to Logger using the sugared key-value API.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps l. A nil logger yields a no-op zap logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{sugar: l.Sugar()}
}

func (z *ZapLogger) Info(msg string, args ...any)  { z.sugar.Infow(msg, args...) }
func (z *ZapLogger) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }
func (z *ZapLogger) Warn(msg string, args ...any)  { z.sugar.Warnw(msg, args...) }
func (z *ZapLogger) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}
