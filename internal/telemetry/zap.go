package telemetry

import (
	"context"

	"go.uber.org/zap"
)

// ZapLogger wraps a *zap.SugaredLogger constructed over os.Stderr only,
// keeping log output off the MCP stdout stream.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a ZapLogger around sugar. It sets no level of its
// own: whether Debug-level entries are emitted is decided by sugar's core
// (cmd/bridge enables Debug when ICARUS_DEBUG is set, internal/config).
func NewZapLogger(sugar *zap.SugaredLogger) *ZapLogger {
	return &ZapLogger{sugar: sugar}
}

func (l *ZapLogger) Debug(_ context.Context, msg string, keyvals ...any) {
	l.sugar.Debugw(msg, keyvals...)
}

func (l *ZapLogger) Info(_ context.Context, msg string, keyvals ...any) {
	l.sugar.Infow(msg, keyvals...)
}

func (l *ZapLogger) Warn(_ context.Context, msg string, keyvals ...any) {
	l.sugar.Warnw(msg, keyvals...)
}

func (l *ZapLogger) Error(_ context.Context, msg string, keyvals ...any) {
	l.sugar.Errorw(msg, keyvals...)
}
