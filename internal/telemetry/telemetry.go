// Package telemetry defines the bridge's ambient Logger interface, backed
// in production by go.uber.org/zap writing exclusively to stderr so the
// MCP stdout stream is never contaminated.
package telemetry

import "context"

// Logger is the bridge-wide structured logging interface. keyvals follow
// the zap SugaredLogger convention: alternating key, value pairs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Noop is a Logger that discards everything; used in tests and anywhere a
// Logger is required but output is not wanted.
type Noop struct{}

func (Noop) Debug(context.Context, string, ...any) {}
func (Noop) Info(context.Context, string, ...any)  {}
func (Noop) Warn(context.Context, string, ...any)  {}
func (Noop) Error(context.Context, string, ...any) {}
