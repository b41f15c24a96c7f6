// Package harness provides an in-memory canister.Transport stub and
// helpers for driving the bridge end to end without a network; the golden
// JSON-RPC transcripts under testdata freeze the observable wire behavior.
package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/icarus-mcp/icarus/internal/icaruserr"
	"github.com/icarus-mcp/icarus/internal/wire"
)

// MethodFunc answers one canister call. It must honor ctx cancellation for
// scenarios exercising timeouts and cancellation.
type MethodFunc func(ctx context.Context, arg wire.Value) (wire.Value, error)

// Canister is an in-memory stand-in for a real canister: a fixed
// list_tools() catalog blob plus a table of named method handlers. It
// implements canister.Transport directly (no HTTP, no signing) so bridge
// and mcpserver tests can run without a network.
type Canister struct {
	Catalog json.RawMessage
	Methods map[string]MethodFunc

	calls []string // recorded in invocation order, for ordering assertions
}

// NewCanister builds a Canister exposing the given tool catalog (a
// list_tools()-shaped JSON blob) and method table.
func NewCanister(catalog json.RawMessage, methods map[string]MethodFunc) *Canister {
	return &Canister{Catalog: catalog, Methods: methods}
}

func (c *Canister) Query(ctx context.Context, _, method string, arg wire.Value) (wire.Value, error) {
	if method == "list_tools" {
		return wire.Text(string(c.Catalog)), nil
	}
	return c.invoke(ctx, method, arg)
}

func (c *Canister) Call(ctx context.Context, _, method string, arg wire.Value) (wire.Value, error) {
	return c.invoke(ctx, method, arg)
}

func (c *Canister) invoke(ctx context.Context, method string, arg wire.Value) (wire.Value, error) {
	c.calls = append(c.calls, method)
	fn, ok := c.Methods[method]
	if !ok {
		return wire.Value{}, icaruserr.New(icaruserr.KindTransport, icaruserr.TagCanisterNotFound, icaruserr.SeverityRetryable, fmt.Sprintf("canister has no method %q", method))
	}
	return fn(ctx, arg)
}

// Calls returns the method names invoked so far, in order.
func (c *Canister) Calls() []string { return append([]string(nil), c.calls...) }

// Delay returns a MethodFunc that waits d (or ctx cancellation, whichever
// comes first) before delegating to next; used to exercise timeout
// behavior.
func Delay(d time.Duration, next MethodFunc) MethodFunc {
	return func(ctx context.Context, arg wire.Value) (wire.Value, error) {
		select {
		case <-time.After(d):
			return next(ctx, arg)
		case <-ctx.Done():
			return wire.Value{}, ctx.Err()
		}
	}
}

// Fail returns a MethodFunc that always fails with err, e.g. to simulate
// a canister-reported user error.
func Fail(err error) MethodFunc {
	return func(context.Context, wire.Value) (wire.Value, error) { return wire.Value{}, err }
}
