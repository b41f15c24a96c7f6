// Package bridge implements the orchestration state machine that wires
// the MCP server frame through the parameter mapper to the canister
// client, discovers the tool catalog at startup, and applies the
// refresh-once-on-stale-catalog re-discovery policy.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/icarus-mcp/icarus/internal/canister"
	"github.com/icarus-mcp/icarus/internal/icaruserr"
	"github.com/icarus-mcp/icarus/internal/ids"
	"github.com/icarus-mcp/icarus/internal/mapper"
	"github.com/icarus-mcp/icarus/internal/mcpserver"
	"github.com/icarus-mcp/icarus/internal/schema"
	"github.com/icarus-mcp/icarus/internal/telemetry"
	"github.com/icarus-mcp/icarus/internal/wire"
)

// State names one node of the Uninitialized -> Connected -> Serving ->
// Draining -> Stopped state machine.
type State int32

const (
	StateUninitialized State = iota
	StateConnected
	StateServing
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateServing:
		return "serving"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// listToolsResponse is the JSON shape of a canister's list_tools() reply.
type listToolsResponse struct {
	Tools []toolEntry `json:"tools"`
}

type toolEntry struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// catalog is the immutable read-mostly snapshot installed at startup and
// swapped wholesale on refresh, never partially mutated.
type catalog struct {
	ordered []*schema.Tool
	byName  map[string]*schema.Tool
}

// Bridge implements mcpserver.Handler over the canister client and
// parameter mapper, and owns the catalog snapshot and state machine.
type Bridge struct {
	client     *canister.Client
	canisterID ids.CanisterId
	log        telemetry.Logger

	state   atomic.Int32
	cat     atomic.Pointer[catalog]
	fatalMu sync.Once
	fatal   chan struct{}
}

// New constructs a Bridge in the Uninitialized state.
func New(client *canister.Client, canisterID ids.CanisterId, log telemetry.Logger) *Bridge {
	b := &Bridge{client: client, canisterID: canisterID, log: log, fatal: make(chan struct{})}
	b.state.Store(int32(StateUninitialized))
	return b
}

// State reports the bridge's current state machine node.
func (b *Bridge) State() State { return State(b.state.Load()) }

// Fatal reports a channel that closes exactly once if a call handler
// observes an Internal.Invariant violation; the process then exits with
// code 2. cmd/bridge selects on this alongside Server.Run.
func (b *Bridge) Fatal() <-chan struct{} { return b.fatal }

func (b *Bridge) raiseFatal() {
	b.fatalMu.Do(func() { close(b.fatal) })
}

// Start transitions Uninitialized -> Connected -> Serving: it calls
// list_tools on the canister, parses the metadata into Tool objects, and
// installs them as the initial catalog. A parse or transport failure here
// is a startup failure; the bridge refuses to start.
func (b *Bridge) Start(ctx context.Context) error {
	b.state.Store(int32(StateConnected))

	cat, err := b.fetchCatalog(ctx)
	if err != nil {
		return fmt.Errorf("bridge: startup discovery failed: %w", err)
	}
	b.cat.Store(cat)
	b.state.Store(int32(StateServing))
	b.log.Info(ctx, "bridge serving", "canister_id", b.canisterID.String(), "tool_count", len(cat.ordered))
	return nil
}

// Drain transitions Serving -> Draining on EOF, SIGTERM or an
// unrecoverable error; actual in-flight-task waiting is owned by
// mcpserver.Server.Run's DrainGrace.
func (b *Bridge) Drain() {
	b.state.CompareAndSwap(int32(StateServing), int32(StateDraining))
}

// Stop transitions to Stopped; called once Server.Run returns.
func (b *Bridge) Stop() {
	b.state.Store(int32(StateStopped))
}

func (b *Bridge) fetchCatalog(ctx context.Context) (*catalog, error) {
	raw, err := b.client.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	var resp listToolsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, icaruserr.Wrap(icaruserr.KindInternal, icaruserr.TagInternalDecode, icaruserr.SeverityFatal, "list_tools reply is not valid catalog JSON", err)
	}

	cat := &catalog{byName: make(map[string]*schema.Tool, len(resp.Tools))}
	for _, e := range resp.Tools {
		id, err := ids.NewToolId(e.Name)
		if err != nil {
			return nil, fmt.Errorf("bridge: tool %q has an invalid id: %w", e.Name, err)
		}
		name, err := ids.NewToolName(e.Name)
		if err != nil {
			return nil, fmt.Errorf("bridge: tool %q has an invalid name: %w", e.Name, err)
		}
		tool, err := schema.FromJSONSchema(id, name, e.Description, e.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("bridge: parsing tool %q metadata: %w", e.Name, err)
		}
		if _, dup := cat.byName[e.Name]; dup {
			return nil, fmt.Errorf("bridge: duplicate tool name %q in catalog", e.Name)
		}
		cat.byName[e.Name] = tool
		cat.ordered = append(cat.ordered, tool)
	}
	return cat, nil
}

// ListTools implements mcpserver.Handler, returning a consistent snapshot
// of the currently installed catalog; it never reflects a partial
// refresh.
func (b *Bridge) ListTools(context.Context) ([]mcpserver.ToolDescriptor, error) {
	cat := b.cat.Load()
	out := make([]mcpserver.ToolDescriptor, len(cat.ordered))
	for i, t := range cat.ordered {
		out[i] = mcpserver.ToolDescriptor{
			Name:        t.Name.String(),
			Description: t.Description,
			InputSchema: t.ToJSONSchema(),
		}
	}
	return out, nil
}

// CallTool implements mcpserver.Handler: resolve the tool, translate JSON
// arguments to a wire call, invoke the canister, translate the result
// back, applying the refresh-once-on-Canister.NotFound policy and the
// Canister.UserError isError-in-content convention.
func (b *Bridge) CallTool(ctx context.Context, name string, arguments json.RawMessage) (mcpserver.ToolsCallResult, error) {
	tool, ok := b.cat.Load().byName[name]
	if !ok {
		return mcpserver.ToolsCallResult{}, icaruserr.ErrProtocolUnknownMethod.WithContext("method", "tools/call").WithContext("tool", name)
	}

	arg, err := mapper.ToCallArg(tool, arguments)
	if err != nil {
		return mcpserver.ToolsCallResult{}, err
	}

	result, err := b.client.Call(ctx, tool.Name.String(), arg)
	if err != nil {
		ierr, ok := icaruserr.As(err)
		if ok && ierr.Tag == icaruserr.TagCanisterNotFound {
			result, err = b.retryAfterRediscovery(ctx, tool.Name.String(), arg)
		}
	}
	if err != nil {
		ierr, ok := icaruserr.As(err)
		if ok {
			if ierr.Tag == icaruserr.TagCanisterUserError {
				return mcpserver.ToolsCallResult{
					Content: []mcpserver.ContentItem{{Type: "text", Text: ierr.Message}},
					IsError: true,
				}, nil
			}
			if ierr.Tag == icaruserr.TagInternalInvariant {
				b.raiseFatal()
			}
		}
		return mcpserver.ToolsCallResult{}, err
	}

	raw, err := mapper.FromCallResult(result)
	if err != nil {
		return mcpserver.ToolsCallResult{}, err
	}
	return mcpserver.ToolsCallResult{
		Content: []mcpserver.ContentItem{{Type: "text", Text: string(raw)}},
		IsError: false,
	}, nil
}

// retryAfterRediscovery refreshes the catalog once and retries the call
// when the canister reports an unknown method and the debounce window has
// elapsed, covering a canister upgraded underneath a live bridge. If the
// window hasn't elapsed, or the refresh itself fails, the original
// Canister.NotFound is surfaced as Protocol.UnknownMethod.
func (b *Bridge) retryAfterRediscovery(ctx context.Context, method string, arg wire.Value) (wire.Value, error) {
	if !b.client.ShouldRediscover() {
		return wire.Value{}, notFoundAsUnknownMethod(method)
	}
	cat, err := b.fetchCatalog(ctx)
	if err != nil {
		b.log.Warn(ctx, "catalog refresh after Canister.NotFound failed", "method", method, "error", err)
		return wire.Value{}, notFoundAsUnknownMethod(method)
	}
	b.cat.Store(cat)

	result, err := b.client.Call(ctx, method, arg)
	if err != nil {
		if ierr, ok := icaruserr.As(err); ok && ierr.Tag == icaruserr.TagCanisterNotFound {
			return wire.Value{}, notFoundAsUnknownMethod(method)
		}
		return wire.Value{}, err
	}
	return result, nil
}

// notFoundAsUnknownMethod converts a stale-catalog miss into the
// client-visible Protocol.UnknownMethod error.
func notFoundAsUnknownMethod(method string) *icaruserr.Error {
	return icaruserr.ErrProtocolUnknownMethod.WithContext("method", "tools/call").WithContext("tool", method)
}
